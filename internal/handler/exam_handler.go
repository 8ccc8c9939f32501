package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-classroom/internal/export"
	"github.com/stemsi/exstem-classroom/internal/middleware"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/response"
	"github.com/stemsi/exstem-classroom/internal/service"
	"github.com/stemsi/exstem-classroom/internal/validator"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExamHandler handles professor-side exam management endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// CreateExam godoc
// POST /api/v1/professor/exams
// Creates a new draft exam with a fresh access code.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), professorID, req)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// ListCourseExams godoc
// GET /api/v1/professor/courses/:course_id/exams
func (h *ExamHandler) ListCourseExams(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	exams, err := h.examService.ListByCourse(c.Request.Context(), professorID, c.Param("course_id"))
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/professor/exams/:id
// Returns the full exam, answer key included.
func (h *ExamHandler) GetExam(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	exam, err := h.examService.Get(c.Request.Context(), professorID, c.Param("id"))
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ReplaceQuestions godoc
// PUT /api/v1/professor/exams/:id/questions
// Overwrites the questions of a draft exam.
func (h *ExamHandler) ReplaceQuestions(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.examService.ReplaceQuestions(c.Request.Context(), professorID, c.Param("id"), req.Questions)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// GenerateQuestions godoc
// POST /api/v1/professor/exams/:id/questions/generate
// Asks the LLM for questions based on the course documentation and stores
// them on the draft exam. A quota error comes back as 429 with Retry-After.
func (h *ExamHandler) GenerateQuestions(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	var req model.GenerateQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.examService.GenerateQuestions(c.Request.Context(), professorID, c.Param("id"), req.QuestionCount)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ActivateExam godoc
// POST /api/v1/professor/exams/:id/activate
func (h *ExamHandler) ActivateExam(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	if err := h.examService.Activate(c.Request.Context(), professorID, c.Param("id")); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.ExamStatusActive})
}

// CloseExam godoc
// POST /api/v1/professor/exams/:id/close
func (h *ExamHandler) CloseExam(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	if err := h.examService.Close(c.Request.Context(), professorID, c.Param("id")); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.ExamStatusClosed})
}

// GetResults godoc
// GET /api/v1/professor/exams/:id/results
func (h *ExamHandler) GetResults(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	attempts, err := h.examService.Results(c.Request.Context(), professorID, c.Param("id"))
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// ExportResults godoc
// GET /api/v1/professor/exams/:id/results/export
// Streams the results as an .xlsx workbook.
func (h *ExamHandler) ExportResults(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	exam, err := h.examService.Get(ctx, professorID, c.Param("id"))
	if err != nil {
		failWithError(c, err)
		return
	}
	attempts, err := h.examService.Results(ctx, professorID, exam.ID)
	if err != nil {
		failWithError(c, err)
		return
	}

	buf, err := export.ResultsWorkbook(exam, attempts)
	if err != nil {
		failWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="results-%s.xlsx"`, exam.AccessCode))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func professorOrFail(c *gin.Context) (string, bool) {
	professorID, err := middleware.ProfessorID(c)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", false
	}
	return professorID, true
}
