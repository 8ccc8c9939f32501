package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/response"
	"github.com/stemsi/exstem-classroom/internal/service"
)

// CourseReader reads courses for their owner.
type CourseReader interface {
	GetByID(ctx context.Context, id string) (*model.Course, error)
	ListByProfessor(ctx context.Context, professorID string) ([]model.Course, error)
}

// CourseHandler serves course listings to professors. Courses are loaded
// with classroomctl seed-course.
type CourseHandler struct {
	courses CourseReader
}

// NewCourseHandler creates a new CourseHandler.
func NewCourseHandler(courses CourseReader) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// ListCourses godoc
// GET /api/v1/professor/courses
func (h *CourseHandler) ListCourses(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	courses, err := h.courses.ListByProfessor(c.Request.Context(), professorID)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"courses": courses})
}

// GetCourse godoc
// GET /api/v1/professor/courses/:course_id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	professorID, ok := professorOrFail(c)
	if !ok {
		return
	}

	course, err := h.courses.GetByID(c.Request.Context(), c.Param("course_id"))
	if err != nil {
		failWithError(c, err)
		return
	}
	if course.ProfessorID != professorID {
		failWithError(c, service.ErrNotCourseOwner)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"course": course})
}
