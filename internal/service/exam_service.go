package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/llm"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/repository"
)

// Domain Errors
var (
	ErrNotExamAuthor     = errors.New("not the author of this exam")
	ErrNotCourseOwner    = errors.New("not the owner of this course")
	ErrNoQuestions       = errors.New("exam has no questions, cannot activate")
	ErrExamNotDraft      = errors.New("exam status is not draft")
	ErrNoDocumentation   = errors.New("course has no session documentation")
	ErrDuplicateQuestion = errors.New("question ids must be unique")
)

// accessCodeAlphabet skips characters that are easy to misread (0/O, 1/I).
const (
	accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	accessCodeLength   = 6
	accessCodeAttempts = 5
)

// ExamStore is what ExamService needs from the exam repository.
type ExamStore interface {
	GetByID(ctx context.Context, id string) (*model.Exam, error)
	ListByCourse(ctx context.Context, courseID string) ([]model.Exam, error)
	Create(ctx context.Context, e *model.Exam) error
	ReplaceQuestions(ctx context.Context, id string, questions []model.Question) error
	UpdateStatus(ctx context.Context, id string, status model.ExamStatus) error
}

// CourseStore reads courses.
type CourseStore interface {
	GetByID(ctx context.Context, id string) (*model.Course, error)
}

// AttemptLister lists the attempts of an exam.
type AttemptLister interface {
	ListByExam(ctx context.Context, examID string) ([]model.ExamAttempt, error)
}

// QuestionGenerator produces questions from a prompt.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, prompt string, count int) ([]model.Question, error)
}

// ExamService handles professor-side exam management.
type ExamService struct {
	exams     ExamStore
	courses   CourseStore
	attempts  AttemptLister
	generator QuestionGenerator
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams ExamStore,
	courses CourseStore,
	attempts AttemptLister,
	generator QuestionGenerator,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:     exams,
		courses:   courses,
		attempts:  attempts,
		generator: generator,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// Create inserts a new exam as draft with a fresh access code.
func (s *ExamService) Create(ctx context.Context, professorID string, req model.CreateExamRequest) (*model.Exam, error) {
	course, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course.ProfessorID != professorID {
		return nil, ErrNotCourseOwner
	}

	exam := &model.Exam{
		CourseID:    course.ID,
		ProfessorID: professorID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		TimeLimit:   req.TimeLimit,
		Tolerance:   req.Tolerance,
		Status:      model.ExamStatusDraft,
		Questions:   []model.Question{},
	}

	// Access codes are random; retry the rare collision.
	for i := 0; i < accessCodeAttempts; i++ {
		exam.AccessCode, err = NewAccessCode()
		if err != nil {
			return nil, err
		}
		err = s.exams.Create(ctx, exam)
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("exam_id", exam.ID).Str("course_id", exam.CourseID).Msg("Exam created")
	return exam, nil
}

// Get returns an exam owned by professorID.
func (s *ExamService) Get(ctx context.Context, professorID, examID string) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.ProfessorID != professorID {
		return nil, ErrNotExamAuthor
	}
	return exam, nil
}

// ListByCourse returns the exams of a course owned by professorID.
func (s *ExamService) ListByCourse(ctx context.Context, professorID, courseID string) ([]model.Exam, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.ProfessorID != professorID {
		return nil, ErrNotCourseOwner
	}
	return s.exams.ListByCourse(ctx, courseID)
}

// ReplaceQuestions overwrites the questions of a draft exam. Missing ids are
// assigned from the question's position.
func (s *ExamService) ReplaceQuestions(ctx context.Context, professorID, examID string, in []model.QuestionInput) ([]model.Question, error) {
	exam, err := s.Get(ctx, professorID, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	questions, err := BuildQuestions(in)
	if err != nil {
		return nil, err
	}
	if err := s.exams.ReplaceQuestions(ctx, examID, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// GenerateQuestions replaces the questions of a draft exam with count
// questions written by the LLM from the course documentation. Quota errors
// come back as *llm.QuotaError.
func (s *ExamService) GenerateQuestions(ctx context.Context, professorID, examID string, count int) ([]model.Question, error) {
	exam, err := s.Get(ctx, professorID, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	course, err := s.courses.GetByID(ctx, exam.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	prompt, ok := llm.QuestionsPrompt(course, count)
	if !ok {
		return nil, ErrNoDocumentation
	}

	questions, err := s.generator.GenerateQuestions(ctx, prompt, count)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID).Int("count", count).Msg("Question generation failed")
		return nil, err
	}
	if err := s.exams.ReplaceQuestions(ctx, examID, questions); err != nil {
		return nil, err
	}

	s.log.Info().Str("exam_id", examID).Int("count", len(questions)).Msg("Questions generated")
	return questions, nil
}

// Activate opens a draft exam to students.
func (s *ExamService) Activate(ctx context.Context, professorID, examID string) error {
	exam, err := s.Get(ctx, professorID, examID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	if len(exam.Questions) == 0 {
		return ErrNoQuestions
	}
	if err := s.exams.UpdateStatus(ctx, examID, model.ExamStatusActive); err != nil {
		return err
	}
	s.log.Info().Str("exam_id", examID).Msg("Exam activated")
	return nil
}

// Close stops new attempts on an active exam.
func (s *ExamService) Close(ctx context.Context, professorID, examID string) error {
	exam, err := s.Get(ctx, professorID, examID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusActive {
		return ErrExamNotActive
	}
	if err := s.exams.UpdateStatus(ctx, examID, model.ExamStatusClosed); err != nil {
		return err
	}
	s.log.Info().Str("exam_id", examID).Msg("Exam closed")
	return nil
}

// Results lists the attempts of an exam.
func (s *ExamService) Results(ctx context.Context, professorID, examID string) ([]model.ExamAttempt, error) {
	if _, err := s.Get(ctx, professorID, examID); err != nil {
		return nil, err
	}
	return s.attempts.ListByExam(ctx, examID)
}

// BuildQuestions converts request input into stored questions.
func BuildQuestions(in []model.QuestionInput) ([]model.Question, error) {
	out := make([]model.Question, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, q := range in {
		if len(q.Options) != model.OptionCount {
			return nil, fmt.Errorf("question %d: need %d options", i+1, model.OptionCount)
		}
		if q.CorrectAnswer == nil || *q.CorrectAnswer < 0 || *q.CorrectAnswer >= model.OptionCount {
			return nil, fmt.Errorf("question %d: correct answer out of range", i+1)
		}
		id := strings.TrimSpace(q.ID)
		if id == "" {
			id = fmt.Sprintf("q%d", i+1)
		}
		if seen[id] {
			return nil, ErrDuplicateQuestion
		}
		seen[id] = true

		out = append(out, model.Question{
			ID:            id,
			Question:      strings.TrimSpace(q.Question),
			Options:       q.Options,
			CorrectAnswer: *q.CorrectAnswer,
			Explanation:   strings.TrimSpace(q.Explanation),
			Difficulty:    model.Difficulty(q.Difficulty),
		})
	}
	return out, nil
}

// NewAccessCode returns a random upper-case access code.
func NewAccessCode() (string, error) {
	var b strings.Builder
	size := big.NewInt(int64(len(accessCodeAlphabet)))
	for i := 0; i < accessCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		b.WriteByte(accessCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
