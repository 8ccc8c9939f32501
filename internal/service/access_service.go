package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/repository"
	"github.com/stemsi/exstem-classroom/internal/validator"
)

// Access gate errors, checked in this order.
var (
	ErrInvalidAccessCode = errors.New("no exam with that access code")
	ErrExamNotActive     = errors.New("exam is not active")
	ErrAlreadyAttempted  = errors.New("student already attempted this exam")
	ErrExamHasNoQuestion = errors.New("exam has no questions")
	ErrInvalidStudent    = errors.New("student name must have at least two words")
)

// ExamByCode finds an exam by its access code.
type ExamByCode interface {
	GetByAccessCode(ctx context.Context, code string) (*model.Exam, error)
}

// AttemptFinder looks up a student's earlier attempt.
type AttemptFinder interface {
	FindByExamAndStudent(ctx context.Context, examID, studentEmail string) (*model.ExamAttempt, error)
}

// TicketIssuer signs exam tickets.
type TicketIssuer interface {
	IssueExamTicket(examID, studentEmail, studentName string) (string, time.Time, error)
}

// AccessGrant is returned when a student may begin an exam.
type AccessGrant struct {
	Exam      model.ExamSummary `json:"exam"`
	Ticket    string            `json:"ticket"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// AccessService is the gate in front of the exam session.
type AccessService struct {
	exams    ExamByCode
	attempts AttemptFinder
	tickets  TicketIssuer
	log      zerolog.Logger
}

// NewAccessService creates a new AccessService.
func NewAccessService(exams ExamByCode, attempts AttemptFinder, tickets TicketIssuer, log zerolog.Logger) *AccessService {
	return &AccessService{
		exams:    exams,
		attempts: attempts,
		tickets:  tickets,
		log:      log.With().Str("component", "access_service").Logger(),
	}
}

// Enter validates an access request and issues a ticket for the exam.
func (s *AccessService) Enter(ctx context.Context, req model.AccessRequest) (*AccessGrant, error) {
	name := strings.Join(strings.Fields(req.StudentName), " ")
	email := strings.ToLower(strings.TrimSpace(req.StudentEmail))
	if !validator.IsFullName(name) {
		return nil, ErrInvalidStudent
	}

	exam, err := s.exams.GetByAccessCode(ctx, req.AccessCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidAccessCode
		}
		return nil, fmt.Errorf("lookup access code: %w", err)
	}
	if exam.Status != model.ExamStatusActive {
		return nil, ErrExamNotActive
	}

	_, err = s.attempts.FindByExamAndStudent(ctx, exam.ID, email)
	switch {
	case err == nil:
		return nil, ErrAlreadyAttempted
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("check prior attempt: %w", err)
	}

	if len(exam.Questions) == 0 {
		return nil, ErrExamHasNoQuestion
	}

	ticket, expires, err := s.tickets.IssueExamTicket(exam.ID, email, name)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("exam_id", exam.ID).Str("student_email", email).Msg("Exam access granted")
	return &AccessGrant{Exam: exam.Summary(), Ticket: ticket, ExpiresAt: expires}, nil
}
