package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/exstem-classroom/internal/model"
)

// Documents is the subset of DocumentStore the typed repositories use.
type Documents interface {
	Create(ctx context.Context, collection string, doc any) (string, error)
	CreateWithID(ctx context.Context, collection, id string, doc any) error
	Get(ctx context.Context, collection, id string, out any) error
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
}

// AttemptRepository handles exam attempt documents.
type AttemptRepository struct {
	docs Documents
	now  func() time.Time
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(docs Documents) *AttemptRepository {
	return &AttemptRepository{docs: docs, now: time.Now}
}

// Create records that a student has begun an exam. The one-attempt rule is
// enforced by the store's unique index on (examId, studentEmail), which
// surfaces as ErrConflict.
func (r *AttemptRepository) Create(ctx context.Context, examID, studentEmail, studentName string) (string, error) {
	a := model.ExamAttempt{
		ExamID:       examID,
		StudentEmail: normalizeEmail(studentEmail),
		StudentName:  strings.TrimSpace(studentName),
		Answers:      model.Answers{},
		Status:       model.AttemptStatusInProgress,
		StartedAt:    r.now().UTC(),
	}
	id, err := r.docs.Create(ctx, CollectionExamAttempts, a)
	if err != nil {
		return "", fmt.Errorf("create attempt: %w", err)
	}
	return id, nil
}

// AppendResult writes the terminal fields of an attempt.
func (r *AttemptRepository) AppendResult(ctx context.Context, attemptID string, res model.AttemptResult) error {
	answers := res.Answers
	if answers == nil {
		answers = model.Answers{}
	}
	err := r.docs.Update(ctx, CollectionExamAttempts, attemptID, map[string]any{
		"answers":            answers,
		"score":              res.Score,
		"submittedAt":        res.SubmittedAt.UTC(),
		"autoSubmitted":      res.AutoSubmitted,
		"submissionReason":   res.SubmissionReason,
		"visibilityWarnings": res.VisibilityWarnings,
		"status":             model.AttemptStatusSubmitted,
	})
	if err != nil {
		return fmt.Errorf("append result to %s: %w", attemptID, err)
	}
	return nil
}

// AppendFeedback attaches generated feedback text. It never touches the
// result fields.
func (r *AttemptRepository) AppendFeedback(ctx context.Context, attemptID, feedback string) error {
	err := r.docs.Update(ctx, CollectionExamAttempts, attemptID, map[string]any{
		"feedback":            feedback,
		"feedbackGeneratedAt": r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("append feedback to %s: %w", attemptID, err)
	}
	return nil
}

// Get loads one attempt.
func (r *AttemptRepository) Get(ctx context.Context, attemptID string) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	if err := r.docs.Get(ctx, CollectionExamAttempts, attemptID, &a); err != nil {
		return nil, err
	}
	a.ID = attemptID
	return &a, nil
}

// FindByExamAndStudent returns the student's attempt at an exam, or ErrNotFound.
func (r *AttemptRepository) FindByExamAndStudent(ctx context.Context, examID, studentEmail string) (*model.ExamAttempt, error) {
	docs, err := r.docs.Query(ctx, CollectionExamAttempts,
		Eq("examId", examID),
		Eq("studentEmail", normalizeEmail(studentEmail)),
	)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return decodeAttempt(docs[0])
}

// ListByExam returns every attempt at an exam, oldest first.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID string) ([]model.ExamAttempt, error) {
	docs, err := r.docs.Query(ctx, CollectionExamAttempts, Eq("examId", examID))
	if err != nil {
		return nil, err
	}
	return decodeAttempts(docs)
}

// ListMissingFeedback returns submitted attempts without feedback text. An
// empty examIDs list means every exam.
func (r *AttemptRepository) ListMissingFeedback(ctx context.Context, examIDs ...string) ([]model.ExamAttempt, error) {
	filters := []Filter{
		Eq("status", model.AttemptStatusSubmitted),
		Eq("feedback", nil),
	}
	if len(examIDs) > 0 {
		ids := make([]any, len(examIDs))
		for i, id := range examIDs {
			ids[i] = id
		}
		filters = append(filters, In("examId", ids...))
	}
	docs, err := r.docs.Query(ctx, CollectionExamAttempts, filters...)
	if err != nil {
		return nil, err
	}
	return decodeAttempts(docs)
}

func decodeAttempt(d Document) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	if err := d.Decode(&a); err != nil {
		return nil, err
	}
	a.ID = d.ID
	return &a, nil
}

func decodeAttempts(docs []Document) ([]model.ExamAttempt, error) {
	out := make([]model.ExamAttempt, 0, len(docs))
	for _, d := range docs {
		a, err := decodeAttempt(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
