package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/llm"
	"github.com/stemsi/exstem-classroom/internal/model"
)

// ErrFeedbackGeneration wraps every failure of the feedback pipeline.
var ErrFeedbackGeneration = errors.New("feedback generation failed")

// ExamReader loads exam definitions.
type ExamReader interface {
	GetByID(ctx context.Context, id string) (*model.Exam, error)
}

// FeedbackStore attaches feedback text to an attempt.
type FeedbackStore interface {
	AppendFeedback(ctx context.Context, attemptID, feedback string) error
}

// TextGenerator produces free text from a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// FeedbackService queues and generates narrative feedback for submitted
// attempts. Feedback is best-effort: nothing in the student flow waits on it.
type FeedbackService struct {
	rdb       *redis.Client
	exams     ExamReader
	attempts  FeedbackStore
	generator TextGenerator
	log       zerolog.Logger
}

// NewFeedbackService creates a new FeedbackService.
func NewFeedbackService(rdb *redis.Client, exams ExamReader, attempts FeedbackStore, generator TextGenerator, log zerolog.Logger) *FeedbackService {
	return &FeedbackService{
		rdb:       rdb,
		exams:     exams,
		attempts:  attempts,
		generator: generator,
		log:       log.With().Str("component", "feedback_service").Logger(),
	}
}

// Dispatch queues req for the feedback worker.
func (s *FeedbackService) Dispatch(ctx context.Context, req model.FeedbackRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrFeedbackGeneration, err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.GenerateFeedbackQueue, data).Err(); err != nil {
		return fmt.Errorf("%w: enqueue: %v", ErrFeedbackGeneration, err)
	}
	s.log.Debug().Str("attempt_id", req.AttemptID).Msg("Feedback queued")
	return nil
}

// Generate writes feedback for one submitted attempt. It is called once per
// request and never retried here.
func (s *FeedbackService) Generate(ctx context.Context, req model.FeedbackRequest) (string, error) {
	log := s.log.With().Str("attempt_id", req.AttemptID).Str("exam_id", req.ExamID).Logger()

	exam, err := s.exams.GetByID(ctx, req.ExamID)
	if err != nil {
		log.Error().Err(err).Msg("Feedback skipped, exam unavailable")
		return "", fmt.Errorf("%w: load exam: %v", ErrFeedbackGeneration, err)
	}

	text, err := s.generator.GenerateText(ctx, llm.FeedbackPrompt(exam, req.Answers, req.Score))
	if err != nil {
		log.Error().Err(err).Msg("Feedback generation failed")
		return "", fmt.Errorf("%w: %w", ErrFeedbackGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrFeedbackGeneration)
	}

	if err := s.attempts.AppendFeedback(ctx, req.AttemptID, text); err != nil {
		log.Error().Err(err).Msg("Feedback could not be saved")
		return "", fmt.Errorf("%w: save: %v", ErrFeedbackGeneration, err)
	}

	log.Info().Int("length", len(text)).Msg("Feedback generated")
	return text, nil
}

// RequestFor rebuilds the feedback request of a submitted attempt.
func RequestFor(a *model.ExamAttempt) model.FeedbackRequest {
	req := model.FeedbackRequest{
		AttemptID:    a.ID,
		ExamID:       a.ExamID,
		StudentEmail: a.StudentEmail,
		Answers:      a.Answers,
	}
	if a.Score != nil {
		req.Score = *a.Score
	}
	return req
}
