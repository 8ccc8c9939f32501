package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/llm"
	"github.com/stemsi/exstem-classroom/internal/model"
)

// FeedbackTimeout bounds a single LLM round trip plus the write.
const FeedbackTimeout = 2 * time.Minute

// FeedbackGenerator writes feedback for one attempt.
type FeedbackGenerator interface {
	Generate(ctx context.Context, req model.FeedbackRequest) (string, error)
}

// FeedbackWorker pops feedback requests and generates each one once. A
// failed request is logged and dropped; the attempt keeps a null feedback
// field and classroomctl regenerate-feedback can pick it up later.
type FeedbackWorker struct {
	queue     Queue
	generator FeedbackGenerator
	workers   int
	log       zerolog.Logger
}

func NewFeedbackWorker(queue Queue, generator FeedbackGenerator, workers int, log zerolog.Logger) *FeedbackWorker {
	if workers < 1 {
		workers = 1
	}
	return &FeedbackWorker{
		queue:     queue,
		generator: generator,
		workers:   workers,
		log:       log.With().Str("component", "feedback_worker").Logger(),
	}
}

// Start runs the consumers and blocks until ctx is cancelled and every
// in-flight request has finished.
func (w *FeedbackWorker) Start(ctx context.Context) {
	w.log.Info().Int("workers", w.workers).Msg("FeedbackWorker started")

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()
	w.log.Info().Msg("FeedbackWorker stopped")
}

func (w *FeedbackWorker) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		result, err := w.queue.BLPop(ctx, PollTimeout, config.WorkerKey.GenerateFeedbackQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var req model.FeedbackRequest
		if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed feedback request")
			continue
		}
		w.handle(ctx, req)
	}
}

// handle finishes the request even when shutdown begins mid-call.
func (w *FeedbackWorker) handle(ctx context.Context, req model.FeedbackRequest) {
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FeedbackTimeout)
	defer cancel()

	if _, err := w.generator.Generate(genCtx, req); err != nil {
		ev := w.log.Error().Err(err).Str("attempt_id", req.AttemptID)
		var quota *llm.QuotaError
		if errors.As(err, &quota) {
			ev = ev.Dur("retry_after", quota.RetryAfter)
		}
		ev.Msg("Feedback request dropped")
	}
}
