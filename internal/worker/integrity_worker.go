package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// Queue is the part of the Redis client the workers use.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// EventDB is the part of the pgx pool the integrity worker writes through.
type EventDB interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var integrityColumns = []string{"attempt_id", "exam_id", "student_email", "kind", "count", "recorded_at"}

// IntegrityWorker drains the integrity queue into the integrity_events table
// in batches.
type IntegrityWorker struct {
	db    EventDB
	queue Queue
	log   zerolog.Logger

	// requeueBackoff slows the loop down when the database is failing.
	requeueBackoff time.Duration
}

func NewIntegrityWorker(db EventDB, queue Queue, log zerolog.Logger) *IntegrityWorker {
	return &IntegrityWorker{
		db:             db,
		queue:          queue,
		log:            log.With().Str("component", "integrity_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

func (w *IntegrityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IntegrityWorker started")

	buffer := make([]*model.IntegrityEvent, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// Returns immediately if data exists.
		result, err := w.queue.BLPop(ctx, PollTimeout, config.WorkerKey.PersistIntegrityQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var ev model.IntegrityEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed integrity event")
			continue
		}
		buffer = append(buffer, &ev)
	}
}

// flushSafe tries a bulk copy, then row-by-row inserts, then requeues what
// still failed.
func (w *IntegrityWorker) flushSafe(ctx context.Context, batch []*model.IntegrityEvent) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *IntegrityWorker) bulkInsert(ctx context.Context, batch []*model.IntegrityEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, ev := range batch {
		row, err := integrityRow(ev)
		if err != nil {
			// The fallback drops the bad row individually.
			return err
		}
		rows = append(rows, row)
	}

	_, err := w.db.CopyFrom(ctx, pgx.Identifier{"integrity_events"}, integrityColumns, pgx.CopyFromRows(rows))
	return err
}

func (w *IntegrityWorker) fallbackInsert(ctx context.Context, batch []*model.IntegrityEvent) {
	requeueList := make([]*model.IntegrityEvent, 0)

	for _, ev := range batch {
		row, err := integrityRow(ev)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", ev.AttemptID).Msg("Dropping integrity event with invalid ids")
			continue
		}

		_, err = w.db.Exec(ctx,
			`INSERT INTO integrity_events (attempt_id, exam_id, student_email, kind, count, recorded_at)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			row...,
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", ev.AttemptID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, ev)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *IntegrityWorker) requeue(ctx context.Context, items []*model.IntegrityEvent) {
	values := make([]interface{}, 0, len(items))
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		values = append(values, data)
	}
	if err := w.queue.RPush(ctx, config.WorkerKey.PersistIntegrityQueue, values...).Err(); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue integrity events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	time.Sleep(w.requeueBackoff)
}

func (w *IntegrityWorker) shutdown(buffer []*model.IntegrityEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(ctx, buffer)
	}
}

func integrityRow(ev *model.IntegrityEvent) ([]interface{}, error) {
	attemptID, err := uuid.Parse(ev.AttemptID)
	if err != nil {
		return nil, err
	}
	examID, err := uuid.Parse(ev.ExamID)
	if err != nil {
		return nil, err
	}
	recordedAt := ev.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	return []interface{}{attemptID, examID, ev.StudentEmail, string(ev.Kind), ev.Count, recordedAt}, nil
}
