package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/model"
)

// fakeQueue serves queued items from memory and reports redis.Nil when empty.
type fakeQueue struct {
	mu     sync.Mutex
	items  map[string][]string
	pushed map[string][]string
	popped chan struct{}
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: map[string][]string{}, pushed: map[string][]string{}, popped: make(chan struct{}, 100)}
}

func (q *fakeQueue) add(key string, v any) {
	data, _ := json.Marshal(v)
	q.mu.Lock()
	q.items[key] = append(q.items[key], string(data))
	q.mu.Unlock()
}

func (q *fakeQueue) BLPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, k := range keys {
		if len(q.items[k]) > 0 {
			v := q.items[k][0]
			q.items[k] = q.items[k][1:]
			q.popped <- struct{}{}
			return redis.NewStringSliceResult([]string{k, v}, nil)
		}
	}
	if ctx.Err() != nil {
		return redis.NewStringSliceResult(nil, ctx.Err())
	}
	return redis.NewStringSliceResult(nil, redis.Nil)
}

func (q *fakeQueue) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, v := range values {
		q.pushed[key] = append(q.pushed[key], string(v.([]byte)))
	}
	return redis.NewIntResult(int64(len(q.pushed[key])), nil)
}

type fakeDB struct {
	copyErr  error
	execErrs map[string]error // by student email
	copied   int
	inserted []string
}

func (d *fakeDB) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	if d.copyErr != nil {
		return 0, d.copyErr
	}
	n := 0
	for src.Next() {
		n++
	}
	d.copied += n
	return int64(n), nil
}

func (d *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	email := args[2].(string)
	if err := d.execErrs[email]; err != nil {
		return pgconn.CommandTag{}, err
	}
	d.inserted = append(d.inserted, email)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func event(email string) *model.IntegrityEvent {
	return &model.IntegrityEvent{
		AttemptID:    "6f1c2f1e-7d35-4d4c-9a52-1f0f3f1f8e11",
		ExamID:       "0b5d7a7e-8f8c-4a7e-9b0e-5b6c3d2e1f00",
		StudentEmail: email,
		Kind:         model.IntegrityVisibility,
		Count:        1,
		RecordedAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestIntegrityBulkInsert(t *testing.T) {
	db := &fakeDB{}
	w := NewIntegrityWorker(db, newFakeQueue(), zerolog.Nop())
	w.flushSafe(context.Background(), []*model.IntegrityEvent{event("a@x"), event("b@x")})
	if db.copied != 2 || len(db.inserted) != 0 {
		t.Errorf("copied %d, inserted %v", db.copied, db.inserted)
	}
}

func TestIntegrityFallbackDropsBadIDsAndRequeuesFailures(t *testing.T) {
	bad := event("bad@x")
	bad.AttemptID = "not-a-uuid"
	db := &fakeDB{
		copyErr:  errors.New("copy failed"),
		execErrs: map[string]error{"down@x": errors.New("connection refused")},
	}
	q := newFakeQueue()
	w := NewIntegrityWorker(db, q, zerolog.Nop())
	w.requeueBackoff = 0

	w.flushSafe(context.Background(), []*model.IntegrityEvent{event("a@x"), bad, event("down@x")})

	if len(db.inserted) != 1 || db.inserted[0] != "a@x" {
		t.Errorf("inserted = %v", db.inserted)
	}
	requeued := q.pushed["persist_integrity_queue"]
	if len(requeued) != 1 {
		t.Fatalf("requeued = %v", requeued)
	}
	var ev model.IntegrityEvent
	if err := json.Unmarshal([]byte(requeued[0]), &ev); err != nil || ev.StudentEmail != "down@x" {
		t.Errorf("requeued event = %+v, err = %v", ev, err)
	}
}

func TestIntegrityWorkerFlushesOnShutdown(t *testing.T) {
	db := &fakeDB{}
	q := newFakeQueue()
	q.add("persist_integrity_queue", event("a@x"))
	q.add("persist_integrity_queue", "not an event")
	q.add("persist_integrity_queue", event("b@x"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewIntegrityWorker(db, q, zerolog.Nop()).Start(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		<-q.popped
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	if db.copied != 2 {
		t.Errorf("copied = %d, want 2", db.copied)
	}
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []string
	err   error
	done  chan struct{}
}

func (g *fakeGenerator) Generate(_ context.Context, req model.FeedbackRequest) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req.AttemptID)
	g.mu.Unlock()
	g.done <- struct{}{}
	return "ok", g.err
}

func TestFeedbackWorkerGeneratesOncePerRequest(t *testing.T) {
	q := newFakeQueue()
	q.add("generate_feedback_queue", model.FeedbackRequest{AttemptID: "att-1"})
	q.add("generate_feedback_queue", model.FeedbackRequest{AttemptID: "att-2"})
	gen := &fakeGenerator{err: errors.New("quota"), done: make(chan struct{}, 10)}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		NewFeedbackWorker(q, gen, 1, zerolog.Nop()).Start(ctx)
		close(stopped)
	}()

	<-gen.done
	<-gen.done
	cancel()
	<-stopped

	if len(gen.calls) != 2 || gen.calls[0] != "att-1" || gen.calls[1] != "att-2" {
		t.Errorf("calls = %v", gen.calls)
	}
	if len(q.pushed["generate_feedback_queue"]) != 0 {
		t.Error("failed feedback must not be requeued")
	}
}
