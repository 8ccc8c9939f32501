package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/repository"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// ─── Clock ──────────────────────────────────────────────────────────

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
	ready  chan struct{}
	// settle, when set, returns once the loop has handled every event
	// already handed to it. Advance and Tick call it so that a loop handler
	// never reads a clock the test has already moved past it.
	settle func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch, ready: make(chan struct{})}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticker = &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	close(c.ready)
	return c.ticker
}

// Advance moves the clock without ticking.
func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.sync()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Tick advances by d and delivers one tick. It reports false if the ticker
// has been stopped.
func (c *fakeClock) Tick(d time.Duration) bool {
	now := c.Advance(d)
	c.mu.Lock()
	tk := c.ticker
	c.mu.Unlock()
	select {
	case tk.ch <- now:
		c.sync()
		return true
	case <-tk.stopped:
		return false
	}
}

func (c *fakeClock) sync() {
	c.mu.Lock()
	settle := c.settle
	c.mu.Unlock()
	if settle != nil {
		settle()
	}
}

type fakeTicker struct {
	ch       chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopOnce.Do(func() { close(t.stopped) }) }

func (t *fakeTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// ─── Environment ────────────────────────────────────────────────────

type fakeEnv struct {
	signals  chan Signal
	mu       sync.Mutex
	released int
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{signals: make(chan Signal)}
}

func (e *fakeEnv) Subscribe() (<-chan Signal, func()) {
	return e.signals, func() {
		e.mu.Lock()
		e.released++
		e.mu.Unlock()
	}
}

func (e *fakeEnv) releaseCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

// ─── Notifier ───────────────────────────────────────────────────────

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) count(kind NoticeKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingNotifier) last(kind NoticeKind) (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notices) - 1; i >= 0; i-- {
		if r.notices[i].Kind == kind {
			return r.notices[i], true
		}
	}
	return Notice{}, false
}

// ─── Exam source ────────────────────────────────────────────────────

type fakeExams struct {
	exams     map[string]*model.Exam
	courses   map[string]*model.Course
	courseErr error
}

func (f *fakeExams) GetExam(_ context.Context, id string) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeExams) GetCourse(_ context.Context, id string) (*model.Course, error) {
	if f.courseErr != nil {
		return nil, f.courseErr
	}
	c, ok := f.courses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

// ─── Attempt store ──────────────────────────────────────────────────

type appendCall struct {
	attemptID string
	result    model.AttemptResult
}

type fakeAttempts struct {
	mu        sync.Mutex
	creates   int
	createErr error
	appends   []appendCall
	// failures is the number of AppendResult calls that fail before success.
	failures int
	// gate, when set, blocks AppendResult until closed.
	gate chan struct{}
}

func (f *fakeAttempts) Create(_ context.Context, examID, email, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.creates++
	return fmt.Sprintf("attempt-%d", f.creates), nil
}

func (f *fakeAttempts) AppendResult(_ context.Context, attemptID string, res model.AttemptResult) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, appendCall{attemptID: attemptID, result: res})
	if f.failures > 0 {
		f.failures--
		return errors.New("store unavailable")
	}
	return nil
}

func (f *fakeAttempts) appendCalls() []appendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appendCall(nil), f.appends...)
}

func (f *fakeAttempts) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

// ─── Feedback + integrity ───────────────────────────────────────────

type fakeFeedback struct {
	requests chan model.FeedbackRequest
	err      error
}

func newFakeFeedback() *fakeFeedback {
	return &fakeFeedback{requests: make(chan model.FeedbackRequest, 4)}
}

func (f *fakeFeedback) Dispatch(_ context.Context, req model.FeedbackRequest) error {
	f.requests <- req
	return f.err
}

type fakeIntegrity struct {
	events chan model.IntegrityEvent
}

func (f *fakeIntegrity) Record(_ context.Context, ev model.IntegrityEvent) error {
	f.events <- ev
	return nil
}

// ─── Harness ────────────────────────────────────────────────────────

func sampleExam(id string, questions, timeLimit int) *model.Exam {
	qs := make([]model.Question, questions)
	for i := range qs {
		qs[i] = model.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Question:      fmt.Sprintf("Question %d?", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: i % model.OptionCount,
		}
	}
	return &model.Exam{
		ID:        id,
		CourseID:  "course-1",
		Title:     "Go Fundamentals",
		Questions: qs,
		TimeLimit: timeLimit,
		Tolerance: 5,
		Status:    model.ExamStatusActive,
	}
}

type harness struct {
	t         *testing.T
	ctrl      *Controller
	clock     *fakeClock
	env       *fakeEnv
	notes     *recordingNotifier
	attempts  *fakeAttempts
	feedback  *fakeFeedback
	integrity *fakeIntegrity
	cancel    context.CancelFunc
	result    chan runResult
}

type runResult struct {
	outcome *Outcome
	err     error
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.WriteTimeout = time.Second
	return cfg
}

func newHarness(t *testing.T, exam *model.Exam) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		clock:     newFakeClock(),
		env:       newFakeEnv(),
		notes:     &recordingNotifier{},
		attempts:  &fakeAttempts{},
		feedback:  newFakeFeedback(),
		integrity: &fakeIntegrity{events: make(chan model.IntegrityEvent, 16)},
		result:    make(chan runResult, 1),
	}
	exams := &fakeExams{
		exams:   map[string]*model.Exam{exam.ID: exam},
		courses: map[string]*model.Course{"course-1": {ID: "course-1", Name: "Go"}},
	}
	h.ctrl = New(Deps{
		Exams:     exams,
		Attempts:  h.attempts,
		Feedback:  h.feedback,
		Integrity: h.integrity,
		Env:       h.env,
		Notifier:  h.notes,
		Clock:     h.clock,
	}, testConfig(), zerolog.Nop())
	return h
}

// start runs Start and launches Run, returning once the watchdogs are armed.
func (h *harness) start(examID string) {
	h.t.Helper()
	if err := h.ctrl.Start(context.Background(), examID, Student{Email: "ana@example.com", Name: "Ana Perez"}); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	h.clock.mu.Lock()
	h.clock.settle = h.settle
	h.clock.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.t.Cleanup(cancel)
	go func() {
		out, err := h.ctrl.Run(ctx)
		h.result <- runResult{outcome: out, err: err}
	}()
	select {
	case <-h.clock.ready:
	case <-time.After(2 * time.Second):
		h.t.Fatal("ticker was never armed")
	}
}

// settle returns once the loop has handled every event sent before it.
// Snapshot queues behind them on the same channel.
func (h *harness) settle() {
	h.ctrl.Snapshot()
}

// signal delivers s and waits for the loop to handle it.
func (h *harness) signal(s Signal) {
	h.t.Helper()
	select {
	case h.env.signals <- s:
		h.settle()
	case <-h.ctrl.Done():
	case <-time.After(2 * time.Second):
		h.t.Fatalf("signal %q not consumed", s)
	}
}

func (h *harness) wait() runResult {
	h.t.Helper()
	select {
	case r := <-h.result:
		return r
	case <-time.After(2 * time.Second):
		h.t.Fatal("Run did not return")
		return runResult{}
	}
}
