// Package session runs one student's timed exam attempt.
//
// A Controller owns all ephemeral attempt state inside a single event loop.
// The countdown, the inactivity watchdog and the visibility counter only
// produce events; the loop is the only consumer and the only writer of the
// phase field, so the transition into Submitting happens exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/repository"
	"github.com/stemsi/exstem-classroom/internal/scoring"
)

// Phase is the controller's lifecycle state.
type Phase string

const (
	PhaseLoading      Phase = "loading"
	PhaseInProgress   Phase = "in_progress"
	PhaseSubmitting   Phase = "submitting"
	PhaseSubmitFailed Phase = "submit_failed"
	PhaseTerminated   Phase = "terminated"
)

// ExamSource reads exam definitions and their owning course.
type ExamSource interface {
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	GetCourse(ctx context.Context, courseID string) (*model.Course, error)
}

// AttemptStore persists the attempt record.
type AttemptStore interface {
	Create(ctx context.Context, examID, studentEmail, studentName string) (string, error)
	AppendResult(ctx context.Context, attemptID string, res model.AttemptResult) error
}

// FeedbackDispatcher hands a submitted attempt to the feedback generator.
type FeedbackDispatcher interface {
	Dispatch(ctx context.Context, req model.FeedbackRequest) error
}

// IntegrityRecorder stores anti-cheat signals. Optional.
type IntegrityRecorder interface {
	Record(ctx context.Context, ev model.IntegrityEvent) error
}

// Deps are the collaborators of one controller.
type Deps struct {
	Exams     ExamSource
	Attempts  AttemptStore
	Feedback  FeedbackDispatcher
	Integrity IntegrityRecorder
	Env       Environment
	Notifier  Notifier
	Clock     Clock
}

// Config tunes the watchdogs and the submission retry.
type Config struct {
	TickInterval       time.Duration
	InactivityWarning  time.Duration
	InactivityLimit    time.Duration
	VisibilityDebounce time.Duration
	// ViolationLimit is fixed at 3 in production; it does not read exam.Tolerance.
	ViolationLimit int
	RetryBackoff   time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns the production watchdog settings.
func DefaultConfig() Config {
	return Config{
		TickInterval:       time.Second,
		InactivityWarning:  240 * time.Second,
		InactivityLimit:    300 * time.Second,
		VisibilityDebounce: 2 * time.Second,
		ViolationLimit:     3,
		RetryBackoff:       1500 * time.Millisecond,
		WriteTimeout:       15 * time.Second,
	}
}

// Student identifies who is taking the exam.
type Student struct {
	Email string
	Name  string
}

// State is a read-only snapshot of the controller.
type State struct {
	Phase                  Phase                  `json:"phase"`
	ExamID                 string                 `json:"exam_id"`
	AttemptID              string                 `json:"attempt_id"`
	CurrentQuestion        int                    `json:"current_question"`
	Answers                model.Answers          `json:"answers"`
	RemainingSeconds       int                    `json:"remaining_seconds"`
	VisibilityWarnings     int                    `json:"visibility_warnings"`
	BlockedClipboard       int                    `json:"blocked_clipboard"`
	InactivityWarningShown bool                   `json:"inactivity_warning_shown"`
	VisibilityModalShown   bool                   `json:"visibility_modal_shown"`
	ConfirmSubmitShown     bool                   `json:"confirm_submit_shown"`
	Reason                 model.SubmissionReason `json:"reason,omitempty"`
	Score                  *float64               `json:"score,omitempty"`
}

// Outcome is what Run returns once the attempt has been recorded.
type Outcome struct {
	AttemptID string
	Reason    model.SubmissionReason
	Score     float64
}

// ScoreText is the two-decimal score carried to the result view.
func (o Outcome) ScoreText() string {
	return scoring.Format(o.Score)
}

// Controller is the single authority over a live exam attempt.
type Controller struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger

	exam      *model.Exam
	course    *model.Course
	student   Student
	attemptID string
	startedAt time.Time

	events   chan any
	done     chan struct{}
	doneOnce sync.Once
	// writes counts result writes and feedback dispatches still running off
	// the loop. They outlive Run on purpose.
	writes sync.WaitGroup

	// Loop-owned state. Only the Run goroutine touches it once Run starts.
	phase            Phase
	current          int
	answers          model.Answers
	timer            countdown
	idle             inactivityWatch
	visibility       visibilityWatch
	blockedClipboard int
	visibilityModal  bool
	confirming       bool
	pending          *model.AttemptResult
	outcome          *Outcome

	final State
}

type (
	selectAnswerIntent struct {
		questionID string
		option     int
	}
	navigateIntent          struct{ index int }
	requestSubmitIntent     struct{}
	confirmSubmitIntent     struct{}
	cancelSubmitIntent      struct{}
	dismissInactivityIntent struct{}
	dismissVisibilityIntent struct{}
	retrySubmitIntent       struct{}
	snapshotRequest         struct{ reply chan State }
	persistDone             struct{ err error }
)

// New builds a controller in the Loading phase.
func New(deps Deps, cfg Config, log zerolog.Logger) *Controller {
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.Notifier == nil {
		deps.Notifier = NotifierFunc(func(Notice) {})
	}
	return &Controller{
		deps:    deps,
		cfg:     cfg,
		log:     log.With().Str("component", "exam_session").Logger(),
		events:  make(chan any),
		done:    make(chan struct{}),
		phase:   PhaseLoading,
		answers: model.Answers{},
	}
}

// Start loads the exam, creates the attempt record and seeds the countdown.
// The caller must already have passed the access gate for this student.
func (c *Controller) Start(ctx context.Context, examID string, student Student) error {
	if c.phase != PhaseLoading {
		return fmt.Errorf("start: controller is %s", c.phase)
	}

	exam, err := c.deps.Exams.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get exam: %w", err)
	}
	if len(exam.Questions) == 0 {
		return ErrInvalidExam
	}

	// Open-book material. Never affects scoring, so failures are tolerated.
	if exam.CourseID != "" {
		course, err := c.deps.Exams.GetCourse(ctx, exam.CourseID)
		if err != nil {
			c.log.Warn().Err(err).Str("course_id", exam.CourseID).Msg("Course material unavailable")
		} else {
			c.course = course
		}
	}

	attemptID, err := c.deps.Attempts.Create(ctx, exam.ID, student.Email, student.Name)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}

	now := c.deps.Clock.Now()
	c.exam = exam
	c.student = student
	c.attemptID = attemptID
	c.startedAt = now
	c.timer = countdown{remaining: exam.TimeLimitSeconds()}
	c.idle = inactivityWatch{
		warnAfter:    c.cfg.InactivityWarning,
		limit:        c.cfg.InactivityLimit,
		lastActivity: now,
	}
	c.visibility = visibilityWatch{
		debounce: c.cfg.VisibilityDebounce,
		limit:    c.cfg.ViolationLimit,
	}
	c.phase = PhaseInProgress

	c.log = c.log.With().
		Str("exam_id", exam.ID).
		Str("attempt_id", attemptID).
		Str("student_email", student.Email).
		Logger()
	c.log.Info().Int("questions", len(exam.Questions)).Int("time_limit", exam.TimeLimit).Msg("Attempt started")
	return nil
}

// AttemptID returns the attempt created by Start.
func (c *Controller) AttemptID() string { return c.attemptID }

// Done is closed when the event loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run arms the watchdogs and processes events until the attempt is recorded
// or ctx is cancelled. Ticker and environment subscription are released on
// every exit path.
func (c *Controller) Run(ctx context.Context) (*Outcome, error) {
	if c.phase != PhaseInProgress {
		c.closeDone()
		return nil, ErrNotStarted
	}

	ticker := c.deps.Clock.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	tickC := ticker.C()

	var signals <-chan Signal
	if c.deps.Env != nil {
		var release func()
		signals, release = c.deps.Env.Subscribe()
		defer release()
	}

	defer c.closeDone()
	defer func() { c.final = c.snapshot() }()

	c.notify(c.initialNotice())

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Str("phase", string(c.phase)).Msg("Session torn down")
			return c.outcome, ctx.Err()

		case now := <-tickC:
			c.onTick(ctx, now)

		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			c.onSignal(ctx, sig)

		case ev := <-c.events:
			c.onEvent(ctx, ev)
		}

		switch c.phase {
		case PhaseSubmitting, PhaseSubmitFailed, PhaseTerminated:
			// Watchdogs never fire again once a submission has begun.
			if tickC != nil {
				ticker.Stop()
				tickC = nil
			}
		}
		if c.phase == PhaseTerminated {
			return c.outcome, nil
		}
	}
}

// SelectAnswer records option for questionID. Last write wins.
func (c *Controller) SelectAnswer(questionID string, option int) {
	c.send(selectAnswerIntent{questionID: questionID, option: option})
}

// Navigate moves the current question pointer.
func (c *Controller) Navigate(index int) { c.send(navigateIntent{index: index}) }

// RequestSubmit opens the confirmation step for a manual submission.
func (c *Controller) RequestSubmit() { c.send(requestSubmitIntent{}) }

// ConfirmSubmit submits with reason manual if the confirmation step is open.
func (c *Controller) ConfirmSubmit() { c.send(confirmSubmitIntent{}) }

// CancelSubmit closes the confirmation step.
func (c *Controller) CancelSubmit() { c.send(cancelSubmitIntent{}) }

// DismissInactivityWarning counts as activity.
func (c *Controller) DismissInactivityWarning() { c.send(dismissInactivityIntent{}) }

// DismissVisibilityWarning closes the n/3 warning modal.
func (c *Controller) DismissVisibilityWarning() { c.send(dismissVisibilityIntent{}) }

// RetrySubmit re-attempts the result write after a reported failure.
func (c *Controller) RetrySubmit() { c.send(retrySubmitIntent{}) }

// Snapshot returns the current state. After the loop exits it returns the
// final state.
func (c *Controller) Snapshot() State {
	reply := make(chan State, 1)
	select {
	case c.events <- snapshotRequest{reply: reply}:
		return <-reply
	case <-c.done:
		return c.final
	}
}

// WaitWrites blocks until the result write and feedback dispatch started by
// a submission have returned, or ctx ends. Call it after Done is closed.
func (c *Controller) WaitWrites(ctx context.Context) error {
	settled := make(chan struct{})
	go func() {
		c.writes.Wait()
		close(settled)
	}()
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Controller) send(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) notify(n Notice) {
	c.deps.Notifier.Notify(n)
}

func (c *Controller) initialNotice() Notice {
	n := Notice{
		Kind:      NoticeState,
		ExamID:    c.exam.ID,
		Title:     c.exam.Title,
		Remaining: c.timer.remaining,
		Total:     len(c.exam.Questions),
		Limit:     c.cfg.ViolationLimit,
	}
	n.Questions = make([]model.QuestionForStudent, 0, len(c.exam.Questions))
	for _, q := range c.exam.Questions {
		n.Questions = append(n.Questions, q.ForStudent())
	}
	if c.course != nil {
		n.Reference = c.course.DocumentedSessions()
	}
	return n
}

func (c *Controller) onEvent(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case snapshotRequest:
		e.reply <- c.snapshot()

	case selectAnswerIntent:
		if c.phase != PhaseInProgress {
			return
		}
		c.touch()
		c.answers[e.questionID] = e.option
		c.notify(Notice{Kind: NoticeAnswerSaved, Answered: len(c.answers), Total: len(c.exam.Questions)})

	case navigateIntent:
		if c.phase != PhaseInProgress || e.index < 0 || e.index >= len(c.exam.Questions) {
			return
		}
		c.current = e.index
		c.notify(Notice{Kind: NoticeNavigate, CurrentQuestion: intPtr(e.index)})

	case requestSubmitIntent:
		if c.phase != PhaseInProgress {
			return
		}
		c.confirming = true
		c.notify(Notice{Kind: NoticeConfirmSubmit, Answered: c.answeredCount(), Total: len(c.exam.Questions)})

	case confirmSubmitIntent:
		if !c.confirming {
			return
		}
		c.confirming = false
		c.submit(ctx, model.ReasonManual)

	case cancelSubmitIntent:
		c.confirming = false

	case dismissInactivityIntent:
		if c.phase == PhaseInProgress {
			c.touch()
		}

	case dismissVisibilityIntent:
		c.visibilityModal = false

	case retrySubmitIntent:
		if c.phase != PhaseSubmitFailed || c.pending == nil {
			return
		}
		c.phase = PhaseSubmitting
		c.notify(Notice{Kind: NoticeSubmitting, Reason: c.pending.SubmissionReason})
		c.persist(ctx, *c.pending)

	case persistDone:
		c.onPersisted(e.err)
	}
}

func (c *Controller) onTick(ctx context.Context, now time.Time) {
	if c.phase != PhaseInProgress {
		return
	}

	if c.timer.tick() {
		c.submit(ctx, model.ReasonTimeout)
		return
	}

	idle := c.idle.idle(now)
	c.notify(Notice{Kind: NoticeTick, Remaining: c.timer.remaining, IdleSeconds: intPtr(int(idle / time.Second))})

	switch c.idle.check(now) {
	case idleExpired:
		c.submit(ctx, model.ReasonInactivity)
	case idleWarn:
		c.log.Debug().Dur("idle", idle).Msg("Inactivity warning")
		c.notify(Notice{
			Kind:        NoticeInactivityWarning,
			IdleSeconds: intPtr(int(idle / time.Second)),
			Remaining:   int((c.cfg.InactivityLimit - idle) / time.Second),
		})
	}
}

func (c *Controller) onSignal(ctx context.Context, sig Signal) {
	if c.phase != PhaseInProgress {
		return
	}
	now := c.deps.Clock.Now()

	if kind, ok := sig.IntegrityKind(); ok {
		c.blockedClipboard++
		c.record(model.IntegrityEvent{Kind: kind, RecordedAt: now})
		return
	}
	if sig != SignalHidden {
		return
	}

	counted, tripped := c.visibility.hidden(now)
	if !counted {
		return
	}
	count := c.visibility.count
	c.record(model.IntegrityEvent{Kind: model.IntegrityVisibility, Count: count, RecordedAt: now})
	c.log.Warn().Int("count", count).Msg("Exam surface hidden")

	if tripped {
		c.visibilityModal = false
		c.notify(Notice{Kind: NoticeAutoSubmitting, Reason: model.ReasonVisibilityViolations, Count: count, Limit: c.cfg.ViolationLimit})
		c.submit(ctx, model.ReasonVisibilityViolations)
		return
	}
	c.visibilityModal = true
	c.notify(Notice{Kind: NoticeVisibilityWarning, Count: count, Limit: c.cfg.ViolationLimit})
}

// submit is the single submission path. The phase check and the switch to
// Submitting happen synchronously, before any I/O, so later triggers are
// no-ops.
func (c *Controller) submit(ctx context.Context, reason model.SubmissionReason) {
	if c.phase != PhaseInProgress {
		return
	}
	c.phase = PhaseSubmitting
	c.confirming = false

	frozen := c.answers.Clone()
	grade := scoring.Grade(c.exam.Questions, frozen)
	res := model.AttemptResult{
		Answers:            frozen,
		Score:              grade.Score,
		SubmittedAt:        c.deps.Clock.Now(),
		AutoSubmitted:      reason != model.ReasonManual,
		SubmissionReason:   reason,
		VisibilityWarnings: c.visibility.count,
	}
	c.pending = &res

	c.log.Info().
		Str("reason", string(reason)).
		Int("correct", grade.Correct).
		Int("total", grade.Total).
		Float64("score", grade.Score).
		Msg("Submitting attempt")

	c.notify(Notice{Kind: NoticeSubmitting, Reason: reason})
	c.persist(ctx, res)
}

// persist runs the authoritative write off the loop, retrying once after
// RetryBackoff. The write is detached from ctx so navigating away does not
// abort it.
func (c *Controller) persist(ctx context.Context, res model.AttemptResult) {
	writeCtx := context.WithoutCancel(ctx)
	attemptID := c.attemptID
	examID := c.exam.ID
	email := c.student.Email

	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		err := c.writeResult(writeCtx, attemptID, res)
		if err == nil {
			c.dispatchFeedback(writeCtx, model.FeedbackRequest{
				AttemptID:    attemptID,
				ExamID:       examID,
				StudentEmail: email,
				Answers:      res.Answers,
				Score:        res.Score,
			})
		}
		select {
		case c.events <- persistDone{err: err}:
		case <-c.done:
		}
	}()
}

func (c *Controller) writeResult(ctx context.Context, attemptID string, res model.AttemptResult) error {
	var err error
	for try := 0; try < 2; try++ {
		if try > 0 {
			c.log.Warn().Err(err).Dur("backoff", c.cfg.RetryBackoff).Msg("Result write failed, retrying")
			time.Sleep(c.cfg.RetryBackoff)
		}
		wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
		err = c.deps.Attempts.AppendResult(wctx, attemptID, res)
		cancel()
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrWriteFailure, err)
}

// dispatchFeedback never blocks the redirect and is never retried here.
func (c *Controller) dispatchFeedback(ctx context.Context, req model.FeedbackRequest) {
	if c.deps.Feedback == nil {
		return
	}
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		fctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
		if err := c.deps.Feedback.Dispatch(fctx, req); err != nil {
			c.log.Error().Err(err).Msg("Feedback dispatch failed")
		}
	}()
}

func (c *Controller) onPersisted(err error) {
	if c.phase != PhaseSubmitting {
		return
	}
	if err != nil {
		c.phase = PhaseSubmitFailed
		c.log.Error().Err(err).Msg("Result write failed twice")
		c.notify(Notice{Kind: NoticeSubmitFailed, Reason: c.pending.SubmissionReason})
		return
	}

	c.phase = PhaseTerminated
	c.outcome = &Outcome{
		AttemptID: c.attemptID,
		Reason:    c.pending.SubmissionReason,
		Score:     c.pending.Score,
	}
	c.log.Info().Str("reason", string(c.outcome.Reason)).Msg("Attempt recorded")
	c.notify(Notice{
		Kind:   NoticeRedirect,
		ExamID: c.exam.ID,
		Reason: c.outcome.Reason,
		Score:  c.outcome.ScoreText(),
	})
}

func (c *Controller) touch() {
	if c.idle.touch(c.deps.Clock.Now()) {
		c.notify(Notice{Kind: NoticeInactivityCleared})
	}
}

func (c *Controller) record(ev model.IntegrityEvent) {
	if c.deps.Integrity == nil {
		return
	}
	ev.AttemptID = c.attemptID
	ev.ExamID = c.exam.ID
	ev.StudentEmail = c.student.Email
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.deps.Integrity.Record(ctx, ev); err != nil {
			c.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("Integrity event dropped")
		}
	}()
}

func (c *Controller) answeredCount() int {
	n := 0
	for _, q := range c.exam.Questions {
		if _, ok := c.answers[q.ID]; ok {
			n++
		}
	}
	return n
}

func (c *Controller) snapshot() State {
	s := State{
		Phase:                  c.phase,
		AttemptID:              c.attemptID,
		CurrentQuestion:        c.current,
		Answers:                c.answers.Clone(),
		RemainingSeconds:       c.timer.remaining,
		VisibilityWarnings:     c.visibility.count,
		BlockedClipboard:       c.blockedClipboard,
		InactivityWarningShown: c.idle.warned,
		VisibilityModalShown:   c.visibilityModal,
		ConfirmSubmitShown:     c.confirming,
	}
	if c.exam != nil {
		s.ExamID = c.exam.ID
	}
	if c.pending != nil {
		s.Reason = c.pending.SubmissionReason
		score := c.pending.Score
		s.Score = &score
	}
	return s
}

func intPtr(v int) *int { return &v }
