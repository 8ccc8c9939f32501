package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/llm"
	"github.com/stemsi/exstem-classroom/internal/middleware"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/repository"
	"github.com/stemsi/exstem-classroom/internal/response"
	"github.com/stemsi/exstem-classroom/internal/service"
	"github.com/stemsi/exstem-classroom/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFailWithError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrInvalidAccessCode, http.StatusNotFound, response.ErrInvalidAccessCode},
		{fmt.Errorf("wrapped: %w", service.ErrAlreadyAttempted), http.StatusConflict, response.ErrAlreadyAttempted},
		{&llm.QuotaError{RetryAfter: 60 * time.Second}, http.StatusTooManyRequests, response.ErrQuotaExceeded},
		{fmt.Errorf("%w: bad json", llm.ErrMalformedResponse), http.StatusBadGateway, response.ErrMalformedResponse},
		{repository.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
		{errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		failWithError(c, tt.err)

		var body response.Response
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if w.Code != tt.status || body.Error == nil || body.Error.Code != tt.code {
			t.Errorf("%v: status %d code %+v", tt.err, w.Code, body.Error)
		}
		if tt.code == response.ErrQuotaExceeded && w.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
		}
	}
}

type stubExams struct{ exam *model.Exam }

func (s stubExams) GetExam(_ context.Context, id string) (*model.Exam, error) {
	if s.exam == nil || s.exam.ID != id {
		return nil, repository.ErrNotFound
	}
	return s.exam, nil
}

func (stubExams) GetCourse(context.Context, string) (*model.Course, error) {
	return nil, repository.ErrNotFound
}

type stubAttempts struct {
	mu      sync.Mutex
	results []model.AttemptResult
	taken   bool
	// entered is signalled and gate awaited by AppendResult when set.
	entered chan struct{}
	gate    chan struct{}
}

func (s *stubAttempts) Create(context.Context, string, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken {
		return "", fmt.Errorf("%w: attempts_exam_student", repository.ErrConflict)
	}
	s.taken = true
	return "att-1", nil
}

func (s *stubAttempts) AppendResult(_ context.Context, _ string, res model.AttemptResult) error {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return nil
}

func sessionServer(t *testing.T, attempts *stubAttempts) (*httptest.Server, *service.AuthService, *WSHandler) {
	t.Helper()
	auth := service.NewAuthService(&config.Config{JWTSecret: "s", TicketExpiry: time.Minute}, nil, nil)

	cfg := session.DefaultConfig()
	cfg.TickInterval = time.Hour

	exam := &model.Exam{
		ID: "exam-1", Title: "Quiz", TimeLimit: 10, Status: model.ExamStatusActive,
		Questions: []model.Question{
			{ID: "q1", Question: "?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 2},
			{ID: "q2", Question: "?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 0},
		},
	}
	h := NewWSHandler(SessionDeps{Exams: stubExams{exam}, Attempts: attempts, Config: cfg}, zerolog.Nop(), nil)

	r := gin.New()
	r.GET("/ws/v1/exams/:exam_id/session", middleware.RequireExamTicket(auth), h.ExamSession)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, auth, h
}

func dial(t *testing.T, srv *httptest.Server, ticket string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exams/exam-1/session?ticket=" + ticket
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first message whose event equals want.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if msg["event"] == want {
			return msg
		}
	}
}

func TestExamSessionOverWebSocket(t *testing.T) {
	attempts := &stubAttempts{}
	srv, auth, _ := sessionServer(t, attempts)
	ticket, _, err := auth.IssueExamTicket("exam-1", "ana@uni.edu", "Ana Lopez")
	if err != nil {
		t.Fatal(err)
	}
	conn := dial(t, srv, ticket)

	if msg := readUntil(t, conn, "lockdown"); msg["enabled"] != true {
		t.Errorf("lockdown = %v", msg)
	}
	state := readUntil(t, conn, "state")
	if qs, _ := state["questions"].([]any); len(qs) != 2 {
		t.Fatalf("state questions = %v", state["questions"])
	}
	if strings.Contains(fmt.Sprint(state), "correctAnswer") {
		t.Error("answer key leaked to the client")
	}

	send := func(v any) {
		if err := conn.WriteJSON(v); err != nil {
			t.Fatal(err)
		}
	}
	send(map[string]any{"action": "ping"})
	readUntil(t, conn, "pong")

	send(map[string]any{"action": "select_answer", "question_id": "q1", "option": 2})
	readUntil(t, conn, "answer_saved")

	send(map[string]any{"action": "signal", "signal": "teleport"})
	readUntil(t, conn, "error")

	send(map[string]any{"action": "request_submit"})
	readUntil(t, conn, "confirm_submit")
	send(map[string]any{"action": "confirm_submit"})

	redirect := readUntil(t, conn, "redirect")
	if redirect["score"] != "2.50" || redirect["reason"] != "manual" {
		t.Errorf("redirect = %v", redirect)
	}
	if msg := readUntil(t, conn, "lockdown"); msg["enabled"] != false {
		t.Errorf("lockdown after submit = %v", msg)
	}

	attempts.mu.Lock()
	defer attempts.mu.Unlock()
	if len(attempts.results) != 1 || attempts.results[0].Answers["q1"] != 2 {
		t.Errorf("results = %+v", attempts.results)
	}
}

func TestExamSessionRejectsSecondAttempt(t *testing.T) {
	attempts := &stubAttempts{taken: true}
	srv, auth, _ := sessionServer(t, attempts)
	ticket, _, err := auth.IssueExamTicket("exam-1", "ana@uni.edu", "Ana Lopez")
	if err != nil {
		t.Fatal(err)
	}
	conn := dial(t, srv, ticket)

	msg := readUntil(t, conn, "error")
	if msg["code"] != string(response.ErrAlreadyAttempted) {
		t.Errorf("error = %v", msg)
	}
}

func TestShutdownWaitsForResultWrite(t *testing.T) {
	attempts := &stubAttempts{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	srv, auth, h := sessionServer(t, attempts)
	ticket, _, err := auth.IssueExamTicket("exam-1", "ana@uni.edu", "Ana Lopez")
	if err != nil {
		t.Fatal(err)
	}
	conn := dial(t, srv, ticket)
	readUntil(t, conn, "state")

	for _, v := range []map[string]any{
		{"action": "select_answer", "question_id": "q1", "option": 2},
		{"action": "request_submit"},
		{"action": "confirm_submit"},
	} {
		if err := conn.WriteJSON(v); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-attempts.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("result write never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Shutdown(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Shutdown returned %v while a result write was held", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(attempts.gate)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return after the write settled")
	}

	attempts.mu.Lock()
	if len(attempts.results) != 1 || attempts.results[0].Answers["q1"] != 2 {
		t.Errorf("results = %+v", attempts.results)
	}
	attempts.mu.Unlock()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exams/exam-1/session?ticket=" + ticket
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("session accepted after shutdown")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("dial after shutdown: resp = %v, err = %v", resp, err)
	}
}

func TestShutdownTimesOutOnStuckWrite(t *testing.T) {
	attempts := &stubAttempts{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	defer close(attempts.gate)
	srv, auth, h := sessionServer(t, attempts)
	ticket, _, err := auth.IssueExamTicket("exam-1", "ana@uni.edu", "Ana Lopez")
	if err != nil {
		t.Fatal(err)
	}
	conn := dial(t, srv, ticket)
	readUntil(t, conn, "state")
	for _, v := range []map[string]any{{"action": "request_submit"}, {"action": "confirm_submit"}} {
		if err := conn.WriteJSON(v); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-attempts.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("result write never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := h.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown = %v, want deadline exceeded", err)
	}
}
