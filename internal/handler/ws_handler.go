package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/middleware"
	"github.com/stemsi/exstem-classroom/internal/repository"
	"github.com/stemsi/exstem-classroom/internal/response"
	"github.com/stemsi/exstem-classroom/internal/session"
	ws "github.com/stemsi/exstem-classroom/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionDeps are shared by every exam session the handler opens.
type SessionDeps struct {
	Exams     session.ExamSource
	Attempts  session.AttemptStore
	Feedback  session.FeedbackDispatcher
	Integrity session.IntegrityRecorder
	Config    session.Config
}

// WSHandler runs live exam sessions over WebSocket. Hijacked connections are
// invisible to http.Server.Shutdown, so the handler tracks its own sessions.
type WSHandler struct {
	deps     SessionDeps
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	closing  bool
	stopping chan struct{}
	sessions sync.WaitGroup
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(deps SessionDeps, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		deps:     deps,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		stopping: make(chan struct{}),
	}
}

// Shutdown refuses new sessions, disconnects the open ones and waits until
// every submitted result has been written, or ctx ends. Students still
// answering lose only their unsaved in-memory progress.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if !h.closing {
		h.closing = true
		close(h.stopping)
	}
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("exam sessions still writing results: %w", ctx.Err())
	}
}

// track registers a session unless Shutdown has begun.
func (h *WSHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions.Add(1)
	return true
}

// ExamSession godoc
// WS /ws/v1/exams/:exam_id/session?ticket=...
// Starts the attempt, then relays student actions to the session controller
// and its notices back to the client until the attempt is recorded.
func (h *WSHandler) ExamSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if !h.track() {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrShuttingDown)
		return
	}
	defer h.sessions.Done()

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("exam_id", claims.ExamID).
		Str("student_email", claims.Subject).
		Logger()

	surface := ws.NewSurface(conn)
	ctrl := session.New(session.Deps{
		Exams:     h.deps.Exams,
		Attempts:  h.deps.Attempts,
		Feedback:  h.deps.Feedback,
		Integrity: h.deps.Integrity,
		Env:       surface,
		Notifier:  ws.Notifier(conn),
	}, h.deps.Config, h.log)

	student := session.Student{Email: claims.Subject, Name: claims.StudentName}
	if err := ctrl.Start(c.Request.Context(), claims.ExamID, student); err != nil {
		code := startErrorCode(err)
		wsLog.Warn().Err(err).Str("code", string(code)).Msg("Session start rejected")
		_ = conn.WriteError(string(code), response.GetMessage(code))
		conn.CloseNormal(string(code))
		return
	}

	wsLog = wsLog.With().Str("attempt_id", ctrl.AttemptID()).Logger()
	wsLog.Info().Msg("Student connected")

	// The session outlives the upgrade request; the socket closing ends it.
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-h.stopping:
			wsLog.Info().Msg("Disconnecting for shutdown")
			cancel()
			conn.CloseNormal("server shutting down")
		case <-runCtx.Done():
		}
	}()

	go func() {
		outcome, err := ctrl.Run(runCtx)
		if outcome != nil {
			wsLog.Info().Str("reason", string(outcome.Reason)).Str("score", outcome.ScoreText()).Msg("Session finished")
			conn.CloseNormal("submitted")
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			wsLog.Error().Err(err).Msg("Session ended with error")
		}
	}()

	for {
		var req ws.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.dispatch(ctrl, surface, conn, wsLog, req)
	}

	cancel()
	<-ctrl.Done()

	// A submission in flight keeps writing after the socket is gone.
	if err := ctrl.WaitWrites(context.Background()); err != nil {
		wsLog.Error().Err(err).Msg("Result write did not settle")
	}
}

func (h *WSHandler) dispatch(ctrl *session.Controller, surface *ws.Surface, conn *ws.Conn, log zerolog.Logger, req ws.Request) {
	switch req.Action {
	case ws.ActionSelectAnswer:
		if req.QuestionID == "" || req.Option == nil {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "question_id and option are required")
			return
		}
		ctrl.SelectAnswer(req.QuestionID, *req.Option)
	case ws.ActionNavigate:
		if req.Index == nil {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "index is required")
			return
		}
		ctrl.Navigate(*req.Index)
	case ws.ActionRequestSubmit:
		ctrl.RequestSubmit()
	case ws.ActionConfirmSubmit:
		ctrl.ConfirmSubmit()
	case ws.ActionCancelSubmit:
		ctrl.CancelSubmit()
	case ws.ActionDismissInactivity:
		ctrl.DismissInactivityWarning()
	case ws.ActionDismissVisibility:
		ctrl.DismissVisibilityWarning()
	case ws.ActionRetrySubmit:
		ctrl.RetrySubmit()
	case ws.ActionSignal:
		if !surface.Deliver(req.Signal) {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown signal: "+req.Signal)
		}
	case ws.ActionPing:
		_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
	default:
		log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
		_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
	}
}

func startErrorCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return response.ErrNotFound
	case errors.Is(err, session.ErrInvalidExam):
		return response.ErrNoQuestions
	case errors.Is(err, repository.ErrConflict):
		// Unique index on (examId, studentEmail): a second tab or a replayed ticket.
		return response.ErrAlreadyAttempted
	default:
		return response.ErrInternal
	}
}
