package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelectAnswer      Action = "select_answer"
	ActionNavigate          Action = "navigate"
	ActionRequestSubmit     Action = "request_submit"
	ActionConfirmSubmit     Action = "confirm_submit"
	ActionCancelSubmit      Action = "cancel_submit"
	ActionDismissInactivity Action = "dismiss_inactivity"
	ActionDismissVisibility Action = "dismiss_visibility"
	ActionRetrySubmit       Action = "retry_submit"
	ActionSignal            Action = "signal"
	ActionPing              Action = "ping"
)

// Request carries every client action. Only the fields of the given
// action are read.
type Request struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"` // select_answer
	Option     *int   `json:"option,omitempty"`      // select_answer
	Index      *int   `json:"index,omitempty"`       // navigate
	Signal     string `json:"signal,omitempty"`      // signal
}

// ─── Events (Server → Client) ───────────────────────────────────────
//
// Session notices are written as-is; their "event" field names them.

type Event string

const (
	EventError    Event = "error"
	EventPong     Event = "pong"
	EventLockdown Event = "lockdown"
)

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// LockdownResponse tells the client to suppress the clipboard and context
// menu and to start reporting visibility changes, or to stop doing so.
type LockdownResponse struct {
	Event   Event `json:"event"`
	Enabled bool  `json:"enabled"`
}
