package session

import "github.com/stemsi/exstem-classroom/internal/model"

// Signal is a host-environment event reported by the exam surface.
type Signal string

const (
	SignalHidden      Signal = "hidden"
	SignalVisible     Signal = "visible"
	SignalCopy        Signal = "copy"
	SignalCut         Signal = "cut"
	SignalPaste       Signal = "paste"
	SignalContextMenu Signal = "contextmenu"
)

// IntegrityKind maps clipboard and context-menu signals to their recorded kind.
func (s Signal) IntegrityKind() (model.IntegrityKind, bool) {
	switch s {
	case SignalCopy:
		return model.IntegrityCopy, true
	case SignalCut:
		return model.IntegrityCut, true
	case SignalPaste:
		return model.IntegrityPaste, true
	case SignalContextMenu:
		return model.IntegrityContextMenu, true
	}
	return "", false
}

// Environment is the host surface the controller subscribes to while an
// exam is live. Subscribe puts the surface into lockdown (clipboard and
// context menu suppressed) and starts delivering signals; the returned
// release func undoes both. Release must be safe to call more than once.
type Environment interface {
	Subscribe() (signals <-chan Signal, release func())
}

// NoticeKind names a message pushed to the presentation layer.
type NoticeKind string

const (
	NoticeState             NoticeKind = "state"
	NoticeTick              NoticeKind = "tick"
	NoticeNavigate          NoticeKind = "navigate"
	NoticeAnswerSaved       NoticeKind = "answer_saved"
	NoticeConfirmSubmit     NoticeKind = "confirm_submit"
	NoticeInactivityWarning NoticeKind = "inactivity_warning"
	NoticeInactivityCleared NoticeKind = "inactivity_cleared"
	NoticeVisibilityWarning NoticeKind = "visibility_warning"
	NoticeAutoSubmitting    NoticeKind = "auto_submitting"
	NoticeSubmitting        NoticeKind = "submitting"
	NoticeSubmitFailed      NoticeKind = "submit_failed"
	NoticeRedirect          NoticeKind = "redirect"
)

// Notice is a render instruction for the presentation layer.
type Notice struct {
	Kind NoticeKind `json:"event"`

	ExamID    string                     `json:"exam_id,omitempty"`
	Title     string                     `json:"title,omitempty"`
	Questions []model.QuestionForStudent `json:"questions,omitempty"`
	Reference []model.CourseSession      `json:"reference,omitempty"`

	// CurrentQuestion and IdleSeconds are pointers because zero is a
	// meaningful value for both.
	Remaining       int  `json:"remaining_seconds,omitempty"`
	CurrentQuestion *int `json:"current_question,omitempty"`
	Answered        int  `json:"answered,omitempty"`
	Total           int  `json:"total,omitempty"`
	IdleSeconds     *int `json:"idle_seconds,omitempty"`
	Count           int  `json:"count,omitempty"`
	Limit           int  `json:"limit,omitempty"`

	Reason model.SubmissionReason `json:"reason,omitempty"`
	Score  string                 `json:"score,omitempty"`
}

// Notifier receives notices from the controller's event loop. Notify is
// called from a single goroutine and must not block for long.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
