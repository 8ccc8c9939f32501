package websocket

import (
	"sync"

	"github.com/stemsi/exstem-classroom/internal/session"
)

// Writer is what Surface needs to talk to the client.
type Writer interface {
	WriteTyped(v interface{}) error
}

// Surface is the socket-backed exam surface. It turns lockdown on when the
// session subscribes, forwards client signals while subscribed and turns
// lockdown off on release.
type Surface struct {
	w       Writer
	signals chan session.Signal

	mu       sync.Mutex
	active   bool
	released chan struct{}
}

func NewSurface(w Writer) *Surface {
	return &Surface{
		w:        w,
		signals:  make(chan session.Signal),
		released: make(chan struct{}),
	}
}

// Subscribe implements session.Environment.
func (s *Surface) Subscribe() (<-chan session.Signal, func()) {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	_ = s.w.WriteTyped(LockdownResponse{Event: EventLockdown, Enabled: true})

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			s.active = false
			close(s.released)
			s.mu.Unlock()
			_ = s.w.WriteTyped(LockdownResponse{Event: EventLockdown, Enabled: false})
		})
	}
	return s.signals, release
}

// Deliver forwards a client signal. It reports false for unknown signals.
// Signals that arrive outside a subscription are dropped.
func (s *Surface) Deliver(raw string) bool {
	sig, ok := ParseSignal(raw)
	if !ok {
		return false
	}
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return true
	}
	select {
	case s.signals <- sig:
	case <-s.released:
	}
	return true
}

// ParseSignal validates a signal name sent by the client.
func ParseSignal(raw string) (session.Signal, bool) {
	switch sig := session.Signal(raw); sig {
	case session.SignalHidden, session.SignalVisible,
		session.SignalCopy, session.SignalCut, session.SignalPaste, session.SignalContextMenu:
		return sig, true
	}
	return "", false
}

// Notifier writes session notices to the client.
func Notifier(w Writer) session.Notifier {
	return session.NotifierFunc(func(n session.Notice) {
		_ = w.WriteTyped(n)
	})
}
