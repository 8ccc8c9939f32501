package session

import "time"

// countdown is the exam timer, decremented once per tick.
type countdown struct {
	remaining int
}

// tick consumes one second and reports whether time has run out.
func (c *countdown) tick() bool {
	if c.remaining <= 1 {
		c.remaining = 0
		return true
	}
	c.remaining--
	return false
}

type idleVerdict int

const (
	idleOK idleVerdict = iota
	idleWarn
	idleExpired
)

// inactivityWatch tracks time since the last recorded activity. The warning
// fires once per crossing of warnAfter and re-arms on activity.
type inactivityWatch struct {
	warnAfter    time.Duration
	limit        time.Duration
	lastActivity time.Time
	warned       bool
}

func (w *inactivityWatch) check(now time.Time) idleVerdict {
	idle := w.idle(now)
	if idle >= w.limit {
		return idleExpired
	}
	if idle >= w.warnAfter && !w.warned {
		w.warned = true
		return idleWarn
	}
	return idleOK
}

func (w *inactivityWatch) idle(now time.Time) time.Duration {
	if d := now.Sub(w.lastActivity); d > 0 {
		return d
	}
	return 0
}

// touch records activity and reports whether a shown warning was cleared.
func (w *inactivityWatch) touch(now time.Time) bool {
	w.lastActivity = now
	cleared := w.warned
	w.warned = false
	return cleared
}

// visibilityWatch counts debounced hidden transitions.
type visibilityWatch struct {
	debounce     time.Duration
	limit        int
	count        int
	lastAccepted time.Time
	accepted     bool
}

// hidden registers a hidden transition. counted is false when the signal
// falls inside the debounce window of the previous accepted one.
func (w *visibilityWatch) hidden(now time.Time) (counted, tripped bool) {
	if w.accepted && now.Sub(w.lastAccepted) < w.debounce {
		return false, false
	}
	w.accepted = true
	w.lastAccepted = now
	w.count++
	return true, w.count >= w.limit
}
