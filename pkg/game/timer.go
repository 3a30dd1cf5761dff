package game

import (
	"sync"
	"time"
)

// roundTimer is a cancellable deferred action. Cancelling after the action
// has started does not stop it, so actions must re-check session state under
// the session lock before acting.
type roundTimer struct {
	lock  sync.Mutex
	timer *time.Timer
}

// Schedule replaces any pending action with f, run after d.
func (t *roundTimer) Schedule(d time.Duration, f func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, f)
}

// Cancel stops the pending action, if any. It reports whether an action was
// stopped before it ran.
func (t *roundTimer) Cancel() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.timer == nil {
		return false
	}
	stopped := t.timer.Stop()
	t.timer = nil
	return stopped
}
