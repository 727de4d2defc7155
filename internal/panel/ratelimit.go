package panel

import (
	"sync"
	"time"
)

// ============================================================================
// ADMISSION WINDOW
// ============================================================================

// Window is the trailing-window request log shared by both surfaces. The
// panel enforces one account-wide quota, so there is exactly one Window per
// Client. TryAcquire checks capacity and stamps the slot in one critical
// section, so concurrent callers can never dispatch past the ceiling.
type Window struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time

	now func() time.Time // injectable for tests
}

func NewWindow(maxRequests int, window time.Duration) *Window {
	return &Window{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// TryAcquire prunes expired stamps and, if capacity remains, stamps one
// slot. Check and insert share the lock: a request in flight occupies its
// slot from the moment it is admitted, never leaving a gap for concurrent
// callers to slip through. A rejected call is not recorded, so admission
// failures cannot amplify the lockout. Returns the stamp count after the
// call alongside the verdict.
func (w *Window) TryAcquire() (bool, int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	if len(w.stamps) >= w.maxRequests {
		return false, len(w.stamps)
	}
	w.stamps = append(w.stamps, now)
	return true, len(w.stamps)
}

// InFlight returns the current stamp count after pruning.
func (w *Window) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.now())
	return len(w.stamps)
}

// prune drops stamps older than now - window. Caller holds the lock.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
