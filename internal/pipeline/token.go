package pipeline

import "sync/atomic"

// CancelToken marks a background run as cancelled. The driver checks it
// before every persisted write, which is what makes pause effective: an
// outbound call already in flight cannot be interrupted, but its result is
// discarded instead of written.
type CancelToken struct {
	cancelled atomic.Bool
}

// Cancel marks the token. Safe to call more than once.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether the run has been cancelled.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}
