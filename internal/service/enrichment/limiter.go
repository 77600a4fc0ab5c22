package enrichment

import "time"

// Limiter admits at most one call per spacing window, measured between call
// starts, and holds a single pending-retry reservation.
type Limiter struct {
	spacing   time.Duration
	lastStart time.Time
	started   bool
	pending   bool
}

// NewLimiter creates a limiter with the given minimum spacing.
func NewLimiter(spacing time.Duration) *Limiter {
	return &Limiter{spacing: spacing}
}

// Admit reports whether a call may start at now and records the start if so.
// A call in flight is never admitted alongside another.
func (l *Limiter) Admit(now time.Time, inFlight bool) bool {
	if inFlight {
		return false
	}
	if l.started && now.Sub(l.lastStart) < l.spacing {
		return false
	}
	l.started = true
	l.lastStart = now
	return true
}

// Reserve claims the pending-retry slot. It reports false when a retry is
// already pending.
func (l *Limiter) Reserve() bool {
	if l.pending {
		return false
	}
	l.pending = true
	return true
}

// Release frees the pending-retry slot.
func (l *Limiter) Release() { l.pending = false }

// Pending reports whether a retry is reserved.
func (l *Limiter) Pending() bool { return l.pending }
