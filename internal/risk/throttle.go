package risk

import (
	"sync"
	"time"
)

// ApprovalThrottle caps approvals per instrument inside a rolling time
// window, throttling order flapping. Unlike a token bucket, the window
// is exact: the Nth approval only ages out of the budget once it falls
// outside the window entirely.
type ApprovalThrottle struct {
	window time.Duration
	limit  int

	mutex     sync.Mutex
	approvals map[string][]time.Time
}

// NewApprovalThrottle creates a rolling-window approval throttle
func NewApprovalThrottle(window time.Duration, limit int) *ApprovalThrottle {
	return &ApprovalThrottle{
		window:    window,
		limit:     limit,
		approvals: make(map[string][]time.Time),
	}
}

// TryAcquire consumes one approval slot for the symbol if the rolling
// window has capacity. It returns false, consuming nothing, when the
// budget is exhausted.
func (t *ApprovalThrottle) TryAcquire(symbol string, now time.Time) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	recent := t.prune(symbol, now)
	if len(recent) >= t.limit {
		return false
	}

	t.approvals[symbol] = append(recent, now)
	return true
}

// Used returns how many approval slots are currently consumed for the
// symbol within the rolling window.
func (t *ApprovalThrottle) Used(symbol string, now time.Time) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	recent := t.prune(symbol, now)
	t.approvals[symbol] = recent
	return len(recent)
}

func (t *ApprovalThrottle) prune(symbol string, now time.Time) []time.Time {
	cutoff := now.Add(-t.window)
	history := t.approvals[symbol]

	kept := history[:0]
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
