package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Budget caps admissions to MaxCalls per rolling Window.
type Budget struct {
	MaxCalls int
	Window   time.Duration
}

// SlidingWindow admits a caller only while fewer than MaxCalls admissions
// fall inside the trailing Window. The purge-then-admit sequence runs under
// one lock, so the trailing-window count can never exceed MaxCalls no
// matter how many callers race for a freed slot. Safe for concurrent use.
type SlidingWindow struct {
	mu     sync.Mutex
	budget Budget
	calls  []time.Time // admission timestamps, oldest first
	now    func() time.Time
}

// NewSlidingWindow validates the budget and returns a limiter.
func NewSlidingWindow(b Budget) (*SlidingWindow, error) {
	if b.MaxCalls <= 0 {
		return nil, fmt.Errorf("ratelimit: max calls must be positive, got %d", b.MaxCalls)
	}
	if b.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %s", b.Window)
	}
	return &SlidingWindow{
		budget: b,
		calls:  make([]time.Time, 0, b.MaxCalls),
		now:    time.Now,
	}, nil
}

// Acquire blocks until admitting one more call keeps the trailing-window
// count within budget, records the admission, and returns. It returns early
// only when ctx is done. Wakeups re-check admission, so fairness is not
// strict FIFO, but every waiter is admitted once the window advances.
func (l *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.purge(now)
		if len(l.calls) < l.budget.MaxCalls {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return nil
		}
		// The window is full; the next slot opens when the oldest
		// admission expires.
		wait := l.calls[0].Add(l.budget.Window).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Budget returns the immutable budget the limiter enforces.
func (l *SlidingWindow) Budget() Budget { return l.budget }

// purge drops admissions that fell out of the trailing window. Caller holds mu.
func (l *SlidingWindow) purge(now time.Time) {
	cutoff := now.Add(-l.budget.Window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
