package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestNewSlidingWindowInvalidBudget(t *testing.T) {
	cases := []Budget{
		{MaxCalls: 0, Window: time.Second},
		{MaxCalls: -1, Window: time.Second},
		{MaxCalls: 3, Window: 0},
		{MaxCalls: 3, Window: -time.Second},
	}
	for _, b := range cases {
		if _, err := NewSlidingWindow(b); err == nil {
			t.Errorf("budget %+v: expected error", b)
		}
	}
}

// Any MaxCalls+1 consecutive admissions must span at least the window,
// otherwise some trailing window held more than MaxCalls calls.
func TestAcquireNeverExceedsBudget(t *testing.T) {
	const (
		maxCalls = 5
		callers  = 23
	)
	window := 100 * time.Millisecond

	l, err := NewSlidingWindow(Budget{MaxCalls: maxCalls, Window: window})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	var (
		mu       sync.Mutex
		admitted []time.Time
		wg       sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			admitted = append(admitted, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(admitted) != callers {
		t.Fatalf("admitted %d, want %d", len(admitted), callers)
	}
	sort.Slice(admitted, func(i, j int) bool { return admitted[i].Before(admitted[j]) })
	// Timestamps are taken just after Acquire returns, so allow a small
	// scheduling skew when checking the span.
	skew := 5 * time.Millisecond
	for i := 0; i+maxCalls < len(admitted); i++ {
		span := admitted[i+maxCalls].Sub(admitted[i])
		if span < window-skew {
			t.Fatalf("admissions %d..%d span %s, below window %s", i, i+maxCalls, span, window)
		}
	}
}

// Five acquisitions against a 3-per-second budget need at least one full
// window of wall time: three immediate, two after the oldest slots expire.
func TestAcquireWallClockLowerBound(t *testing.T) {
	window := time.Second
	l, err := NewSlidingWindow(Budget{MaxCalls: 3, Window: window})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < window {
		t.Fatalf("5 acquisitions finished in %s, want >= %s", elapsed, window)
	}
}

func TestAcquireContextCancelled(t *testing.T) {
	l, err := NewSlidingWindow(Budget{MaxCalls: 1, Window: time.Hour})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err != context.DeadlineExceeded {
		t.Fatalf("second acquire: got %v, want context.DeadlineExceeded", err)
	}
}

func TestAcquireReusesExpiredSlots(t *testing.T) {
	window := 50 * time.Millisecond
	l, err := NewSlidingWindow(Budget{MaxCalls: 2, Window: window})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	time.Sleep(window + 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("acquire after window: %v", err)
		}
	case <-time.After(window):
		t.Fatal("acquire did not return after the window advanced")
	}
}
