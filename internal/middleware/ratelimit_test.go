package middleware

import (
	"sync"
	"testing"
	"time"
)

// =============================================================================
// AttemptLimiter Tests
// =============================================================================

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(max int, window time.Duration) (*AttemptLimiter, *stepClock) {
	c := &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewAttemptLimiter(max, window, discardLogger(), WithLimiterClock(c.Now)), c
}

func TestAttemptLimiter_BlockedAtLimit(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 4; i++ {
		l.RecordFailure("caller")
	}
	if blocked, _ := l.Blocked("caller"); blocked {
		t.Error("4 failures should not block")
	}

	l.RecordFailure("caller")
	if blocked, _ := l.Blocked("caller"); !blocked {
		t.Error("5th failure should block")
	}
}

func TestAttemptLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)

	l.RecordFailure("a")
	l.RecordFailure("a")

	if blocked, _ := l.Blocked("a"); !blocked {
		t.Error("a should be blocked")
	}
	if blocked, _ := l.Blocked("b"); blocked {
		t.Error("b should not be blocked")
	}
}

func TestAttemptLimiter_BlockedAfterFailures(t *testing.T) {
	l, c := newTestLimiter(3, 15*time.Minute)

	for i := 0; i < 2; i++ {
		l.RecordFailure("caller")
		if blocked, _ := l.Blocked("caller"); blocked {
			t.Fatalf("blocked after %d failures", i+1)
		}
	}

	c.Advance(5 * time.Minute)
	l.RecordFailure("caller")

	blocked, wait := l.Blocked("caller")
	if !blocked {
		t.Fatal("expected caller to be blocked")
	}
	if wait != 15*time.Minute {
		t.Errorf("wait = %v, want 15m measured from the first failure", wait)
	}
}

func TestAttemptLimiter_WindowExpiry(t *testing.T) {
	l, c := newTestLimiter(1, time.Minute)

	l.RecordFailure("caller")
	if blocked, _ := l.Blocked("caller"); !blocked {
		t.Fatal("expected caller to be blocked")
	}

	c.Advance(time.Minute + time.Second)

	if blocked, _ := l.Blocked("caller"); blocked {
		t.Error("block should lift once the window passes")
	}

	// A new failure opens a fresh window
	l.RecordFailure("caller")
	blocked, wait := l.Blocked("caller")
	if !blocked || wait != time.Minute {
		t.Errorf("Blocked = %v, %v, want true, 1m", blocked, wait)
	}
}

func TestAttemptLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	l.RecordFailure("caller")
	l.Reset("caller")

	if blocked, _ := l.Blocked("caller"); blocked {
		t.Error("reset should clear the block")
	}
}

func TestAttemptLimiter_EvictExpired(t *testing.T) {
	l, c := newTestLimiter(5, time.Minute)

	l.RecordFailure("old")
	c.Advance(2 * time.Minute)
	l.RecordFailure("new")

	if removed := l.evictExpired(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := l.entries["new"]; !ok {
		t.Error("live entry evicted")
	}
	if _, ok := l.entries["old"]; ok {
		t.Error("expired entry kept")
	}
}

func TestAttemptLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(50, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RecordFailure("caller")
			l.Blocked("caller")
		}()
	}
	wg.Wait()

	if blocked, _ := l.Blocked("caller"); !blocked {
		t.Error("expected caller to be blocked after 100 failures")
	}
}
