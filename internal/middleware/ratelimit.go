package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Attempt Limiter
// =============================================================================

// AttemptLimiter counts attempts per key in a fixed window that starts with
// the key's first attempt. It backs the failed gift code limit.
type AttemptLimiter struct {
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]*attemptEntry
}

type attemptEntry struct {
	count       int
	windowStart time.Time
}

// AttemptLimiterOption configures an AttemptLimiter.
type AttemptLimiterOption func(*AttemptLimiter)

// WithLimiterClock replaces the limiter's time source.
func WithLimiterClock(now func() time.Time) AttemptLimiterOption {
	return func(l *AttemptLimiter) { l.now = now }
}

// NewAttemptLimiter creates a limiter allowing maxAttempts per window.
// Call Run to evict expired entries.
func NewAttemptLimiter(maxAttempts int, window time.Duration, logger *slog.Logger, opts ...AttemptLimiterOption) *AttemptLimiter {
	l := &AttemptLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
		now:         time.Now,
		entries:     make(map[string]*attemptEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordFailure records a failed attempt without checking the limit.
func (l *AttemptLimiter) RecordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.current(key)
	entry.count++
	if entry.count == l.maxAttempts {
		l.logger.Warn("attempt limit reached", "key", shortKey(key), "window", l.window)
	}
}

// Blocked reports whether key has used up its attempts, and if so how long
// until its window resets.
func (l *AttemptLimiter) Blocked(key string) (bool, time.Duration) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[key]
	if !ok {
		return false, 0
	}
	elapsed := l.now().Sub(entry.windowStart)
	if elapsed > l.window || entry.count < l.maxAttempts {
		return false, 0
	}
	return true, l.window - elapsed
}

// Reset clears the attempts for a key.
func (l *AttemptLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Run evicts expired entries every window until ctx is done.
func (l *AttemptLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictExpired()
		}
	}
}

func (l *AttemptLimiter) evictExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, entry := range l.entries {
		if now.Sub(entry.windowStart) > l.window {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// current returns key's entry, starting a new window if none is open.
// Caller must hold l.mu.
func (l *AttemptLimiter) current(key string) *attemptEntry {
	now := l.now()
	entry, exists := l.entries[key]
	if !exists || now.Sub(entry.windowStart) > l.window {
		entry = &attemptEntry{windowStart: now}
		l.entries[key] = entry
	}
	return entry
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
