package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-key sliding window request counter.
// State lives only in memory, a restart resets every budget.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanMakeRequest records a request for key and reports whether it fits in the budget.
// A denied call is not recorded.
func (l *Limiter) CanMakeRequest(key string, maxRequests int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	timestamps := l.prune(key, now, window)
	if len(timestamps) >= maxRequests {
		return false
	}
	l.windows[key] = append(timestamps, now)
	return true
}

// Remaining returns how many requests key can still issue in the current window.
func (l *Limiter) Remaining(key string, maxRequests int, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamps := l.prune(key, l.now(), window)
	remaining := maxRequests - len(timestamps)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset drops all recorded requests for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// prune must be called with mu held.
func (l *Limiter) prune(key string, now time.Time, window time.Duration) []time.Time {
	timestamps := l.windows[key]
	cutoff := now.Add(-window)

	idx := 0
	for idx < len(timestamps) && !timestamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		timestamps = append(timestamps[:0:0], timestamps[idx:]...)
		l.windows[key] = timestamps
	}
	return timestamps
}
