package adapt

import (
	"sync"
	"time"
)

// RateLimiter counts events per key over a rolling window. The engine
// uses it to cap adaptations per hour; keys are arbitrary so tests and
// future per-rule throttles reuse it unchanged.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter creates a limiter allowing limit events per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether another event under key fits in the window.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pruneLocked(key)) < l.limit
}

// Record registers an event under key at the current time.
func (l *RateLimiter) Record(key string) {
	l.RecordAt(key, time.Time{})
}

// RecordAt registers an event at an explicit time; a zero time means
// now. Used when seeding the limiter from persisted history.
func (l *RateLimiter) RecordAt(key string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if at.IsZero() {
		at = l.now()
	}
	l.events[key] = append(l.pruneLocked(key), at)
}

// Count returns the number of events under key inside the window.
func (l *RateLimiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pruneLocked(key))
}

func (l *RateLimiter) pruneLocked(key string) []time.Time {
	cutoff := l.now().Add(-l.window)
	kept := l.events[key][:0]
	for _, at := range l.events[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(l.events, key)
		return nil
	}
	l.events[key] = kept
	return kept
}
