// Package ratelimit provides sliding-window admission control for inbound
// submission requests. State is owned by the Limiter instance and injected
// where needed, never held as package globals.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultLimit and DefaultWindow are the submission defaults.
	DefaultLimit  = 5
	DefaultWindow = time.Minute

	// cleanupThreshold triggers a full sweep of stale keys, amortized into
	// the admission check itself.
	cleanupThreshold = 1000
)

// Limiter admits up to limit events per window per key.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string][]time.Time
	now    func() time.Time
}

// New creates a Limiter. Non-positive arguments fall back to the defaults.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:  limit,
		window: window,
		seen:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether another event for the key fits in the current
// window, recording it if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	valid := l.seen[key][:0]
	for _, ts := range l.seen[key] {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= l.limit {
		l.seen[key] = valid
		return false
	}

	l.seen[key] = append(valid, now)

	if len(l.seen) > cleanupThreshold {
		l.cleanup(cutoff)
	}
	return true
}

// cleanup drops keys whose every timestamp has aged out. Caller holds mu.
func (l *Limiter) cleanup(cutoff time.Time) {
	for key, stamps := range l.seen {
		stale := true
		for _, ts := range stamps {
			if ts.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.seen, key)
		}
	}
}
