// Package ratelimit provides abuse-deterrence counters keyed by client
// identifier. The in-memory backend is process-local and approximate under
// multi-instance deployment; the redis backend is shared. Neither is meant
// for correctness-critical quota enforcement.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is the counter abstraction. Allow reports whether the key is
// still under the limit for the current window and increments it.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

type entry struct {
	count     int
	windowEnd time.Time
}

// MemoryLimiter is a fixed-window in-process limiter with lazy eviction.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewMemoryLimiter creates a limiter allowing limit requests per window.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.windowEnd) {
		l.entries[key] = &entry{count: 1, windowEnd: now.Add(l.window)}
		l.evictExpired(now)
		return true, nil
	}
	if e.count >= l.limit {
		return false, nil
	}
	e.count++
	return true, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

// evictExpired drops stale windows. Called under the lock on window
// rollover so the map does not grow without bound.
func (l *MemoryLimiter) evictExpired(now time.Time) {
	for k, e := range l.entries {
		if now.After(e.windowEnd) {
			delete(l.entries, k)
		}
	}
}
