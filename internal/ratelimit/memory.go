package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMaxRequests = 10
	defaultWindow      = 10 * time.Second

	// maxTrackedKeys caps tracked keys so rotating client IPs cannot grow the
	// map without bound.
	maxTrackedKeys = 4096
)

type windowEntry struct {
	windowStart time.Time
	count       int
}

// MemoryLimiter is an in-process sliding-window limiter used when Redis is not
// configured, and by tests. Safe for concurrent use.
type MemoryLimiter struct {
	mutex       sync.Mutex
	entries     map[string]*windowEntry
	maxRequests int
	window      time.Duration
	clock       func() time.Time
}

// NewMemoryLimiter creates a MemoryLimiter allowing maxRequests per window.
func NewMemoryLimiter(maxRequests int, window time.Duration) *MemoryLimiter {
	if maxRequests <= 0 {
		maxRequests = defaultMaxRequests
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &MemoryLimiter{
		entries:     make(map[string]*windowEntry),
		maxRequests: maxRequests,
		window:      window,
		clock:       time.Now,
	}
}

// Allow records one event for the key and reports whether it stays within the
// window budget. The in-memory limiter never reports backend errors.
func (limiter *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	now := limiter.clock()
	limiter.pruneLocked(now)

	entry, entryFound := limiter.entries[key]
	if !entryFound || now.Sub(entry.windowStart) >= limiter.window {
		limiter.entries[key] = &windowEntry{windowStart: now, count: 1}
		return true, nil
	}

	entry.count++
	return entry.count <= limiter.maxRequests, nil
}

func (limiter *MemoryLimiter) pruneLocked(now time.Time) {
	if len(limiter.entries) < maxTrackedKeys {
		return
	}
	for key, entry := range limiter.entries {
		if now.Sub(entry.windowStart) >= limiter.window {
			delete(limiter.entries, key)
		}
	}
	for len(limiter.entries) >= maxTrackedKeys {
		for key := range limiter.entries {
			delete(limiter.entries, key)
			break
		}
	}
}
