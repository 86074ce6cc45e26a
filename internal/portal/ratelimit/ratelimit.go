// Package ratelimit enforces a fixed number of requests per client per
// window. Counters live either in process memory or in Redis so that several
// portal replicas share one quota.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts a request against key and reports whether it may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// window tracks the fixed-window counter for a single key.
type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window Limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

// NewMemoryLimiter allows limit requests per key in each period.
func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}
	w.count++
	return decide(w.count, l.limit, w.resetAt.Sub(now)), nil
}

// Reset clears the counter for a specific key.
func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Run removes expired windows every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

func decide(count, limit int, left time.Duration) Decision {
	if count > limit {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: left}
	}
	return Decision{Allowed: true, Remaining: limit - count}
}
