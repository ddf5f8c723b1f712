// Package ratelimit implements fixed-window request limiting.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"restaurant-api/internal/bucketing"
)

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAfter is the time left in the current window.
	ResetAfter time.Duration
}

// Limiter counts hits per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Decide turns a hit count into a Decision.
func Decide(count int64, limit int, resetAfter time.Duration) Decision {
	return Decision{
		Allowed:    count <= int64(limit),
		Limit:      limit,
		Remaining:  max(0, limit-int(count)),
		ResetAfter: resetAfter,
	}
}

type window struct {
	start time.Time
	count int64
}

type memoryShard struct {
	mu      sync.Mutex
	windows map[string]window
}

// MemoryLimiter keeps counters in process, sharded by key.
type MemoryLimiter struct {
	buckets *bucketing.Manager
	shards  []*memoryShard
	now     func() time.Time
}

func NewMemoryLimiter(shards int, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	m := bucketing.NewManager(shards)
	l := &MemoryLimiter{buckets: m, shards: make([]*memoryShard, m.Buckets()), now: now}
	for i := range l.shards {
		l.shards[i] = &memoryShard{windows: make(map[string]window)}
	}
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (Decision, error) {
	now := l.now()
	sh := l.shards[l.buckets.Bucket(key)]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok || !now.Before(w.start.Add(win)) {
		w = window{start: now}
	}
	w.count++
	sh.windows[key] = w

	return Decide(w.count, limit, w.start.Add(win).Sub(now)), nil
}

// Sweep drops windows that started before cutoff.
func (l *MemoryLimiter) Sweep(cutoff time.Time) int {
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for k, w := range sh.windows {
			if w.start.Before(cutoff) {
				delete(sh.windows, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
