package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepThreshold is the bucket count above which idle buckets are evicted.
const sweepThreshold = 10000

type memoryBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps token buckets in process memory.
type MemoryLimiter struct {
	cfg   Config
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

// NewMemory returns an in-process limiter.
func NewMemory(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg.normalize(),
		clock:   time.Now,
		buckets: make(map[string]*memoryBucket),
	}
}

// Allow implements Limiter. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= sweepThreshold {
			l.sweep(now)
		}
		b = &memoryBucket{lim: rate.NewLimiter(rate.Every(l.cfg.RefillInterval), l.cfg.Capacity)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := Result{Limit: l.cfg.Capacity}
	r := b.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
	} else {
		res.Allowed = true
	}
	if remaining := int64(b.lim.TokensAt(now)); remaining > 0 {
		res.Remaining = remaining
	}
	return res, nil
}

// sweep drops buckets idle for longer than the TTL. Callers hold mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.TTL {
			delete(l.buckets, k)
		}
	}
}

// Len reports how many buckets are held.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
