// Package ratelimit implements per-key token buckets for throttling
// credential endpoints.
//
// RedisLimiter keeps bucket state in Redis so every dashauth instance shares
// one budget. MemoryLimiter is the single-process fallback used when Redis
// is not configured.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing store cannot answer. Callers
// fail open on it.
var ErrUnavailable = errors.New("ratelimit: backend unavailable")

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter consumes one token from the bucket identified by key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Config sizes a token bucket.
type Config struct {
	// Capacity is the bucket size (burst).
	Capacity int
	// RefillInterval adds one token each time it elapses.
	RefillInterval time.Duration
	// TTL expires idle buckets.
	TTL time.Duration
	// Prefix namespaces keys.
	Prefix string
}

// PerMinute returns a Config allowing requestsPerMinute sustained requests
// with the given burst. A non-positive burst defaults to requestsPerMinute.
func PerMinute(requestsPerMinute, burst int) Config {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	if burst < 1 {
		burst = requestsPerMinute
	}
	interval := time.Minute / time.Duration(requestsPerMinute)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return Config{
		Capacity:       burst,
		RefillInterval: interval,
		TTL:            10 * time.Minute,
		Prefix:         "dashauth:rl",
	}.normalize()
}

func (c Config) normalize() Config {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	if c.TTL < time.Second {
		c.TTL = time.Second
	}
	if c.Prefix == "" {
		c.Prefix = "dashauth:rl"
	}
	return c
}

func (c Config) key(k string) string {
	return c.Prefix + ":" + k
}
