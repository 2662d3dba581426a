package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per route
type RateLimiter struct {
	buckets map[string]*rate.Limiter
	mu      sync.RWMutex
	now     func() time.Time

	rps   int
	burst int
}

// NewRateLimiter creates a limiter allowing rps requests per second per route with the
// given burst.
func NewRateLimiter(rps, burst int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
		rps:     rps,
		burst:   burst,
	}
}

func (rl *RateLimiter) bucket(route string) *rate.Limiter {
	rl.mu.RLock()
	b, exists := rl.buckets[route]
	rl.mu.RUnlock()
	if exists {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, exists = rl.buckets[route]; !exists {
		b = rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
		rl.buckets[route] = b
	}
	return b
}

// Allow checks if a request for the given route is allowed
func (rl *RateLimiter) Allow(route string) bool {
	return rl.bucket(route).AllowN(rl.now(), 1)
}

// Routes returns the number of routes holding a bucket.
func (rl *RateLimiter) Routes() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.buckets)
}
