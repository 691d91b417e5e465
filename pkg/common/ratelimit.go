// Package common holds small shared helpers for scand binaries.
package common

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter applies an independent token bucket to each key, typically
// a client address. Buckets idle for longer than the idle window are dropped
// on the next sweep.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	buckets map[string]*bucket

	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const defaultIdleWindow = 10 * time.Minute

// NewKeyedRateLimiter creates a limiter granting rps events per second per
// key with the given burst.
func NewKeyedRateLimiter(rps float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    defaultIdleWindow,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether key may perform an event now.
func (rl *KeyedRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// UpdateLimits changes the rate and burst for existing and future keys.
func (rl *KeyedRateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limit, rl.burst = rate.Limit(rps), burst
	now := rl.now()
	for _, b := range rl.buckets {
		b.limiter.SetLimitAt(now, rl.limit)
		b.limiter.SetBurstAt(now, burst)
	}
}

// Len returns the number of tracked keys.
func (rl *KeyedRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *KeyedRateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.idle {
		return
	}
	rl.lastSweep = now
	for k, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.idle {
			delete(rl.buckets, k)
		}
	}
}
