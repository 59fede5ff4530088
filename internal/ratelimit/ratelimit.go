package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// Feedback is implemented by limiters that adapt to fetch outcomes.
type Feedback interface {
	RecordSuccess()
	RecordError()
}

// SimpleRateLimiter spaces consecutive actions by at least minDelay. With
// jitter enabled the spacing is drawn uniformly from [minDelay, maxDelay).
//
// Wait reserves its slot under the lock and sleeps outside it, so delay
// changes made while a caller is waiting apply to the following slot.
type SimpleRateLimiter struct {
	mu       sync.Mutex
	minDelay time.Duration
	maxDelay time.Duration
	next     time.Time
	now      func() time.Time
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		now:      time.Now,
	}
}

// NewCrawlDelayLimiter waits exactly delay between fetches.
func NewCrawlDelayLimiter(delay time.Duration) *SimpleRateLimiter {
	return NewSimpleRateLimiter(delay, delay)
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	wait := r.reserve()
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve claims the next free slot and returns how long to sleep until it.
func (r *SimpleRateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	slot := now
	if !r.next.IsZero() && r.next.After(now) {
		slot = r.next
	}
	r.next = slot.Add(r.calculateDelay())
	return slot.Sub(now)
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minDelay, r.maxDelay = min, max
}

// Delay reports the current minimum spacing.
func (r *SimpleRateLimiter) Delay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if r.maxDelay <= r.minDelay {
		return r.minDelay
	}
	return r.minDelay + time.Duration(rand.Int63n(int64(r.maxDelay-r.minDelay)))
}

const (
	errorsBeforeBackoff    = 3
	successesBeforeRecover = 6
	backoffFactor          = 1.5
	recoverFactor          = 0.9
)

// AdaptiveRateLimiter stretches the crawl delay after consecutive fetch
// errors and shrinks it back after a run of successes. The delay stays
// within [floor, ceiling].
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	floor     time.Duration
	ceiling   time.Duration
	errors    int
	successes int
}

func NewAdaptiveRateLimiter(floor, ceiling time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewCrawlDelayLimiter(floor),
		floor:             floor,
		ceiling:           max(floor, ceiling),
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors = 0
	if a.successes++; a.successes >= successesBeforeRecover {
		a.scale(recoverFactor)
		a.successes = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successes = 0
	if a.errors++; a.errors >= errorsBeforeBackoff {
		a.scale(backoffFactor)
		a.errors = 0
	}
}

// scale multiplies the delay by factor, clamped to [floor, ceiling]. Callers
// hold the lock.
func (a *AdaptiveRateLimiter) scale(factor float64) {
	d := time.Duration(float64(a.minDelay) * factor)
	d = min(max(d, a.floor), a.ceiling)
	a.minDelay, a.maxDelay = d, d
}
