package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_FirstWaitIsImmediate(t *testing.T) {
	r := NewCrawlDelayLimiter(time.Hour)

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSimpleRateLimiter_SpacesActions(t *testing.T) {
	r := NewCrawlDelayLimiter(30 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, r.Wait(ctx))
	start := time.Now()
	require.NoError(t, r.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSimpleRateLimiter_HonorsContext(t *testing.T) {
	r := NewCrawlDelayLimiter(time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestSimpleRateLimiter_JitterWithinBounds(t *testing.T) {
	r := NewSimpleRateLimiter(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 50; i++ {
		d := r.calculateDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
}

func TestAdaptiveRateLimiter(t *testing.T) {
	t.Run("backs off after repeated errors", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(time.Second, 10*time.Second)
		for i := 0; i < 3; i++ {
			a.RecordError()
		}
		assert.Equal(t, 1500*time.Millisecond, a.Delay())
	})

	t.Run("caps at ceiling", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(time.Second, 2*time.Second)
		for i := 0; i < 30; i++ {
			a.RecordError()
		}
		assert.Equal(t, 2*time.Second, a.Delay())
	})

	t.Run("never drops below floor", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(time.Second, 10*time.Second)
		for i := 0; i < 60; i++ {
			a.RecordSuccess()
		}
		assert.Equal(t, time.Second, a.Delay())
	})

	t.Run("recovers toward floor", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(time.Second, 10*time.Second)
		for i := 0; i < 3; i++ {
			a.RecordError()
		}
		for i := 0; i < 6; i++ {
			a.RecordSuccess()
		}
		assert.InDelta(t, float64(1350*time.Millisecond), float64(a.Delay()), float64(time.Millisecond))
	})
}
