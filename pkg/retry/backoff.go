package retry

import (
	"context"
	"math/rand"
	"time"
)

// BackoffStrategy computes the wait before the next attempt
type BackoffStrategy interface {
	// NextDelay returns the delay after the given failed attempt (1-based)
	NextDelay(attempt int) time.Duration
}

// LinearBackoff waits BaseDelay + Increment*(attempt-1)
type LinearBackoff struct {
	BaseDelay time.Duration
	Increment time.Duration
	// MaxDelay caps the delay when positive
	MaxDelay time.Duration
}

// NextDelay calculates the next delay with linear backoff
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := lb.BaseDelay + lb.Increment*time.Duration(attempt-1)
	if lb.MaxDelay > 0 && delay > lb.MaxDelay {
		delay = lb.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// RangeBackoff draws uniformly from [Min, Max] and scales the draw by attempt
type RangeBackoff struct {
	Min  time.Duration
	Max  time.Duration
	Rand *rand.Rand
}

// NextDelay returns uniform(Min, Max) * attempt
func (rb *RangeBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return Uniform(rb.Rand, rb.Min, rb.Max) * time.Duration(attempt)
}

// Uniform draws a duration uniformly from [min, max]. A nil r uses the global source.
func Uniform(r *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	var n int64
	if r != nil {
		n = r.Int63n(span + 1)
	} else {
		n = rand.Int63n(span + 1)
	}
	return min + time.Duration(n)
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
