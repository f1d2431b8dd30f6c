// Package throttle spaces out calls to external services.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer blocks until the next call is allowed.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Limiter is a Pacer backed by a token bucket with burst 1.
// The first Wait returns immediately; later calls are spaced by the interval.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// Every returns a Pacer that allows one call per interval.
// A non-positive interval never blocks.
func Every(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Interval returns the configured spacing.
func (l *Limiter) Interval() time.Duration { return l.interval }

type none struct{}

func (none) Wait(ctx context.Context) error { return ctx.Err() }

// None returns a Pacer that never blocks.
func None() Pacer { return none{} }
