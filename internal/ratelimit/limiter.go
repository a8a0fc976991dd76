// Package ratelimit implements the two-bucket token-bucket gate in front
// of the Aleo upstream API, built on golang.org/x/time/rate, whose
// Limiter already refills continuously, computed on demand from elapsed
// time rather than on a fixed tick.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/luxfi/privacy-relayer/internal/model"
)

// Limiter gates calls to a single upstream service behind a per-second and
// a per-minute token bucket. acquire blocks until both have capacity.
type Limiter struct {
	perSecond *rate.Limiter
	perMinute *rate.Limiter
}

// New returns a Limiter allowing up to rps requests/second and rpm
// requests/minute. The buckets hold up to rps and rpm tokens respectively;
// a single Acquire consumes exactly one token from each.
func New(rps, rpm int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if rpm <= 0 {
		rpm = 1
	}
	return &Limiter{
		perSecond: rate.NewLimiter(rate.Limit(rps), rps),
		perMinute: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}
}

// Acquire blocks the caller until both buckets have at least one token,
// then decrements both. It returns a KindRateLimited error
// (model.RateLimitedError) only if ctx is done, or its deadline would pass,
// before a token is available.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.perSecond.Wait(ctx); err != nil {
		return model.RateLimitedError("rate limiter wait cancelled (per-second bucket)", err)
	}
	if err := l.perMinute.Wait(ctx); err != nil {
		return model.RateLimitedError("rate limiter wait cancelled (per-minute bucket)", err)
	}
	return nil
}
