package resolver

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound requests of the remote resolvers. A nil
// Limiter never waits.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a token bucket allowing r requests per second with the
// given burst. r <= 0 disables limiting.
func NewLimiter(r float64, burst int) *Limiter {
	if r <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{inner: rate.NewLimiter(rate.Limit(r), burst)}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.inner.Wait(ctx)
}
