// Package ratelimit provides a token-bucket rate limiter backed by
// golang.org/x/time/rate for gating outgoing API requests.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrLimited is returned by Wait when a request cannot be admitted before
// the context deadline.
var ErrLimited = errors.New("ratelimit: limit exceeded")

// Limiter wraps a token-bucket limiter that decides whether an outgoing
// request may be sent.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps requests per second with the
// given burst size.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// PerWindow creates a Limiter that admits n requests per window, all of
// which may be spent at once.
func PerWindow(n int, window time.Duration) *Limiter {
	return NewLimiter(float64(n)/window.Seconds(), n)
}

// Allow reports whether a single request may proceed right now.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// Wait blocks until a request may proceed. It returns the context error when
// ctx ends first and ErrLimited when the wait would outlast ctx's deadline.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrLimited, err)
	}
	return nil
}
