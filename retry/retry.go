package retry

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultRetryStatuses are the statuses worth retrying: network failures
// (reported as status 0), 429 and the transient 5xx replies.
var DefaultRetryStatuses = []int{
	0,
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// RetryStatuses lists the statuses that are considered retryable. The
	// status is read from errors implementing StatusCode() int. An empty
	// list means no error is retried.
	RetryStatuses []int

	// RetryIf, when set, decides retryability instead of RetryStatuses.
	RetryIf func(error) bool

	// Clock drives the back-off timer; it defaults to the real clock.
	Clock clockwork.Clock
}

type statusCoder interface {
	StatusCode() int
}

// Retryable reports whether err may be retried under cfg. Context errors are
// never retried.
func (cfg Config) Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if cfg.RetryIf != nil {
		return cfg.RetryIf(err)
	}
	var sc statusCoder
	if !errors.As(err, &sc) {
		return false
	}
	return slices.Contains(cfg.RetryStatuses, sc.StatusCode())
}

// Do calls fn up to cfg.MaxAttempts times, retrying only when the returned
// error is retryable under cfg. Between attempts an exponential back-off
// delay (with optional jitter) is applied.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		// Last attempt: return immediately regardless of status.
		if i == attempts-1 || !cfg.Retryable(err) {
			return zero, err
		}

		timer := clock.NewTimer(backoff(cfg, i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.Chan():
		}
	}

	// Unreachable, but keeps the compiler happy.
	return zero, nil
}
