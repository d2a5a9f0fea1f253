package rawrsync

import (
	"time"

	"github.com/Keksclan/rawrsync/breaker"
)

// DefaultOptions returns the recommended set of options for production use:
// panic recovery, a thirty second request timeout and a circuit breaker with
// breaker.DefaultConfig. Retries stay off.
func DefaultOptions() []Option {
	return []Option{
		WithRecovery(),
		WithRequestTimeout(30 * time.Second),
		WithBreaker(breaker.DefaultConfig()),
	}
}
