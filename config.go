package rawrsync

import (
	"log/slog"
	"time"

	"github.com/Keksclan/rawrsync/auth"
	"github.com/Keksclan/rawrsync/breaker"
	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/internal/core"
	"github.com/Keksclan/rawrsync/policy"
	"github.com/Keksclan/rawrsync/query"
	"github.com/Keksclan/rawrsync/ratelimit"
	"github.com/Keksclan/rawrsync/retry"
	"github.com/Keksclan/rawrsync/session"
	"github.com/Keksclan/rawrsync/tracing"
	"github.com/Keksclan/rawrsync/transport"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	prefix   string
	httpOpts []transport.HTTPOption
	doer     transport.Doer

	middlewares core.MiddlewareBuilder
	recovery    bool
	auth        auth.AuthFunc

	policies       []*policy.GroupBuilder
	globalLimiter  *ratelimit.Limiter
	breaker        *breaker.Config
	retry          *retry.Config
	requestTimeout time.Duration

	queryDefaults query.Options
	gcTime        time.Duration
	maxRetained   int64
	prefetchLimit int

	logger     *slog.Logger
	registerer prometheus.Registerer
	tracing    *tracing.TracingConfig
	clock      clockwork.Clock

	bus     cache.Bus
	session *session.Session
}

// rateLimited reports whether a limiter can apply: a global one, or one
// created lazily for a policy group with a RateLimit rule.
func (c *config) rateLimited() bool {
	return c.globalLimiter != nil || len(c.policies) > 0
}
