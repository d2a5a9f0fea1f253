package rawrsync

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Keksclan/rawrsync/auth"
	"github.com/Keksclan/rawrsync/breaker"
	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/policy"
	"github.com/Keksclan/rawrsync/ratelimit"
	"github.com/Keksclan/rawrsync/retry"
	"github.com/Keksclan/rawrsync/session"
	"github.com/Keksclan/rawrsync/tracing"
	"github.com/Keksclan/rawrsync/transport"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Client.
type Option func(*config)

// WithPrefix roots every API path at prefix. The default is "/api"; "/"
// means no prefix.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithHTTPClient replaces the http.Client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpOpts = append(c.httpOpts, transport.WithHTTPClient(hc))
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *config) {
		c.httpOpts = append(c.httpOpts, transport.WithHeader(key, value))
	}
}

// WithDoer replaces the HTTP transport entirely. The middleware chain still
// wraps d. The base URL passed to NewClient is ignored.
func WithDoer(d transport.Doer) Option {
	return func(c *config) {
		c.doer = d
	}
}

// WithMiddleware adds a custom transport middleware at the given order slot.
// Use the Order constants to place it relative to the built-in ones.
func WithMiddleware(order int, name string, mw transport.Middleware) Option {
	return func(c *config) {
		c.middlewares.Add(order, name, mw)
	}
}

// WithRecovery turns a panic inside the transport into an error wrapping
// transport.ErrPanic instead of crashing the process.
func WithRecovery() Option {
	return func(c *config) {
		c.recovery = true
	}
}

// WithAuth sends "Authorization: Bearer <token>" with every request, taking
// the token from fn. Use auth.Bearer for a static token.
func WithAuth(fn auth.AuthFunc) Option {
	return func(c *config) {
		c.auth = fn
	}
}

// WithPolicies registers route groups whose policies (timeout, rate limit,
// retry of writes) apply to matching requests. Routes have the form
// "METHOD /path".
func WithPolicies(groups ...*policy.GroupBuilder) Option {
	return func(c *config) {
		c.policies = append(c.policies, groups...)
	}
}

// WithRateLimitGlobal limits every request not covered by a per-group rate
// limit to rps requests per second with the given burst. Requests over the
// limit wait rather than fail.
func WithRateLimitGlobal(rps float64, burst int) Option {
	return func(c *config) {
		c.globalLimiter = ratelimit.NewLimiter(rps, burst)
	}
}

// WithBreaker rejects requests with breaker.ErrOpen after consecutive
// server faults until the backend recovers.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) {
		c.breaker = &cfg
	}
}

// WithRetry re-sends failed GET requests, and writes whose policy group sets
// Retry, according to cfg. Without it every request is attempted once.
func WithRetry(cfg retry.Config) Option {
	return func(c *config) {
		c.retry = &cfg
	}
}

// WithRequestTimeout bounds every request not covered by a policy timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		c.requestTimeout = d
	}
}

// WithStaleTime sets how long successful reads count as fresh. Zero, the
// default, means data only goes stale through invalidation.
func WithStaleTime(d time.Duration) Option {
	return func(c *config) {
		c.queryDefaults.StaleTime = d
	}
}

// WithFetchTimeout bounds a single fetch of a query.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) {
		c.queryDefaults.Timeout = d
	}
}

// WithGCTime sets how long entries without subscribers are retained. A
// negative value keeps them forever.
func WithGCTime(d time.Duration) Option {
	return func(c *config) {
		c.gcTime = d
	}
}

// WithMaxRetained bounds the number of retained entries.
func WithMaxRetained(n int64) Option {
	return func(c *config) {
		c.maxRetained = n
	}
}

// WithPrefetchLimit caps the number of concurrent fetches started by
// Queries().Prefetch.
func WithPrefetchLimit(n int) Option {
	return func(c *config) {
		c.prefetchLimit = n
	}
}

// WithLogger sets the structured logger. Every component logs through it;
// request records are written at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics registers the Prometheus collectors with reg and records
// cache, query, mutation and request metrics.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithTracing creates OpenTelemetry spans for requests, fetches and
// mutations and propagates the trace context in request headers.
func WithTracing(cfg tracing.TracingConfig) Option {
	return func(c *config) {
		c.tracing = &cfg
	}
}

// WithClock replaces the clock used for staleness, retention and breaker
// timing.
func WithClock(clk clockwork.Clock) Option {
	return func(c *config) {
		c.clock = clk
	}
}

// WithBus relays invalidations through bus so that several clients sharing
// one backend keep their caches consistent. The Client closes bus.
func WithBus(bus cache.Bus) Option {
	return func(c *config) {
		c.bus = bus
	}
}

// WithRedisBus relays invalidations over Redis pub/sub on channel
// (cache.DefaultChannel when empty).
func WithRedisBus(addr, password string, db int, channel string) Option {
	return func(c *config) {
		c.bus = cache.NewRedisBus(addr, password, db, channel)
	}
}

// WithSession shares an existing session with the Client.
func WithSession(s *session.Session) Option {
	return func(c *config) {
		c.session = s
	}
}
