package rawrsync

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Keksclan/rawrsync/api"
	"github.com/Keksclan/rawrsync/auth"
	"github.com/Keksclan/rawrsync/breaker"
	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/internal/core"
	"github.com/Keksclan/rawrsync/metrics"
	"github.com/Keksclan/rawrsync/mutation"
	"github.com/Keksclan/rawrsync/policy"
	"github.com/Keksclan/rawrsync/query"
	"github.com/Keksclan/rawrsync/session"
	"github.com/Keksclan/rawrsync/tracing"
	"github.com/Keksclan/rawrsync/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client is the synchronization layer for one backend. It owns the cache
// store, the query and mutation engines that run against it, the transport
// they share and the session of the signed-in user.
//
//	c, err := rawrsync.NewClient("http://localhost:8080", rawrsync.DefaultOptions()...)
//	if err != nil { ... }
//	defer c.Close()
//	projects, err := query.Fetch(ctx, c.Queries(), c.API().AllProjects())
type Client struct {
	doer      transport.Doer
	store     *cache.Store
	queries   *query.Engine
	mutations *mutation.Engine
	api       *api.API
	session   *session.Session
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	breaker   *breaker.Breaker
	names     []string
	logger    *slog.Logger

	bus       cache.Bus
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewClient creates a Client talking to the API at baseURL by applying the
// supplied functional Option values. Middleware execution order is
// determined by the Order constants, not by the order options are passed.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{logger: cfg.logger, bus: cfg.bus}

	if cfg.registerer != nil {
		m, err := metrics.New(cfg.registerer)
		if err != nil {
			return nil, err
		}
		c.metrics = m
		if g, ok := cfg.registerer.(prometheus.Gatherer); ok {
			c.gatherer = g
		}
	}

	base := cfg.doer
	if base == nil {
		h, err := transport.NewHTTP(baseURL, cfg.httpOpts...)
		if err != nil {
			return nil, err
		}
		base = h
	}
	c.wire(&cfg)
	c.doer = core.BuildDoer(base, &cfg.middlewares)
	c.names = cfg.middlewares.Names()

	store, err := cache.NewStore(cache.Config{
		GCTime:      cfg.gcTime,
		MaxRetained: cfg.maxRetained,
		Clock:       cfg.clock,
		Logger:      cfg.logger,
		Metrics:     c.metrics,
	})
	if err != nil {
		return nil, err
	}
	c.store = store

	c.queries, err = query.New(query.Config{
		Store:         store,
		Defaults:      cfg.queryDefaults,
		PrefetchLimit: cfg.prefetchLimit,
		Clock:         cfg.clock,
		Logger:        cfg.logger,
		Metrics:       c.metrics,
		Tracing:       cfg.tracing,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	c.mutations, err = mutation.New(mutation.Config{
		Store:   store,
		Clock:   cfg.clock,
		Logger:  cfg.logger,
		Metrics: c.metrics,
		Tracing: cfg.tracing,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	c.api, err = api.New(api.Config{
		Doer:    c.doer,
		Prefix:  cfg.prefix,
		Session: cfg.session,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	c.session = c.api.Session()

	if cfg.bus != nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		if err := store.Attach(ctx, cfg.bus); err != nil {
			// Local invalidation keeps working without the bus.
			c.logger.Warn("rawrsync: invalidation bus unavailable", "error", err)
		}
	}
	return c, nil
}

// wire registers the built-in middleware selected by cfg.
func (c *Client) wire(cfg *config) {
	mw := &cfg.middlewares
	var resolver *policy.Resolver
	if len(cfg.policies) > 0 {
		resolver = policy.NewResolver(cfg.policies...)
	}

	if cfg.recovery {
		mw.Add(OrderRecovery, nameRecovery, transport.Recovery())
	}
	mw.Add(OrderRequestID, nameRequestID, transport.RequestID())
	if cfg.auth != nil {
		mw.Add(OrderAuth, nameAuth, auth.Middleware(cfg.auth))
	}
	if cfg.tracing != nil {
		mw.Add(OrderTracing, nameTracing, tracing.Middleware(cfg.tracing))
	}
	if resolver != nil || cfg.requestTimeout > 0 {
		mw.Add(OrderPolicy, namePolicy, transport.Policy(resolver, cfg.requestTimeout))
	}
	if c.metrics != nil {
		mw.Add(OrderMetrics, nameMetrics, transport.Metrics(c.metrics, cfg.clock))
	}
	mw.Add(OrderLogging, nameLogging, transport.Logging(cfg.logger, cfg.clock))
	if cfg.retry != nil {
		rc := *cfg.retry
		if rc.Clock == nil {
			rc.Clock = cfg.clock
		}
		mw.Add(OrderRetry, nameRetry, transport.Retry(rc, resolver))
	}
	if cfg.breaker != nil {
		bc := *cfg.breaker
		if bc.Clock == nil {
			bc.Clock = cfg.clock
		}
		user := bc.OnStateChange
		bc.OnStateChange = func(from, to breaker.State) {
			c.logger.Warn("rawrsync: circuit breaker state changed", "from", from.String(), "to", to.String())
			if user != nil {
				user(from, to)
			}
		}
		c.breaker = breaker.New(bc)
		mw.Add(OrderBreaker, nameBreaker, transport.Breaker(c.breaker))
	}
	if cfg.rateLimited() {
		mw.Add(OrderRateLimit, nameRateLimit, transport.RateLimit(cfg.globalLimiter, resolver))
	}
}

// API returns the typed queries and mutations for every endpoint.
func (c *Client) API() *api.API { return c.api }

// Store returns the cache store.
func (c *Client) Store() *cache.Store { return c.store }

// Queries returns the query engine.
func (c *Client) Queries() *query.Engine { return c.queries }

// Mutations returns the mutation engine.
func (c *Client) Mutations() *mutation.Engine { return c.mutations }

// Session returns the session of the signed-in user.
func (c *Client) Session() *session.Session { return c.session }

// Doer returns the transport with the full middleware chain applied.
func (c *Client) Doer() transport.Doer { return c.doer }

// Breaker returns the circuit breaker, or nil when none is configured.
func (c *Client) Breaker() *breaker.Breaker { return c.breaker }

// Middlewares returns the names of the active transport middleware in
// execution order.
func (c *Client) Middlewares() []string { return c.names }

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
// When the registerer passed to WithMetrics is also a Gatherer its metrics
// are served; otherwise the default registry is.
func (c *Client) MetricsHandler() http.Handler {
	if c.gatherer != nil {
		return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// Close stops the invalidation relay, closes the bus and releases the
// retained entries. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.bus != nil {
			err = c.bus.Close()
		}
		c.store.Close()
	})
	return err
}

// Run is a convenience for mutation.Run on the client's engine.
func Run[P, R any](ctx context.Context, c *Client, m mutation.Mutation[P, R], payload P, cbs ...mutation.Callbacks[R]) mutation.Result[R] {
	return mutation.Run(ctx, c.mutations, m, payload, cbs...)
}

// Fetch is a convenience for query.Fetch on the client's engine.
func Fetch[T any](ctx context.Context, c *Client, q query.Query[T]) (T, error) {
	return query.Fetch(ctx, c.queries, q)
}

// Observe is a convenience for query.Observe on the client's engine.
func Observe[T any](ctx context.Context, c *Client, q query.Query[T]) *query.Observer[T] {
	return query.Observe(ctx, c.queries, q)
}
