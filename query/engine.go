package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/metrics"
	"github.com/Keksclan/rawrsync/tracing"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds fetches when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Config controls an Engine.
type Config struct {
	Store *cache.Store

	// Defaults apply to queries that leave an option at zero.
	Defaults Options

	// PrefetchLimit caps concurrent fetches started by Prefetch. Zero means
	// no limit.
	PrefetchLimit int

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracing *tracing.TracingConfig
}

// Engine runs queries against a Store.
type Engine struct {
	store    *cache.Store
	defaults Options
	limit    int
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracing  *tracing.TracingConfig
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("query: store is required")
	}
	e := &Engine{
		store:    cfg.Store,
		defaults: cfg.Defaults,
		limit:    cfg.PrefetchLimit,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracing:  cfg.Tracing,
	}
	if e.defaults.Timeout == 0 {
		e.defaults.Timeout = DefaultTimeout
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e, nil
}

// Store returns the engine's cache store.
func (e *Engine) Store() *cache.Store { return e.store }

// Ensure returns the current entry for k, starting a fetch in the
// background when the entry is missing, stale, failed or older than
// StaleTime. Concurrent callers for the same key share one fetch.
func (e *Engine) Ensure(ctx context.Context, k cache.Key, fn Fetcher, opts Options) *cache.Entry {
	_, entry := e.begin(ctx, k, fn, opts.merge(e.defaults), e.needsFetch(opts))
	return entry
}

// Fetch returns fresh data for k, waiting for a fetch when needed. ctx bounds
// only the wait; a fetch that was started keeps running and fills the cache
// for later readers.
func (e *Engine) Fetch(ctx context.Context, k cache.Key, fn Fetcher, opts Options) (any, error) {
	f, entry := e.begin(ctx, k, fn, opts.merge(e.defaults), e.needsFetch(opts))
	if f == nil {
		return entry.Data, nil
	}
	select {
	case <-f.Done():
		return f.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refetch starts a fetch for k even when the cached data is fresh, or joins
// the one in flight.
func (e *Engine) Refetch(ctx context.Context, k cache.Key, fn Fetcher, opts Options) *cache.Entry {
	_, entry := e.begin(ctx, k, fn, opts.merge(e.defaults), nil)
	return entry
}

// Prefetch loads every query concurrently and returns the first error.
// Disabled queries are skipped.
func (e *Engine) Prefetch(ctx context.Context, loaders ...Loader) error {
	g, ctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for _, l := range loaders {
		g.Go(func() error { return l.Load(ctx, e) })
	}
	return g.Wait()
}

// needsFetch reports whether an entry must be (re)loaded. Pending entries
// report true so callers join the flight.
func (e *Engine) needsFetch(opts Options) func(*cache.Entry) bool {
	staleTime := opts.merge(e.defaults).StaleTime
	now := e.clock.Now()
	return func(ent *cache.Entry) bool {
		switch ent.Status {
		case cache.StatusSuccess:
			if ent.Stale {
				return true
			}
			return staleTime > 0 && now.Sub(ent.UpdatedAt) >= staleTime
		default:
			return true
		}
	}
}

func (e *Engine) begin(ctx context.Context, k cache.Key, fn Fetcher, opts Options, need func(*cache.Entry) bool) (*cache.Flight, *cache.Entry) {
	resource := string(k.Resource)
	f, started, entry := e.store.BeginIf(k, need)
	switch {
	case f == nil:
		e.metrics.CacheLookup(resource, metrics.LookupHit)
	case started:
		if entry.HasData {
			e.metrics.CacheLookup(resource, metrics.LookupStale)
		} else {
			e.metrics.CacheLookup(resource, metrics.LookupMiss)
		}
		e.metrics.FetchStarted(resource)
		e.logger.DebugContext(ctx, "query: fetch started", "key", k.String())
		go e.run(context.WithoutCancel(ctx), k, f, fn, opts)
	default:
		e.metrics.FetchJoined(resource)
		e.logger.DebugContext(ctx, "query: fetch joined", "key", k.String())
	}
	return f, entry
}

func (e *Engine) run(ctx context.Context, k cache.Key, f *cache.Flight, fn Fetcher, opts Options) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	ctx, span := e.tracing.Start(ctx, "query.fetch",
		attribute.String("rawrsync.resource", string(k.Resource)),
		attribute.String("rawrsync.key", k.String()),
	)

	start := e.clock.Now()
	data, err := call(ctx, fn)
	d := e.clock.Since(start)

	tracing.End(span, err)
	e.metrics.FetchSettled(string(k.Resource), err, d)
	if err != nil {
		e.logger.DebugContext(ctx, "query: fetch failed", "key", k.String(), "duration", d, "error", err)
	} else {
		e.logger.DebugContext(ctx, "query: fetch settled", "key", k.String(), "duration", d)
	}
	e.store.Settle(k, f, data, err)
}

// call runs fn, turning a panic into an error wrapping ErrPanic.
func call(ctx context.Context, fn Fetcher) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx)
}

// Fetch is the typed form of Engine.Fetch. A disabled query returns
// ErrDisabled without touching the network.
func Fetch[T any](ctx context.Context, e *Engine, q Query[T]) (T, error) {
	var zero T
	if q.Disabled {
		return zero, ErrDisabled
	}
	v, err := e.Fetch(ctx, q.Key, q.fetcher(), q.Options)
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Ensure is the typed form of Engine.Ensure. A disabled query reports an
// idle state and performs no network activity.
func Ensure[T any](ctx context.Context, e *Engine, q Query[T]) State[T] {
	if q.Disabled {
		return StateOf[T](nil)
	}
	return StateOf[T](e.Ensure(ctx, q.Key, q.fetcher(), q.Options))
}

// Peek returns the cached state of q without fetching.
func Peek[T any](e *Engine, q Query[T]) (State[T], bool) {
	entry, ok := e.store.Get(q.Key)
	return StateOf[T](entry), ok
}
