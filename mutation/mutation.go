// Package mutation is the write side of the synchronization layer. A
// [Mutation] performs exactly one remote write per invocation and, once the
// write succeeds, applies its declared invalidation targets to the cache
// store so that affected reads refetch.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/metrics"
	"github.com/Keksclan/rawrsync/tracing"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
)

// ErrPanic wraps panics raised by a mutation's Do function.
var ErrPanic = errors.New("mutation: panicked")

// Mutation declares one remote write. P is the payload, R the response.
type Mutation[P, R any] struct {
	Name string
	Do   func(ctx context.Context, payload P) (R, error)

	// Invalidates resolves the targets to invalidate after a successful
	// write, using fields of the payload and the response. Nil means none.
	Invalidates func(payload P, resp R) []cache.Target
}

// Result is the outcome of one invocation.
type Result[R any] struct {
	Data R
	Err  error

	// Invalidated lists the cache keys the mutation touched.
	Invalidated []cache.Key
}

// OK reports whether the mutation succeeded.
func (r Result[R]) OK() bool { return r.Err == nil }

// Callbacks are optional hooks fired on resolution. OnSuccess runs before
// the invalidation is applied, OnSettled after it.
type Callbacks[R any] struct {
	OnSuccess func(R)
	OnError   func(error)
	OnSettled func(R, error)
}

// validator is implemented by payloads that check themselves.
type validator interface {
	Validate() error
}

// Config controls an Engine.
type Config struct {
	Store *cache.Store

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracing *tracing.TracingConfig
}

// Engine runs mutations and applies their invalidations.
type Engine struct {
	store   *cache.Store
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracing *tracing.TracingConfig
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("mutation: store is required")
	}
	e := &Engine{
		store:   cfg.Store,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracing: cfg.Tracing,
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e, nil
}

// Run executes m once and blocks until it resolves. Failures are returned in
// the Result, never as a panic. A payload with a Validate method is checked
// first; an invalid payload is never sent.
func Run[P, R any](ctx context.Context, e *Engine, m Mutation[P, R], payload P, cbs ...Callbacks[R]) Result[R] {
	ctx, span := e.tracing.Start(ctx, "mutation "+m.Name, attribute.String("rawrsync.mutation", m.Name))
	start := e.clock.Now()

	var res Result[R]
	res.Data, res.Err = do(ctx, m, payload)

	if res.Err != nil {
		for _, cb := range cbs {
			if cb.OnError != nil {
				cb.OnError(res.Err)
			}
		}
		e.logger.DebugContext(ctx, "mutation: failed", "mutation", m.Name, "error", res.Err)
	} else {
		for _, cb := range cbs {
			if cb.OnSuccess != nil {
				cb.OnSuccess(res.Data)
			}
		}
		if m.Invalidates != nil {
			if targets := m.Invalidates(payload, res.Data); len(targets) > 0 {
				res.Invalidated = e.store.Invalidate(targets...)
			}
		}
		e.logger.DebugContext(ctx, "mutation: succeeded", "mutation", m.Name, "invalidated", len(res.Invalidated))
	}
	for _, cb := range cbs {
		if cb.OnSettled != nil {
			cb.OnSettled(res.Data, res.Err)
		}
	}

	e.metrics.MutationSettled(m.Name, res.Err, e.clock.Since(start))
	tracing.End(span, res.Err)
	return res
}

// Go executes m in the background. The channel receives exactly one Result.
func Go[P, R any](ctx context.Context, e *Engine, m Mutation[P, R], payload P, cbs ...Callbacks[R]) <-chan Result[R] {
	ch := make(chan Result[R], 1)
	go func() {
		ch <- Run(ctx, e, m, payload, cbs...)
	}()
	return ch
}

func do[P, R any](ctx context.Context, m Mutation[P, R], payload P) (resp R, err error) {
	if v, ok := any(payload).(validator); ok {
		if err := v.Validate(); err != nil {
			return resp, err
		}
	}
	defer func() {
		if r := recover(); r != nil {
			var zero R
			resp = zero
			err = fmt.Errorf("%w: %s: %v", ErrPanic, m.Name, r)
		}
	}()
	return m.Do(ctx, payload)
}
