// Package query is the read side of the synchronization layer. A [Query]
// names a cache key and the fetch that fills it; the [Engine] serves cached
// data when it is fresh and otherwise starts, or joins, a single shared
// fetch per key. [Observer] subscribes to a key and refetches whenever an
// invalidation marks its entry stale.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/Keksclan/rawrsync/cache"
)

var (
	// ErrDisabled is returned when a disabled query is fetched.
	ErrDisabled = errors.New("query: disabled")

	// ErrPanic wraps panics raised by fetch functions.
	ErrPanic = errors.New("query: fetch panicked")

	// ErrClosed is returned by Observer.Wait after Close.
	ErrClosed = errors.New("query: observer closed")
)

// Fetcher loads the value for one key. The context is detached from the
// caller that triggered the fetch: it carries the caller's values but is
// only cancelled by the per-fetch timeout.
type Fetcher func(ctx context.Context) (any, error)

// Options tune how a query treats cached data.
type Options struct {
	// StaleTime is how long a successful result counts as fresh. Zero
	// means data only goes stale through invalidation.
	StaleTime time.Duration

	// Timeout bounds a single fetch. Zero uses the engine default.
	Timeout time.Duration
}

func (o Options) merge(defaults Options) Options {
	if o.StaleTime == 0 {
		o.StaleTime = defaults.StaleTime
	}
	if o.Timeout == 0 {
		o.Timeout = defaults.Timeout
	}
	return o
}

// Query describes one cacheable read producing a T.
type Query[T any] struct {
	Key   cache.Key
	Fetch func(ctx context.Context) (T, error)

	// Disabled queries perform no network activity. They model reads whose
	// parameters are not known yet, such as a user id before login.
	Disabled bool

	Options Options
}

func (q Query[T]) fetcher() Fetcher {
	return func(ctx context.Context) (any, error) {
		v, err := q.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Load fetches q through e, discarding the value. Disabled queries are
// skipped. Load lets queries of different types be passed to Prefetch.
func (q Query[T]) Load(ctx context.Context, e *Engine) error {
	if q.Disabled {
		return nil
	}
	_, err := Fetch(ctx, e, q)
	return err
}

// Loader is implemented by every Query.
type Loader interface {
	Load(ctx context.Context, e *Engine) error
}

// State is the typed view of a cache entry.
type State[T any] struct {
	Status    cache.Status
	Data      T
	HasData   bool
	Err       error
	Stale     bool
	Fetching  bool
	UpdatedAt time.Time
	Version   uint64

	entry *cache.Entry
}

// StateOf converts a cache entry into a typed State. A nil entry is idle.
func StateOf[T any](e *cache.Entry) State[T] {
	if e == nil {
		e = cache.Idle()
	}
	s := State[T]{
		Status:    e.Status,
		HasData:   e.HasData,
		Err:       e.Err,
		Stale:     e.Stale,
		Fetching:  e.Fetching,
		UpdatedAt: e.UpdatedAt,
		Version:   e.Version,
		entry:     e,
	}
	if d, ok := e.Data.(T); ok {
		s.Data = d
	}
	return s
}

// Entry returns the underlying cache entry. Every observer of a key sees the
// same *cache.Entry for the same publication.
func (s State[T]) Entry() *cache.Entry { return s.entry }

// Refreshing reports a refetch running over previously loaded data.
func (s State[T]) Refreshing() bool { return s.Status == cache.StatusPending && s.HasData }

// Settled reports whether the state is success or error.
func (s State[T]) Settled() bool {
	return s.Status == cache.StatusSuccess || s.Status == cache.StatusError
}
