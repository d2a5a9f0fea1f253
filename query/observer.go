package query

import (
	"context"
	"sync"

	"github.com/Keksclan/rawrsync/cache"
)

// Observer is a live subscription to one query. It delivers every new state
// of its key, and refetches whenever the entry is invalidated while the
// observer is enabled. Closing an observer never cancels a fetch in flight.
type Observer[T any] struct {
	engine *Engine
	query  Query[T]
	ctx    context.Context

	mu      sync.Mutex
	enabled bool
	closed  bool
	last    *cache.Entry
	unsub   func()
	updates chan State[T]
}

// Observe subscribes to q. An enabled query is evaluated immediately: it
// serves fresh cached data or starts (or joins) a fetch. ctx only supplies
// values such as trace context to the fetches the observer triggers.
func Observe[T any](ctx context.Context, e *Engine, q Query[T]) *Observer[T] {
	o := &Observer[T]{
		engine:  e,
		query:   q,
		ctx:     context.WithoutCancel(ctx),
		updates: make(chan State[T], 1),
	}
	if !q.Disabled {
		o.SetEnabled(true)
	}
	return o
}

// Key returns the observed key.
func (o *Observer[T]) Key() cache.Key { return o.query.Key }

// Current returns the latest state. A disabled observer is always idle.
func (o *Observer[T]) Current() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled {
		return StateOf[T](nil)
	}
	return StateOf[T](o.last)
}

// Updates delivers new states. The channel holds only the most recent
// undelivered state, so a slow reader skips intermediate states but never
// blocks the store. It is closed by Close.
func (o *Observer[T]) Updates() <-chan State[T] { return o.updates }

// Wait blocks until the current state satisfies cond or ctx ends.
func (o *Observer[T]) Wait(ctx context.Context, cond func(State[T]) bool) (State[T], error) {
	for {
		if s := o.Current(); cond(s) {
			return s, nil
		}
		select {
		case _, ok := <-o.Updates():
			if !ok {
				return o.Current(), ErrClosed
			}
		case <-ctx.Done():
			return o.Current(), ctx.Err()
		}
	}
}

// SetEnabled turns the observer on or off. Enabling subscribes and evaluates
// the query; disabling unsubscribes and reports an idle state.
func (o *Observer[T]) SetEnabled(enabled bool) {
	o.mu.Lock()
	if o.closed || o.enabled == enabled {
		o.mu.Unlock()
		return
	}
	o.enabled = enabled
	if !enabled {
		unsub := o.unsub
		o.unsub = nil
		o.last = nil
		o.sendLocked(StateOf[T](nil))
		o.mu.Unlock()
		unsub()
		return
	}
	o.mu.Unlock()

	unsub := o.engine.store.Subscribe(o.query.Key, o.onEntry)
	o.mu.Lock()
	if o.closed || !o.enabled {
		// Lost a race with Close or SetEnabled(false).
		o.mu.Unlock()
		unsub()
		return
	}
	o.unsub = unsub
	o.mu.Unlock()

	o.push(o.engine.Ensure(o.ctx, o.query.Key, o.query.fetcher(), o.query.Options))
}

// Enabled reports whether the observer is active.
func (o *Observer[T]) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// Refetch loads the query again even if the cached data is fresh.
func (o *Observer[T]) Refetch() {
	if !o.Enabled() {
		return
	}
	o.push(o.engine.Refetch(o.ctx, o.query.Key, o.query.fetcher(), o.query.Options))
}

// Close unsubscribes and closes the Updates channel. It is safe to call more
// than once.
func (o *Observer[T]) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.enabled = false
	unsub := o.unsub
	o.unsub = nil
	close(o.updates)
	o.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// onEntry is the store listener.
func (o *Observer[T]) onEntry(_ cache.Key, e *cache.Entry) {
	if !o.push(e) {
		return
	}
	if e.Stale && !e.Fetching {
		o.engine.Ensure(o.ctx, o.query.Key, o.query.fetcher(), o.query.Options)
	}
}

// push records e when it is newer than the last entry seen and reports
// whether it was accepted. Deliveries for one key may race; the entry
// version restores their order.
func (o *Observer[T]) push(e *cache.Entry) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || !o.enabled {
		return false
	}
	if o.last != nil && e.Version <= o.last.Version {
		return false
	}
	o.last = e
	o.sendLocked(StateOf[T](e))
	return true
}

func (o *Observer[T]) sendLocked(s State[T]) {
	select {
	case <-o.updates:
	default:
	}
	o.updates <- s
}
