package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// outboxSize bounds the invalidations waiting to be published before
// Invalidate blocks.
const outboxSize = 256

// Attach connects the store to bus: invalidations applied locally are
// published in the order they were applied, and invalidations published by
// other stores are applied here without being re-published. Attach returns
// once the subscription is registered, or with the error that prevented it;
// the relay then runs until ctx is done. Later bus failures are logged and
// never surfaced to callers of the store.
func (s *Store) Attach(ctx context.Context, bus Bus) error {
	ready := make(chan struct{})
	failed := make(chan error, 1)
	go func() {
		err := bus.Subscribe(ctx, func() { close(ready) }, func(msg Invalidation) {
			if msg.Origin == s.id {
				return
			}
			keys := s.apply(msg.Targets)
			s.logger.Debug("cache: applied remote invalidation", "origin", msg.Origin, "keys", len(keys))
		})
		failed <- err
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("cache: invalidation subscription ended", "error", err)
		}
	}()

	select {
	case <-ready:
	case err := <-failed:
		if err == nil {
			err = errBusClosed
		}
		return fmt.Errorf("cache: subscribe: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}

	out := make(chan []Target, outboxSize)
	s.mu.Lock()
	s.outbox, s.relay = out, ctx.Done()
	s.mu.Unlock()
	go s.drain(ctx, bus, out)
	return nil
}

// drain publishes queued invalidations one at a time until ctx is done.
func (s *Store) drain(ctx context.Context, bus Bus, out <-chan []Target) {
	for {
		select {
		case <-ctx.Done():
			return
		case targets := <-out:
			s.publish(bus, targets)
		}
	}
}

// MemoryBus is an in-process Bus. It is useful for tests and for several
// stores sharing one process.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[int]chan Invalidation
	next int
	done chan struct{}
	once sync.Once
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[int]chan Invalidation),
		done: make(chan struct{}),
	}
}

// Publish delivers msg to every current subscriber.
func (b *MemoryBus) Publish(ctx context.Context, msg Invalidation) error {
	b.mu.Lock()
	chans := make([]chan Invalidation, 0, len(b.subs))
	for _, ch := range b.subs {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- msg:
		case <-b.done:
			return errBusClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe calls fn for each published message until ctx is done or the bus
// is closed.
func (b *MemoryBus) Subscribe(ctx context.Context, ready func(), fn func(Invalidation)) error {
	ch := make(chan Invalidation, 16)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()
	ready()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		case msg := <-ch:
			fn(msg)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *MemoryBus) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

var errBusClosed = errors.New("cache: bus closed")
