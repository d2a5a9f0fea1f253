// Package cache implements the cache store: the single address space that
// maps a Key to the latest published Entry for it, tracks subscribers and
// in-flight fetches per key, and applies invalidations.
//
// Entries are immutable once published. Every replacement publishes a new
// *Entry with a higher Version, so consumers of the same key observe the same
// pointer stream and can discard out-of-order deliveries by Version.
package cache

import "context"

// Invalidation is the message exchanged over a Bus when one process applies
// invalidation targets that other processes sharing the same backend should
// mirror.
type Invalidation struct {
	// Origin identifies the publishing store so it can ignore its own
	// messages.
	Origin  string   `json:"origin"`
	Targets []Target `json:"targets"`
}

// Bus relays invalidations between stores in different processes.
type Bus interface {
	// Publish broadcasts msg to every subscriber, including the publisher.
	Publish(ctx context.Context, msg Invalidation) error

	// Subscribe calls fn for every message received until ctx is done or the
	// bus is closed. It blocks. ready is called once the subscription is
	// registered; messages published after that are delivered.
	Subscribe(ctx context.Context, ready func(), fn func(Invalidation)) error

	// Close releases the underlying connection.
	Close() error
}
