package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "rawrsync:invalidations"

// RedisBus relays invalidations over Redis pub/sub so that several processes
// talking to the same backend keep their caches consistent. Undecodable
// messages are skipped.
type RedisBus struct {
	rdb     *redis.Client
	channel string
}

// NewRedisBus creates a RedisBus on channel (DefaultChannel when empty).
func NewRedisBus(addr, password string, db int, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisBus{rdb: rdb, channel: channel}
}

// Publish encodes msg as JSON and publishes it on the channel.
func (b *RedisBus) Publish(ctx context.Context, msg Invalidation) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("cache: encode invalidation: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Subscribe listens on the channel until ctx is done or the client is
// closed.
func (b *RedisBus) Subscribe(ctx context.Context, ready func(), fn func(Invalidation)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription confirmation so no message published after
	// Subscribe returns control is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ready()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Invalidation
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			fn(msg)
		}
	}
}

// Ping checks the Redis connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
