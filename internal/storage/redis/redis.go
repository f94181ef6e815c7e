// Package redis stores carts and session tokens in Redis and announces
// changes on a pub/sub channel so that every instance sees writes made by
// the others.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
)

// DefaultChannel is the pub/sub channel carrying changed keys.
const DefaultChannel = "storefront:changes"

var (
	_ cart.Storage = (*Storage)(nil)
	_ cart.Watcher = (*Storage)(nil)
)

// Storage implements cart.Storage and cart.Watcher on a Redis client.
type Storage struct {
	client  redis.UniversalClient
	ttl     time.Duration
	channel string
}

// Option configures a Storage.
type Option func(*Storage)

// WithTTL expires keys after d of inactivity. Zero keeps keys forever.
func WithTTL(d time.Duration) Option {
	return func(s *Storage) { s.ttl = d }
}

// WithChannel overrides the change channel.
func WithChannel(name string) Option {
	return func(s *Storage) { s.channel = name }
}

// New returns a Storage using client.
func New(client redis.UniversalClient, opts ...Option) *Storage {
	s := &Storage{client: client, channel: DefaultChannel}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the value under key or cart.ErrNotFound.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis get %q", key)
	}
	return data, nil
}

// Set stores value under key and publishes the key.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, s.ttl)
		p.Publish(ctx, s.channel, key)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "redis set %q", key)
	}
	return nil
}

// Delete removes key and publishes it. Missing keys are reported as
// cart.ErrNotFound.
func (s *Storage) Delete(ctx context.Context, key string) error {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return errors.Wrapf(err, "redis delete %q", key)
	}
	if n == 0 {
		return cart.ErrNotFound
	}
	if err := s.client.Publish(ctx, s.channel, key).Err(); err != nil {
		zctx.From(ctx).Warn("Redis publish failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Watch delivers changed keys to fn until ctx is done.
func (s *Storage) Watch(ctx context.Context, fn func(key string)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "redis subscribe")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Payload)
		}
	}
}

// Ping checks connectivity.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
