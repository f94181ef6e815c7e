// Package memory provides an in-process cart.Storage with change
// notification. It is used when no external store is configured and in tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/storefront/internal/domain/cart"
)

var (
	_ cart.Storage = (*Storage)(nil)
	_ cart.Watcher = (*Storage)(nil)
)

// Storage is a concurrency-safe map of keys to byte values.
type Storage struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[chan string]struct{}
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		values:   make(map[string][]byte),
		watchers: make(map[chan string]struct{}),
	}
}

// Get returns a copy of the value stored under key.
func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return slices.Clone(v), nil
}

// Set stores a copy of value under key and notifies watchers.
func (s *Storage) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.values[key] = slices.Clone(value)
	s.mu.Unlock()

	s.publish(key)
	return nil
}

// Delete removes key and notifies watchers. Absent keys are reported as
// cart.ErrNotFound.
func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()

	if !existed {
		return cart.ErrNotFound
	}
	s.publish(key)
	return nil
}

// Watch calls fn for every key changed through this Storage until ctx is
// done. Notifications for a slow watcher are dropped rather than blocking
// writers.
func (s *Storage) Watch(ctx context.Context, fn func(key string)) error {
	ch := make(chan string, 64)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers, ch)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case key := <-ch:
			fn(key)
		}
	}
}

func (s *Storage) publish(key string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.watchers {
		select {
		case ch <- key:
		default:
		}
	}
}
