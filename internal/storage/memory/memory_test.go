package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
)

func TestStorage(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, cart.ErrNotFound)

	v := []byte("v1")
	require.NoError(t, s.Set(ctx, "k", v))
	v[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got), "stored value is a copy")

	got[0] = 'Y'
	again, _ := s.Get(ctx, "k")
	assert.Equal(t, "v1", string(again), "returned value is a copy")

	require.NoError(t, s.Delete(ctx, "k"))
	require.ErrorIs(t, s.Delete(ctx, "k"), cart.ErrNotFound)
}

func TestWatch(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	keys := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, func(k string) { keys <- k }) }()

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.watchers) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Set(ctx, "a", nil))
	require.NoError(t, s.Delete(ctx, "a"))
	_ = s.Delete(ctx, "a")

	assert.Equal(t, "a", <-keys)
	assert.Equal(t, "a", <-keys)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, keys)
}
