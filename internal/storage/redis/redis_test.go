package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
)

func setupTestRedis(t *testing.T, opts ...Option) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, opts...), mr
}

func TestGetMissing(t *testing.T) {
	s, _ := setupTestRedis(t)
	_, err := s.Get(context.Background(), "cart:nobody")
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestSetGetDelete(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "cart:u1", []byte(`[{"id":"a"}]`)))
	got, err := s.Get(ctx, "cart:u1")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a"}]`, string(got))

	raw, err := mr.Get("cart:u1")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a"}]`, raw)

	require.NoError(t, s.Delete(ctx, "cart:u1"))
	assert.False(t, mr.Exists("cart:u1"))
	require.ErrorIs(t, s.Delete(ctx, "cart:u1"), cart.ErrNotFound)
}

func TestSetAppliesTTL(t *testing.T) {
	s, mr := setupTestRedis(t, WithTTL(time.Hour))
	require.NoError(t, s.Set(context.Background(), "cart:u1", []byte(`[]`)))
	assert.Equal(t, time.Hour, mr.TTL("cart:u1"))

	mr.FastForward(2 * time.Hour)
	_, err := s.Get(context.Background(), "cart:u1")
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestWatchReceivesChanges(t *testing.T) {
	s, _ := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		keys []string
	)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(key string) {
			mu.Lock()
			keys = append(keys, key)
			mu.Unlock()
		})
	}()

	// The subscription is established asynchronously; keep writing until the
	// first notification arrives.
	require.Eventually(t, func() bool {
		_ = s.Set(context.Background(), "cart:u2", []byte(`[]`))
		mu.Lock()
		defer mu.Unlock()
		return len(keys) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "cart:u2", keys[0])
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestStoreOverRedis(t *testing.T) {
	s, _ := setupTestRedis(t)
	ctx := context.Background()

	a := cart.Open(ctx, s, cart.Key("sess"))
	a.Add(ctx, cart.Line{ID: "w1", Name: "Watch", Quantity: 2})

	b := cart.Open(ctx, s, cart.Key("sess"))
	require.Len(t, b.Lines(), 1)
	assert.Equal(t, "w1", b.Lines()[0].ID)
	assert.Equal(t, 2, b.Count())

	a.Clear(ctx)
	b.Reload(ctx)
	assert.Empty(t, b.Lines())
}
