package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/storage/memory"
)

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("abc-123"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("with space"))
	assert.False(t, ValidID("tab\t"))
	assert.False(t, ValidID(strings.Repeat("a", MaxIDLength+1)))
	assert.True(t, ValidID(strings.Repeat("a", MaxIDLength)))
}

func TestGetReusesSession(t *testing.T) {
	m := NewManager(memory.New())
	ctx := context.Background()

	a, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	b, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.Len())

	_, err = m.Get(ctx, "")
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestGetLoadsPersistedCart(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	seed := cart.Open(ctx, st, cart.Key("s1"))
	seed.Add(ctx, cart.Line{ID: "w1", UnitPrice: decimal.NewFromInt(1000), Quantity: 2})

	m := NewManager(st)
	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Cart.Count())
	assert.True(t, s.Cart.Total().Equal(decimal.NewFromInt(2000)))
}

func TestTokens(t *testing.T) {
	m := NewManager(memory.New())
	ctx := context.Background()

	_, err := m.Tokens("s1").Token(ctx)
	require.ErrorIs(t, err, cart.ErrNotFound)

	require.NoError(t, m.SetToken(ctx, "s1", " abc "))
	tok, err := m.Tokens("s1").Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	require.NoError(t, m.DeleteToken(ctx, "s1"))
	require.NoError(t, m.DeleteToken(ctx, "s1"))
	_, err = m.Tokens("s1").Token(ctx)
	require.ErrorIs(t, err, cart.ErrNotFound)

	require.ErrorIs(t, m.SetToken(ctx, "bad id", "x"), ErrInvalidID)
}

func TestRunReloadsForeignWrites(t *testing.T) {
	st := memory.New()
	m := NewManager(st, WithIdleTTL(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)

	events := make(chan cart.EventKind, 8)
	unsubscribe := s.Cart.Subscribe(func(ev cart.Event) {
		select {
		case events <- ev.Kind:
		default:
		}
	})
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Another instance writes the same cart.
	other := cart.Open(ctx, st, cart.Key("s1"))
	require.Eventually(t, func() bool {
		other.UpdateQuantity(ctx, "w1", 0)
		other.Add(ctx, cart.Line{ID: "w1", Quantity: 3})
		return s.Cart.Count() > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, drain(events), cart.EventSynced)

	cancel()
	require.NoError(t, <-done)
}

func drain(ch chan cart.EventKind) []cart.EventKind {
	var out []cart.EventKind
	for {
		select {
		case k := <-ch:
			out = append(out, k)
		default:
			return out
		}
	}
}

func TestEvictIdleSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(memory.New(), WithIdleTTL(time.Minute))
	m.now = func() time.Time { return now }
	ctx := context.Background()

	idle, err := m.Get(ctx, "idle")
	require.NoError(t, err)
	idle.SetFlow(&checkout.Flow{})

	streaming, err := m.Get(ctx, "streaming")
	require.NoError(t, err)
	detach := streaming.Attach()

	now = now.Add(2 * time.Minute)
	_, err = m.Get(ctx, "fresh")
	require.NoError(t, err)

	assert.Equal(t, 1, m.evict())
	assert.Equal(t, 2, m.Len())

	detach()
	detach()
	assert.Equal(t, 1, m.evict())
	assert.Equal(t, 1, m.Len())

	again, err := m.Get(ctx, "idle")
	require.NoError(t, err)
	assert.NotSame(t, idle, again)
	assert.Nil(t, again.Flow())
}
