// Package session keeps the per-shopper state of the storefront: the cart
// store, the active checkout flow and the stored bearer token.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
)

// MaxIDLength bounds the length of a session id.
const MaxIDLength = 128

// ErrInvalidID is returned for empty, oversized or non-printable session ids.
var ErrInvalidID = errors.New("invalid session id")

// ValidID reports whether id is usable as a session id.
func ValidID(id string) bool {
	if id == "" || len(id) > MaxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// TokenKey returns the storage key holding the bearer token of a session.
func TokenKey(id string) string {
	return "token:" + id
}

// Session is one shopper's live state.
type Session struct {
	ID   string
	Cart *cart.Store

	mu   sync.Mutex
	flow *checkout.Flow

	lastSeen atomic.Int64
	streams  atomic.Int32
}

// Flow returns the active checkout flow, or nil.
func (s *Session) Flow() *checkout.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow
}

// SetFlow replaces the active checkout flow.
func (s *Session) SetFlow(f *checkout.Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow = f
}

// Attach marks a long-lived reader, such as an event stream, so the session
// is not evicted while it is open. The returned function detaches it.
func (s *Session) Attach() (detach func()) {
	s.streams.Add(1)
	var once sync.Once
	return func() { once.Do(func() { s.streams.Add(-1) }) }
}

// Manager owns the sessions of this instance.
type Manager struct {
	storage cart.Storage
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTTL evicts sessions unused for d. Evicted carts stay in storage
// and are reloaded on the next request; an unfinished checkout is lost.
func WithIdleTTL(d time.Duration) Option {
	return func(m *Manager) { m.idleTTL = d }
}

// NewManager creates a Manager persisting into storage.
func NewManager(storage cart.Storage, opts ...Option) *Manager {
	m := &Manager{
		storage:  storage,
		idleTTL:  30 * time.Minute,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get returns the session with the given id, loading its cart on first use.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		// Load outside the lock; the first loader wins a race.
		loaded := &Session{ID: id, Cart: cart.Open(ctx, m.storage, cart.Key(id))}

		m.mu.Lock()
		if s, ok = m.sessions[id]; !ok {
			s = loaded
			m.sessions[id] = s
		}
		m.mu.Unlock()
	}
	s.lastSeen.Store(m.now().UnixNano())
	return s, nil
}

// Len returns the number of loaded sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Tokens returns the token source of a session.
func (m *Manager) Tokens(id string) checkout.TokenSource {
	return tokenSource{storage: m.storage, key: TokenKey(id)}
}

// SetToken stores the bearer token of a session.
func (m *Manager) SetToken(ctx context.Context, id, token string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return m.DeleteToken(ctx, id)
	}
	if err := m.storage.Set(ctx, TokenKey(id), []byte(token)); err != nil {
		return errors.Wrap(err, "store token")
	}
	return nil
}

// DeleteToken forgets the bearer token of a session.
func (m *Manager) DeleteToken(ctx context.Context, id string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	if err := m.storage.Delete(ctx, TokenKey(id)); err != nil && !errors.Is(err, cart.ErrNotFound) {
		return errors.Wrap(err, "delete token")
	}
	return nil
}

type tokenSource struct {
	storage cart.Storage
	key     string
}

func (t tokenSource) Token(ctx context.Context) (string, error) {
	raw, err := t.storage.Get(ctx, t.key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// Run follows storage changes made by other writers and evicts idle
// sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w, ok := m.storage.(cart.Watcher); ok {
		g.Go(func() error {
			return w.Watch(ctx, func(key string) { m.dispatch(ctx, key) })
		})
	}
	if m.idleTTL > 0 {
		g.Go(func() error {
			m.evictLoop(ctx)
			return nil
		})
	}
	return g.Wait()
}

// dispatch reloads the cart behind key if its session is loaded here.
func (m *Manager) dispatch(ctx context.Context, key string) {
	id, ok := strings.CutPrefix(key, cart.Key(""))
	if !ok {
		return
	}
	m.mu.Lock()
	s := m.sessions[id]
	m.mu.Unlock()
	if s == nil {
		return
	}
	s.Cart.Reload(ctx)
}

func (m *Manager) evictLoop(ctx context.Context) {
	interval := m.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.evict(); n > 0 {
				zctx.From(ctx).Debug("Evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// evict drops sessions idle for longer than the TTL that have no attached
// streams.
func (m *Manager) evict() int {
	cutoff := m.now().Add(-m.idleTTL).UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if s.streams.Load() > 0 || s.lastSeen.Load() > cutoff {
			continue
		}
		delete(m.sessions, id)
		n++
	}
	return n
}
