package cart

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store owns one cart and keeps it in sync with a single storage key.
//
// Every mutation holds the store lock until its storage write has returned,
// so operations are applied and persisted strictly one after another.
// Storage failures never reach the caller: a cart that cannot be loaded is
// empty, and a failed write leaves the in-memory state authoritative.
//
// Subscribers are called in mutation order, outside the store lock. They
// may read the store but must not mutate it synchronously. Mutations take
// the delivery lock before the store lock, so a subscriber reading the store
// never waits on a writer that waits on delivery.
type Store struct {
	key     string
	storage Storage

	mu    sync.Mutex
	lines []Line
	raw   []byte // last encoding written to or read from storage

	notify  sync.Mutex // serializes mutations with their delivery, taken before mu
	subs    map[uint64]func(Event)
	nextSub uint64
}

// Open loads the cart stored under key. Missing or unreadable data yields an
// empty cart.
func Open(ctx context.Context, storage Storage, key string) *Store {
	s := &Store{
		key:     key,
		storage: storage,
		subs:    make(map[uint64]func(Event)),
	}
	lines, raw, err := s.load(ctx)
	if err != nil {
		zctx.From(ctx).Warn("Cart load failed, starting empty",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	s.lines, s.raw = lines, raw
	return s
}

func (s *Store) load(ctx context.Context) ([]Line, []byte, error) {
	raw, err := s.storage.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "read cart")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, raw, nil
	}
	lines, err := Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	return lines, raw, nil
}

// Key returns the storage key backing the store.
func (s *Store) Key() string { return s.key }

// Add merges line into the cart. A line whose id is already present has its
// quantity increased by line.Quantity; otherwise the line is appended. A
// non-positive quantity counts as 1. A line without an id cannot be
// addressed later and is dropped.
func (s *Store) Add(ctx context.Context, line Line) {
	if line.ID == "" {
		zctx.From(ctx).Warn("Ignoring cart line without id", zap.String("key", s.key))
		return
	}
	if line.Quantity <= 0 {
		line.Quantity = 1
	}
	if line.UnitPrice.IsNegative() {
		line.UnitPrice = decimal.Zero
	}

	s.notify.Lock()
	defer s.notify.Unlock()
	s.mu.Lock()
	if i := s.indexOf(line.ID); i >= 0 {
		s.lines[i].Quantity += line.Quantity
	} else {
		s.lines = append(s.lines, line)
	}
	s.commit(ctx, EventUpdated)
}

// Remove deletes the line with the given id, if any.
func (s *Store) Remove(ctx context.Context, id string) {
	s.notify.Lock()
	defer s.notify.Unlock()
	s.mu.Lock()
	s.remove(id)
	s.commit(ctx, EventUpdated)
}

// UpdateQuantity sets the quantity of an existing line. A quantity of zero or
// less removes the line. Unknown ids are left alone.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) {
	s.notify.Lock()
	defer s.notify.Unlock()
	s.mu.Lock()
	if quantity <= 0 {
		s.remove(id)
	} else if i := s.indexOf(id); i >= 0 {
		s.lines[i].Quantity = quantity
	}
	s.commit(ctx, EventUpdated)
}

// Clear empties the cart and erases its stored representation.
func (s *Store) Clear(ctx context.Context) {
	s.notify.Lock()
	defer s.notify.Unlock()
	s.mu.Lock()
	s.lines = nil
	s.raw = nil
	if err := s.storage.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrNotFound) {
		zctx.From(ctx).Warn("Cart delete failed",
			zap.String("key", s.key),
			zap.Error(err),
		)
	}
	s.deliver(EventCleared, EventUpdated)
}

// Reload re-reads the stored cart after another writer changed it. When the
// stored bytes differ from what this store last saw, the in-memory lines are
// replaced (last write wins) and EventSynced is emitted. Unreadable data is
// ignored.
func (s *Store) Reload(ctx context.Context) {
	s.notify.Lock()
	defer s.notify.Unlock()
	s.mu.Lock()
	lines, raw, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		zctx.From(ctx).Warn("Cart reload failed", zap.String("key", s.key), zap.Error(err))
		return
	}
	if bytes.Equal(raw, s.raw) {
		s.mu.Unlock()
		return
	}
	s.lines, s.raw = lines, raw
	s.deliver(EventSynced, EventUpdated)
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lines)
}

// Total returns the sum of unit price × quantity over all lines.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Total(s.lines)
}

// Count returns the sum of quantities over all lines.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Count(s.lines)
}

// Subscribe registers fn for change events and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// commit persists the current lines and delivers kind. Must be called with
// notify and mu held; releases mu.
func (s *Store) commit(ctx context.Context, kind EventKind) {
	raw := Encode(s.lines)
	if err := s.storage.Set(ctx, s.key, raw); err != nil {
		zctx.From(ctx).Warn("Cart write failed, keeping in-memory state",
			zap.String("key", s.key),
			zap.Error(err),
		)
	}
	s.raw = raw
	s.deliver(kind)
}

// deliver snapshots state and subscribers, releases mu and calls every
// subscriber once per kind. Must be called with notify and mu held.
func (s *Store) deliver(kinds ...EventKind) {
	lines := slices.Clone(s.lines)
	count, total := Count(lines), Total(lines)
	subs := make([]func(Event), 0, len(s.subs))
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}

	s.mu.Unlock()

	for _, kind := range kinds {
		ev := Event{Kind: kind, Lines: lines, Count: count, Total: total}
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.lines, func(l Line) bool { return l.ID == id })
}

func (s *Store) remove(id string) {
	if i := s.indexOf(id); i >= 0 {
		s.lines = slices.Delete(s.lines, i, i+1)
	}
}

// Total returns the sum of unit price × quantity over lines. Negative prices
// and quantities count as zero.
func Total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 || l.UnitPrice.IsNegative() {
			continue
		}
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Count returns the sum of quantities over lines.
func Count(lines []Line) int {
	n := 0
	for _, l := range lines {
		if l.Quantity > 0 {
			n += l.Quantity
		}
	}
	return n
}
