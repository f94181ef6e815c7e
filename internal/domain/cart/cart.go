// Package cart implements the shopper's cart: an ordered set of lines keyed
// by product id, written through to durable storage on every change.
package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by Storage when the requested key is absent.
var ErrNotFound = errors.New("storage key not found")

// Line is one distinct product selected for purchase.
type Line struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	ImageURL  string
	Category  string
	Brand     string
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// EventKind names a cart change notification.
type EventKind string

const (
	// EventUpdated is emitted after every change, including clears and syncs.
	// Listeners that only care about "something changed" subscribe to this.
	EventUpdated EventKind = "updated"
	// EventCleared is emitted by Clear before the accompanying EventUpdated.
	EventCleared EventKind = "cleared"
	// EventSynced is emitted when another writer changed the stored cart and
	// the in-memory copy was replaced.
	EventSynced EventKind = "synced"
)

// Event describes the cart state right after a change.
type Event struct {
	Kind  EventKind
	Lines []Line
	Count int
	Total decimal.Decimal
}

// Storage is the durable key-value layer the cart is persisted to.
// Get returns ErrNotFound for absent keys.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Watcher is implemented by storages that can report changes made by other
// writers. Watch blocks, calling fn with the changed key, until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}

// Key returns the storage key holding the cart of the given session.
func Key(session string) string {
	return "cart:" + session
}
