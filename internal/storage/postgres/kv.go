package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	getValueSQL = `SELECT value FROM storefront_kv WHERE key = $1`

	setValueSQL = `INSERT INTO storefront_kv (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	deleteValueSQL = `DELETE FROM storefront_kv WHERE key = $1`

	// notifyChannel is raised by the storefront_kv trigger with the changed
	// key as payload.
	notifyChannel = "storefront_kv"
)

var (
	_ cart.Storage = (*Storage)(nil)
	_ cart.Watcher = (*Storage)(nil)
)

// Storage is a key-value store over the storefront_kv table. Writes from any
// instance are announced through LISTEN/NOTIFY.
type Storage struct {
	pool       *pgxpool.Pool
	retryDelay time.Duration
}

// NewStorage returns a Storage that uses the given pool.
func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool, retryDelay: time.Second}
}

// Get returns the value stored under key or cart.ErrNotFound.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.pool.QueryRow(ctx, getValueSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get %q", key)
	}
	return value, nil
}

// Set stores value under key.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.pool.Exec(ctx, setValueSQL, key, value); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	return nil
}

// Delete removes key. Missing keys are reported as cart.ErrNotFound.
func (s *Storage) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, deleteValueSQL, key)
	if err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// Watch listens for key changes until ctx is done. A dropped connection is
// re-established after a short delay.
func (s *Storage) Watch(ctx context.Context, fn func(key string)) error {
	lg := zctx.From(ctx)
	for {
		err := s.listen(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}
		lg.Warn("Postgres change feed interrupted, reconnecting", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Storage) listen(ctx context.Context, fn func(key string)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire listener connection")
	}
	// The session keeps LISTEN state, so it is not returned to the pool.
	pgConn := conn.Hijack()
	defer func() { _ = pgConn.Close(context.WithoutCancel(ctx)) }()

	if _, err := pgConn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return errors.Wrap(err, "listen")
	}
	for {
		n, err := pgConn.WaitForNotification(ctx)
		if err != nil {
			return errors.Wrap(err, "wait for notification")
		}
		fn(n.Payload)
	}
}
