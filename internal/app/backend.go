package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
)

// backend is the opened persistence layer.
type backend struct {
	storage cart.Storage
	ledger  checkout.Ledger
	pingers map[string]health.Pinger
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend connects the configured cart storage. A database URL also
// enables the checkout ledger, whatever the cart backend.
func openBackend(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (_ *backend, rerr error) {
	b := &backend{pingers: make(map[string]health.Pinger)}
	defer func() {
		if rerr != nil {
			b.Close()
		}
	}()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" && (cfg.Backend == BackendPostgres || cfg.Ledger) {
		var err error
		pool, err = postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		b.closers = append(b.closers, pool.Close)
		b.pingers["postgres"] = pool

		if err := postgres.RunMigrations(pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		if cfg.Ledger {
			b.ledger = postgres.NewLedger(pool)
		}
	}

	switch cfg.Backend {
	case BackendPostgres:
		b.storage = postgres.NewStorage(pool)
	case BackendRedis:
		opt, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		client := goredis.NewClient(opt)
		b.closers = append(b.closers, func() { _ = client.Close() })

		s := redis.New(client, redis.WithTTL(cfg.RedisTTL))
		if err := s.Ping(ctx); err != nil {
			return nil, errors.Wrap(err, "ping redis")
		}
		b.storage = s
		b.pingers["redis"] = s
	default:
		b.storage = memory.New()
	}

	lg.Info("Storage ready",
		zap.String("backend", cfg.Backend),
		zap.Bool("ledger", b.ledger != nil),
	)
	return b, nil
}
