// Command seed-cart fills a shopper session with products from a JSON
// catalog, for local development and demos against a shared backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/session"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/redis"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Brand    string          `json:"brand"`
	Quantity int             `json:"quantity"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
	} `json:"image"`
}

func main() {
	var (
		databaseURL  string
		redisURL     string
		productsFile string
		sessionID    string
		token        string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisURL, "redis-url", "", "Redis connection URL (or REDIS_URL env), used when no database URL is set")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&sessionID, "session", "demo", "session id to fill")
	flag.StringVar(&token, "token", "", "bearer token to store for the session (or STOREFRONT_SEED_TOKEN env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if databaseURL == "" && redisURL == "" {
		slog.Error("storage is required: set --database-url, --redis-url, DATABASE_URL or REDIS_URL")
		os.Exit(1)
	}
	if token == "" {
		token = os.Getenv("STOREFRONT_SEED_TOKEN")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	storage, closeStorage, err := open(ctx, databaseURL, redisURL)
	if err != nil {
		slog.Error("open storage failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStorage()

	if err := run(ctx, storage, productsFile, sessionID, token); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		closeStorage()
		os.Exit(1)
	}

	slog.Info("seed completed successfully", slog.String("session", sessionID))
}

func open(ctx context.Context, databaseURL, redisURL string) (cart.Storage, func(), error) {
	if databaseURL != "" {
		slog.Info("connecting to database")
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to database")
		}
		slog.Info("running migrations")
		if err := postgres.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		return postgres.NewStorage(pool), pool.Close, nil
	}

	slog.Info("connecting to redis")
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse redis url")
	}
	client := goredis.NewClient(opt)
	s := redis.New(client)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "ping redis")
	}
	return s, func() { _ = client.Close() }, nil
}

func run(ctx context.Context, storage cart.Storage, productsFile, sessionID, token string) error {
	if !session.ValidID(sessionID) {
		return session.ErrInvalidID
	}

	slog.Info("reading products file", slog.String("path", productsFile))
	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	store := cart.Open(ctx, storage, cart.Key(sessionID))
	store.Clear(ctx)
	for _, p := range products {
		store.Add(ctx, cart.Line{
			ID:        p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  p.Quantity,
			ImageURL:  p.Image.Thumbnail,
			Category:  p.Category,
			Brand:     p.Brand,
		})
		slog.Info("added product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	slog.Info("cart seeded",
		slog.Int("count", store.Count()),
		slog.String("total", store.Total().StringFixed(2)),
	)

	if token != "" {
		if err := session.NewManager(storage).SetToken(ctx, sessionID, token); err != nil {
			return errors.Wrap(err, "store token")
		}
		slog.Info("stored session token")
	}
	return nil
}
