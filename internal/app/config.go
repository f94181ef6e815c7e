package app

import (
	"net/url"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Commerce  CommerceConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StorageConfig selects where carts and tokens are persisted.
type StorageConfig struct {
	Backend     string        `default:"memory" usage:"Cart storage backend: memory, redis or postgres"`
	DatabaseURL string        `usage:"PostgreSQL connection URL (STOREFRONT_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string        `usage:"Redis connection URL (STOREFRONT_STORAGE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	RedisTTL    time.Duration `default:"720h" usage:"Expiry of cart and token keys in Redis" flag:"redis-ttl"`
	Ledger      bool          `default:"true" usage:"Record checkout submissions in PostgreSQL when a database URL is set"`
}

// CommerceConfig points at the external order, payment and coupon API.
type CommerceConfig struct {
	BaseURL   string        `usage:"Commerce API base URL" flag:"commerce-url"`
	Timeout   time.Duration `default:"15s" usage:"Deadline of each commerce API call" flag:"commerce-timeout"`
	HealthURL string        `usage:"Optional commerce API URL probed for readiness" flag:"commerce-health-url"`
}

// SessionConfig controls in-process session state.
type SessionConfig struct {
	IdleTTL        time.Duration `default:"30m" usage:"Evict sessions idle for this long" flag:"session-idle-ttl"`
	EventKeepAlive time.Duration `default:"15s" usage:"Keep-alive interval of cart event streams" flag:"event-keepalive"`
}

// RateLimitConfig controls the per-session sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"120" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Storage.RedisURL == "" {
		c.Storage.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Commerce.BaseURL)
	if c.Commerce.BaseURL == "" || err != nil || u.Host == "" {
		return errors.New("commerce API base URL is required: set STOREFRONT_COMMERCE_BASE_URL")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("redis backend needs a URL: set STOREFRONT_STORAGE_REDIS_URL or REDIS_URL")
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("postgres backend needs a URL: set STOREFRONT_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}
