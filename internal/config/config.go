package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/ffimoveis/imoveis/pkg/config"
	"github.com/ffimoveis/imoveis/pkg/database"
	"github.com/ffimoveis/imoveis/pkg/middleware"
	"github.com/ffimoveis/imoveis/pkg/tracing"
)

// Catalog backends.
const (
	BackendMemory        = "memory"
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
)

// Config holds all configuration for the listings service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int           `env:"LISTINGS_HTTP_PORT" envDefault:"8001"`
	HTTPCacheMaxAge    time.Duration `env:"HTTP_CACHE_MAX_AGE" envDefault:"30s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofAllowedCIDRs  []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32" envSeparator:","`
	// Per-client token bucket on /api/v1; RATE_LIMIT_RPS=0 disables it.
	RateLimit middleware.RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	// Catalog backend selection (memory, postgres or elasticsearch)
	CatalogBackend string `env:"CATALOG_BACKEND" envDefault:"memory"`
	// CatalogSeedFile replaces the embedded listings of the memory backend
	// and seeds an empty Elasticsearch index.
	CatalogSeedFile string `env:"CATALOG_SEED_FILE"`

	// Postgres
	Database           database.PostgresConfig `envPrefix:"DB_"`
	SlowQueryThreshold time.Duration           `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Elasticsearch
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"imoveis_properties"`

	// Redis cache for price bounds and locations
	RedisEnabled    bool                 `env:"REDIS_ENABLED" envDefault:"false"`
	Redis           database.RedisConfig `envPrefix:"REDIS_"`
	CatalogCacheTTL time.Duration        `env:"CATALOG_CACHE_TTL" envDefault:"5m"`

	// Kafka
	KafkaEnabled   bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID   string        `env:"KAFKA_GROUP_ID" envDefault:"listings-service"`
	IdempotencyTTL time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	// OpenTelemetry
	Tracing tracing.Config `envPrefix:"OTEL_"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load listings config: %w", err)
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "listings-service"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.CatalogBackend {
	case BackendMemory, BackendPostgres, BackendElasticsearch:
	default:
		return fmt.Errorf("invalid CATALOG_BACKEND %q: must be one of memory, postgres, elasticsearch", c.CatalogBackend)
	}
	if c.CatalogBackend == BackendElasticsearch && c.ElasticsearchURL == "" {
		return fmt.Errorf("ELASTICSEARCH_URL is required for the elasticsearch backend")
	}
	if c.RedisEnabled && c.CatalogCacheTTL <= 0 {
		return fmt.Errorf("CATALOG_CACHE_TTL must be positive, got %s", c.CatalogCacheTTL)
	}
	if c.HTTPCacheMaxAge < 0 {
		return fmt.Errorf("HTTP_CACHE_MAX_AGE must not be negative, got %s", c.HTTPCacheMaxAge)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1, got %d", c.RateLimit.Burst)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if err := c.Tracing.Validate(); err != nil {
		return err
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
