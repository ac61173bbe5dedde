package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/catalog/cache"
	esengine "github.com/ffimoveis/imoveis/internal/catalog/elasticsearch"
	"github.com/ffimoveis/imoveis/internal/catalog/memory"
	"github.com/ffimoveis/imoveis/internal/catalog/postgres"
	"github.com/ffimoveis/imoveis/internal/config"
	"github.com/ffimoveis/imoveis/internal/domain"
	"github.com/ffimoveis/imoveis/internal/event"
	handler "github.com/ffimoveis/imoveis/internal/handler/http"
	"github.com/ffimoveis/imoveis/internal/service"
	"github.com/ffimoveis/imoveis/migrations"
	"github.com/ffimoveis/imoveis/pkg/database"
	"github.com/ffimoveis/imoveis/pkg/health"
	pkgkafka "github.com/ffimoveis/imoveis/pkg/kafka"
	"github.com/ffimoveis/imoveis/pkg/middleware"
	"github.com/ffimoveis/imoveis/pkg/tracing"
)

// App wires together all dependencies and runs the listings service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	producer   *pkgkafka.Producer
	dlq        *pkgkafka.DLQProducer
	consumers  []*pkgkafka.Consumer
	httpServer *http.Server
	shutdownTr tracing.Shutdown
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	a.shutdownTr, err = tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	backend, err := a.newBackend(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	var opts []service.Option
	if cfg.RedisEnabled {
		a.redis, err = database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		cached := cache.New(backend, a.redis, cfg.CatalogCacheTTL, logger)
		opts = append(opts, service.WithAggregates(cached), service.WithInvalidator(cached))
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
		logger.Info("catalog cache enabled",
			slog.String("addr", cfg.Redis.Addr()),
			slog.Duration("ttl", cfg.CatalogCacheTTL),
		)
	}

	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		opts = append(opts, service.WithEventPublisher(a.producer))
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	listingService := service.NewListingService(backend, logger, opts...)

	if cfg.KafkaEnabled {
		a.consumers = a.newConsumers(listingService)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.Environment = cfg.Environment

	router := handler.NewRouter(listingService, healthHandler, handler.RouterConfig{
		CORS:        cors,
		CacheMaxAge: cfg.HTTPCacheMaxAge,
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
		RateLimit:   cfg.RateLimit,
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// newBackend builds the catalog selected by CATALOG_BACKEND and registers
// its health check.
func (a *App) newBackend(ctx context.Context, hh *health.Handler) (catalog.Catalog, error) {
	cfg, logger := a.cfg, a.logger

	switch cfg.CatalogBackend {
	case config.BackendPostgres:
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
		pool, err := database.NewPostgresPool(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "listings"); err != nil {
			logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
		}
		hh.RegisterCritical("postgres", pool.Ping)
		logger.Info("postgres catalog initialized", slog.String("host", cfg.Database.Host))
		return postgres.New(pool), nil

	case config.BackendElasticsearch:
		es, err := esengine.New(ctx, cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch catalog: %w", err)
		}
		if err := a.seedIndex(ctx, es); err != nil {
			return nil, err
		}
		hh.RegisterCritical("elasticsearch", es.Ping)
		logger.Info("elasticsearch catalog initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
		return es, nil

	default:
		records, err := a.seedRecords()
		if err != nil {
			return nil, err
		}
		mem := memory.New()
		mem.Replace(records)
		logger.Info("in-memory catalog initialized", slog.Int("listings", mem.Len()))
		return mem, nil
	}
}

// seedIndex bulk-loads the seed listings into an empty index.
func (a *App) seedIndex(ctx context.Context, es *esengine.Catalog) error {
	existing, err := es.FetchAllProperties(ctx)
	if err != nil {
		return fmt.Errorf("inspect elasticsearch index: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	records, err := a.seedRecords()
	if err != nil {
		return err
	}
	if err := es.BulkIndex(ctx, records); err != nil {
		return fmt.Errorf("seed elasticsearch index: %w", err)
	}
	a.logger.Info("elasticsearch index seeded", slog.Int("listings", len(records)))
	return nil
}

// seedRecords reads CATALOG_SEED_FILE, or the bundled listings when unset.
func (a *App) seedRecords() ([]domain.PropertyRecord, error) {
	if a.cfg.CatalogSeedFile == "" {
		mem, err := memory.NewSeeded()
		if err != nil {
			return nil, err
		}
		return mem.FetchAllProperties(context.Background())
	}
	f, err := os.Open(a.cfg.CatalogSeedFile)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return memory.Decode(f)
}

// newConsumers subscribes to the property topics so that writes made by
// other services reach the local catalog.
func (a *App) newConsumers(syncer event.PropertySyncer) []*pkgkafka.Consumer {
	cfg, logger := a.cfg, a.logger

	eventConsumer := event.NewConsumer(syncer, logger)

	var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	if a.redis != nil {
		store = pkgkafka.NewRedisIdempotencyStore(a.redis, "imoveis:listings:processed:", cfg.IdempotencyTTL)
	}
	h := pkgkafka.IdempotentHandler(store, eventConsumer.Handle, logger)

	a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

	var consumers []*pkgkafka.Consumer
	for _, topic := range event.Topics() {
		consumerCfg := pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}
		consumers = append(consumers, pkgkafka.NewConsumer(consumerCfg, h, logger, pkgkafka.WithDeadLetter(a.dlq)))
	}
	logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Int("topic_count", len(consumers)),
	)
	return consumers
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("backend", a.cfg.CatalogBackend),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.shutdownTr != nil {
		if err := a.shutdownTr(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeResources())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases connections opened by NewApp.
func (a *App) closeResources() error {
	var errs []error
	if a.producer != nil {
		errs = append(errs, a.producer.Close())
	}
	if a.dlq != nil {
		errs = append(errs, a.dlq.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
