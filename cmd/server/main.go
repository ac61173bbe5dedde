// Command listings serves the listing catalog over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffimoveis/imoveis/internal/app"
	"github.com/ffimoveis/imoveis/internal/config"
	"github.com/ffimoveis/imoveis/migrations"
	"github.com/ffimoveis/imoveis/pkg/database"
	"github.com/ffimoveis/imoveis/pkg/logger"
)

const serviceName = "listings-service"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "listings",
		Short: "Serve the real-estate listing catalog",
		Long: `listings answers searches, price bounds and location lookups for the
listing browser. Configuration comes from the environment; CATALOG_BACKEND
selects memory, postgres or elasticsearch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context())
		},
	})
	return root
}

func load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(serviceName, cfg.LogLevel), nil
}

func serve(ctx context.Context) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}
	log.Info("starting listings service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("catalog_backend", cfg.CatalogBackend),
	)

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("run application: %w", err)
	}

	log.Info("listings service stopped")
	return nil
}

func migrate(ctx context.Context) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}

	pool, err := database.NewPostgresPool(ctx, &cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("migrations applied", slog.String("host", cfg.Database.Host))
	return nil
}
