package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/viewercore/internal/api"
	"github.com/FairForge/viewercore/internal/config"
	"github.com/FairForge/viewercore/internal/drivers"
	"github.com/FairForge/viewercore/internal/image360"
	"github.com/FairForge/viewercore/internal/logging"
	"github.com/FairForge/viewercore/internal/metrics"
	"github.com/FairForge/viewercore/internal/provider"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *configPath)
		},
	}
}

// buildDriver selects the blob backend and wraps it with transparent
// decompression and optional read throttling.
func buildDriver(ctx context.Context, cfg config.ProviderConfig, logger *zap.Logger) (drivers.Driver, error) {
	var backend drivers.Driver

	switch cfg.Mode {
	case "local", "postgres":
		if err := os.MkdirAll(cfg.LocalPath, 0750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
		backend = drivers.NewLocalDriver(cfg.LocalPath, logger)
		logger.Info("using local storage", zap.String("path", cfg.LocalPath))

	case "s3":
		s3Driver, err := drivers.NewS3Driver(ctx, drivers.S3Options{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create S3 driver: %w", err)
		}
		backend = drivers.NewRetryingDriver(s3Driver,
			drivers.NewRetryPolicy(drivers.WithRetryLogger(logger)))
		logger.Info("using S3-compatible storage", zap.String("endpoint", cfg.S3.Endpoint))

	default:
		return nil, fmt.Errorf("invalid provider mode %q", cfg.Mode)
	}

	var d drivers.Driver = drivers.NewDecompressingDriver(backend, logger)
	if cfg.BytesPerSecond > 0 {
		d = drivers.NewThrottledDriver(d, cfg.BytesPerSecond, logger)
	}
	return d, nil
}

// healthChecks reports the first failing backend.
type healthChecks []api.HealthChecker

func (h healthChecks) HealthCheck(ctx context.Context) error {
	for _, c := range h {
		if err := c.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	driver, err := buildDriver(ctx, cfg.Provider, logger)
	if err != nil {
		return err
	}

	blob := provider.NewBlobProvider(driver, cfg.Provider.Container, logger)
	var stations image360.DataProvider[provider.SiteFilter] = blob
	health := healthChecks{driver}

	var db *sql.DB
	if cfg.Provider.Mode == "postgres" {
		db, err = provider.OpenPostgres(cfg.Provider.Postgres)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		pg := provider.NewPostgresProvider(db, blob, logger)
		if err := pg.CreateTables(ctx); err != nil {
			return err
		}
		stations = pg
		health = append(health, pg)
		logger.Info("using postgres station records",
			zap.String("host", cfg.Provider.Postgres.Host),
			zap.String("database", cfg.Provider.Postgres.Database))
	}

	registry := metrics.NewRegistry()
	cache := image360.NewLoadingCache(stations,
		image360.WithCapacity(cfg.Cache.Capacity),
		image360.WithLoadTimeout(cfg.Cache.LoadTimeout),
		image360.WithLogger(logger),
		image360.WithMetrics(registry.Cache),
	)
	factory := image360.NewFactory(stations, image360.WithFactoryLogger(logger))
	facade := image360.NewFacade(factory, cache, logger)

	server := api.NewServer(cfg.Server, api.Deps{
		Facade:  facade,
		Scenes:  blob,
		Health:  health,
		Metrics: registry,
	}, logger)

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, logger, func(next *config.Config) {
			cache.SetCapacity(next.Cache.Capacity)
		})
		if err != nil {
			logger.Warn("config watcher disabled", zap.Error(err))
		} else {
			watcher.Start(ctx)
			defer func() { _ = watcher.Close() }()
		}
	}

	printBanner(cfg)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	if err := cache.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	return errors.Join(errs...)
}

func printBanner(cfg *config.Config) {
	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════╗\n")
	fmt.Printf("║      Viewercore Server Started       ║\n")
	fmt.Printf("╠══════════════════════════════════════╣\n")
	fmt.Printf("║  API: http://localhost:%-13d ║\n", cfg.Server.Port)
	fmt.Printf("║  Provider: %-25s ║\n", cfg.Provider.Mode)
	fmt.Printf("║  Cache capacity: %-19d ║\n", cfg.Cache.Capacity)
	fmt.Printf("╚══════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
