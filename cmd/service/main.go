// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"maven-indexer/internal/api"
	"maven-indexer/internal/app"
	"maven-indexer/internal/config"
	"maven-indexer/internal/database"
	"maven-indexer/internal/metrics"
	"maven-indexer/internal/scheduler"
	"maven-indexer/internal/syncer"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.SetLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := database.Migrate(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(registry)

	components, err := app.Build(cfg, dbpool, recorder, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	appSyncer := syncer.NewSyncer(components.Queries, components.Pipeline, recorder, logger, syncer.Options{
		Concurrency:     cfg.WorkerConcurrency,
		IndexAttempts:   cfg.IndexJobAttempts,
		SyncAttempts:    cfg.SyncJobAttempts,
		RetryInterval:   cfg.JobRetryInterval,
		ReindexInterval: cfg.ReindexInterval(),
	})

	sched, err := scheduler.New(logger)
	if err != nil {
		return err
	}
	if _, err := sched.ScheduleSync(ctx, cfg.SyncInterval, appSyncer); err != nil {
		return err
	}
	if _, err := sched.ScheduleCleanup(ctx, cfg.CleanupInterval, components.Cleaner); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(components.Queries, dbpool, appSyncer, metrics.Handler(registry), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Start the workers, the scheduler and the HTTP server
	syncerDone := make(chan struct{})
	go func() {
		appSyncer.Start(ctx)
		close(syncerDone)
	}()
	sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 7. Wait for shutdown signal
	logger.Info("Application started. Waiting for shutdown signal...")
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		logger.Error("HTTP server failed", "error", err)
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := sched.Stop(); err != nil {
		logger.Error("Scheduler shutdown failed", "error", err)
	}
	select {
	case <-syncerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Workers did not stop before the shutdown timeout")
	}
	logger.Info("Shutdown complete")
	return nil
}
