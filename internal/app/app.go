// internal/app/app.go
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"maven-indexer/internal/archive"
	"maven-indexer/internal/catalog"
	"maven-indexer/internal/cleanup"
	"maven-indexer/internal/config"
	"maven-indexer/internal/database"
	"maven-indexer/internal/events"
	"maven-indexer/internal/exporter"
	"maven-indexer/internal/fetcher"
	"maven-indexer/internal/metrics"
	"maven-indexer/internal/pipeline"
)

// NewLogger returns a JSON logger whose level follows level ("debug", "info", "warn", "error").
func NewLogger(level string) *slog.Logger {
	logLevel := new(slog.LevelVar)
	SetLogLevel(level, logLevel)
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func SetLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}

// Components are the long-lived parts shared by the service and the CLI.
type Components struct {
	Queries  *database.Queries
	Pipeline *pipeline.Pipeline
	Cleaner  *cleanup.Cleaner

	publisher *events.NATSPublisher
}

// Close releases connections opened by Build.
func (c *Components) Close() {
	if c.publisher != nil {
		_ = c.publisher.Close()
	}
}

// Build assembles the indexing pipeline from cfg. recorder may be nil.
func Build(cfg *config.Config, pool *pgxpool.Pool, recorder metrics.Recorder, logger *slog.Logger) (*Components, error) {
	converter, err := exporter.NewDockerConverter(cfg.ExporterImage, cfg.ExportTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	c := &Components{
		Queries: database.New(pool),
		Cleaner: cleanup.NewCleaner(cfg.WorkDir, cfg.Retention(), logger),
	}

	deps := pipeline.Deps{
		Fetcher: fetcher.New(fetcher.Options{
			Timeout:       cfg.FetchTimeout,
			MaxRetries:    cfg.FetchMaxRetries,
			RetryInterval: cfg.FetchRetryInterval,
		}, logger),
		Converter: converter,
		Persister: catalog.NewPersister(pool, logger),
		State:     c.Queries,
		Cleaner:   c.Cleaner,
		Locker:    database.NewAdvisoryLocker(pool, logger),
		Metrics:   recorder,
	}

	if cfg.ArchiveEnabled() {
		archiver, err := archive.NewS3Archiver(archive.Config{
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			KeyID:     cfg.S3KeyID,
			AccessKey: cfg.S3AccessKey,
			Prefix:    cfg.S3Prefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create index archiver: %w", err)
		}
		deps.Archiver = archiver
		logger.Info("Index archiving enabled", "bucket", cfg.S3Bucket)
	}

	if cfg.EventsEnabled() {
		publisher, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect event publisher: %w", err)
		}
		c.publisher = publisher
		deps.Events = publisher
		logger.Info("Run events enabled", "subject_prefix", cfg.NATSSubjectPrefix)
	}

	c.Pipeline = pipeline.New(deps, pipeline.Options{
		WorkRoot:        cfg.WorkDir,
		ReindexInterval: cfg.ReindexInterval(),
		KeepFiles:       cfg.KeepIndexFiles,
	}, logger)
	return c, nil
}
