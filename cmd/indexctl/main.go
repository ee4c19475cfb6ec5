// cmd/indexctl/main.go
// Package main implements indexctl, the operator CLI for the Maven index pipeline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"maven-indexer/internal/app"
	"maven-indexer/internal/config"
)

var (
	logLevel string
	version  = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexctl",
	Short: "Operate the Maven repository index pipeline",
	Long: `indexctl runs single pipeline operations outside the service.

Database-backed commands read the same environment (or .env file) as the service.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(migrateCmd)
}

func newLogger() *slog.Logger {
	return app.NewLogger(logLevel)
}

// connect loads the configuration and opens the database pool.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, pool, nil
}
