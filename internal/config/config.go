// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`
	DBURL    string `mapstructure:"DB_URL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	WorkDir              string `mapstructure:"WORK_DIR"`
	ReindexIntervalHours int    `mapstructure:"REINDEX_INTERVAL_HOURS"`
	IndexRetentionDays   int    `mapstructure:"INDEX_RETENTION_DAYS"`
	KeepIndexFiles       bool   `mapstructure:"KEEP_INDEX_FILES"`

	FetchTimeout       time.Duration `mapstructure:"FETCH_TIMEOUT"`
	FetchMaxRetries    int           `mapstructure:"FETCH_MAX_RETRIES"`
	FetchRetryInterval time.Duration `mapstructure:"FETCH_RETRY_INTERVAL"`

	ExporterImage string        `mapstructure:"EXPORTER_IMAGE"`
	ExportTimeout time.Duration `mapstructure:"EXPORT_TIMEOUT"`

	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`
	IndexJobAttempts  int           `mapstructure:"INDEX_JOB_ATTEMPTS"`
	SyncJobAttempts   int           `mapstructure:"SYNC_JOB_ATTEMPTS"`
	JobRetryInterval  time.Duration `mapstructure:"JOB_RETRY_INTERVAL"`
	SyncInterval      time.Duration `mapstructure:"SYNC_INTERVAL"`
	CleanupInterval   time.Duration `mapstructure:"CLEANUP_INTERVAL"`

	NATSURL           string `mapstructure:"NATS_URL"`
	NATSSubjectPrefix string `mapstructure:"NATS_SUBJECT_PREFIX"`

	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3KeyID     string `mapstructure:"S3_KEY_ID"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3Prefix    string `mapstructure:"S3_PREFIX"`
}

var defaults = map[string]any{
	"LOG_LEVEL":              "info",
	"DB_URL":                 "",
	"HTTP_ADDR":              ":8080",
	"WORK_DIR":               "tmp/maven-indexes",
	"REINDEX_INTERVAL_HOURS": 24,
	"INDEX_RETENTION_DAYS":   7,
	"KEEP_INDEX_FILES":       false,
	"FETCH_TIMEOUT":          "300s",
	"FETCH_MAX_RETRIES":      2,
	"FETCH_RETRY_INTERVAL":   "500ms",
	"EXPORTER_IMAGE":         "ghcr.io/ecosyste-ms/maven-index-exporter",
	"EXPORT_TIMEOUT":         "30m",
	"WORKER_CONCURRENCY":     5,
	"INDEX_JOB_ATTEMPTS":     3,
	"SYNC_JOB_ATTEMPTS":      2,
	"JOB_RETRY_INTERVAL":     "30s",
	"SYNC_INTERVAL":          "1h",
	"CLEANUP_INTERVAL":       "24h",
	"NATS_URL":               "",
	"NATS_SUBJECT_PREFIX":    "maven.index",
	"S3_BUCKET":              "",
	"S3_ENDPOINT":            "",
	"S3_REGION":              "",
	"S3_KEY_ID":              "",
	"S3_ACCESS_KEY":          "",
	"S3_PREFIX":              "indexes",
}

// LoadConfig reads configuration from a .env file in the working directory and the environment.
// Environment variables win over the file.
func LoadConfig() (*Config, error) {
	return load(".")
}

func load(dir string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so that Unmarshal sees values coming from the environment.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DBURL == "" {
		return errors.New("DB_URL is a required configuration field")
	}
	if c.ReindexIntervalHours <= 0 {
		return errors.New("REINDEX_INTERVAL_HOURS must be positive")
	}
	if c.IndexRetentionDays <= 0 {
		return errors.New("INDEX_RETENTION_DAYS must be positive")
	}
	if c.FetchMaxRetries < 0 {
		return errors.New("FETCH_MAX_RETRIES must not be negative")
	}
	if c.WorkerConcurrency <= 0 {
		return errors.New("WORKER_CONCURRENCY must be positive")
	}
	if c.IndexJobAttempts <= 0 || c.SyncJobAttempts <= 0 {
		return errors.New("INDEX_JOB_ATTEMPTS and SYNC_JOB_ATTEMPTS must be positive")
	}
	if c.SyncInterval <= 0 || c.CleanupInterval <= 0 {
		return errors.New("SYNC_INTERVAL and CLEANUP_INTERVAL must be positive durations")
	}
	if c.WorkDir == "" {
		return errors.New("WORK_DIR must not be empty")
	}
	return nil
}

// ReindexInterval is the age after which a completed repository is indexed again.
func (c *Config) ReindexInterval() time.Duration {
	return time.Duration(c.ReindexIntervalHours) * time.Hour
}

// Retention is how long work directories are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.IndexRetentionDays) * 24 * time.Hour
}

// ArchiveEnabled reports whether downloaded indexes are copied to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

// EventsEnabled reports whether run outcomes are published to NATS.
func (c *Config) EventsEnabled() bool {
	return c.NATSURL != ""
}
