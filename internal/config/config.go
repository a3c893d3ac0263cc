// Package config loads runtime configuration from the environment. There is
// no config file format here, matching the teacher's own flag-only CLI
// surface: every setting is a single env var, and all but DATABASE_URL and
// DBF_WATCH_PATH have a default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is everything cmd/dbfsync needs to start: where to find the ERP
// tables, where to mirror them, and how chatty and patient to be about it.
type Config struct {
	// DatabaseURL is a Go-MySQL-Driver DSN, e.g.
	// "user:pass@tcp(127.0.0.1:3306)/erp_mirror?parseTime=true".
	DatabaseURL string
	// WatchPath is the directory containing the .DBF tables to mirror.
	WatchPath string
	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string
	// Debounce is how long the watcher waits after the last write event on
	// a file before syncing it.
	Debounce time.Duration
	// BulkBatchSize is how many records BulkLoad commits per transaction.
	BulkBatchSize int
}

const (
	envDatabaseURL   = "DATABASE_URL"
	envWatchPath     = "DBF_WATCH_PATH"
	envLogLevel      = "LOG_LEVEL"
	envDebounce      = "DBF_DEBOUNCE"
	envBulkBatchSize = "DBF_BULK_BATCH_SIZE"

	defaultLogLevel      = "info"
	defaultDebounce      = time.Second
	defaultBulkBatchSize = 1000
)

// Load reads Config from the environment, applying defaults for anything
// unset. DATABASE_URL and DBF_WATCH_PATH have no default and must be set.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:   os.Getenv(envDatabaseURL),
		WatchPath:     os.Getenv(envWatchPath),
		LogLevel:      defaultLogLevel,
		Debounce:      defaultDebounce,
		BulkBatchSize: defaultBulkBatchSize,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: %s is required", envDatabaseURL)
	}
	if cfg.WatchPath == "" {
		return Config{}, fmt.Errorf("config: %s is required", envWatchPath)
	}

	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv(envDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envDebounce, err)
		}
		cfg.Debounce = d
	}

	if v := os.Getenv(envBulkBatchSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", envBulkBatchSize, err)
		}
		if n <= 0 {
			return Config{}, fmt.Errorf("config: %s must be positive, got %d", envBulkBatchSize, n)
		}
		cfg.BulkBatchSize = n
	}

	return cfg, nil
}
