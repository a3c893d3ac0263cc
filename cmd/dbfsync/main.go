// Command dbfsync watches a directory of ERP .DBF tables and continuously
// mirrors inserts, updates, and (logged, never deleted) removals into a
// MySQL database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/epokhe/dbfsync/internal/config"
	"github.com/epokhe/dbfsync/internal/logging"
	"github.com/epokhe/dbfsync/internal/store"
	"github.com/epokhe/dbfsync/internal/syncengine"
	"github.com/epokhe/dbfsync/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dbfsync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	bulkLoadPath := flag.String("bulk-load", "", "bulk-load a single .DBF file and exit, instead of watching")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, logging.DefaultFileConfig("error.log"))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mysqlStore, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer mysqlStore.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mysqlStore.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}

	engine := syncengine.New(mysqlStore, logger)
	engine.BulkBatchSize = cfg.BulkBatchSize

	if *bulkLoadPath != "" {
		logger.WithField("path", *bulkLoadPath).Info("bulk loading")
		return engine.BulkLoad(ctx, *bulkLoadPath)
	}

	w := watcher.New(cfg.WatchPath, engine, logger)
	w.Debounce = cfg.Debounce

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	logger.WithField("path", cfg.WatchPath).Info("watching for DBF changes")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("shutting down")

	cancel()
	return w.Stop()
}
