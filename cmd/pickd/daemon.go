package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/anonpick/anonpick/internal/classify"
	"github.com/anonpick/anonpick/internal/config"
	"github.com/anonpick/anonpick/internal/ingest"
	"github.com/anonpick/anonpick/internal/ledger"
	"github.com/anonpick/anonpick/internal/pipeline"
	"github.com/anonpick/anonpick/internal/store"
)

// defaultPassphrase protects the ledger snapshot when the configured
// environment variable is unset. Local single-user deployments accept
// this; anything else should set the variable.
const defaultPassphrase = "anonpick-local-ledger"

// Daemon wires the submission pipeline, the ledger, and the drop-folder
// watcher.
type Daemon struct {
	cfg     *config.Config
	log     *slog.Logger
	service *pipeline.Service
	watcher *ingest.Watcher
}

// NewDaemon constructs all components from configuration.
func NewDaemon(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	passphrase := os.Getenv(cfg.Ledger.PassphraseEnv)
	if passphrase == "" {
		passphrase = defaultPassphrase
	}

	led, err := ledger.Load(ledger.NewSnapshotter(cfg.Ledger.SnapshotPath, passphrase))
	if err != nil {
		return nil, fmt.Errorf("load ledger snapshot: %w", err)
	}

	service := pipeline.New(store.NewMemStore(), classify.HashClassifier{}, led, pipeline.Options{
		Points: cfg.PointsTable(),
		Logger: log,
	})

	d := &Daemon{cfg: cfg, log: log, service: service}

	if cfg.Ingest.Enabled {
		if err := os.MkdirAll(cfg.Ingest.Directory, 0700); err != nil {
			return nil, fmt.Errorf("create ingest directory: %w", err)
		}
		watcher, err := ingest.NewWatcher(
			cfg.Ingest.Directory,
			cfg.Ingest.ArchiveDir,
			cfg.Ingest.Extensions,
			service,
			log,
		)
		if err != nil {
			return nil, err
		}
		d.watcher = watcher
	}

	return d, nil
}

// Run blocks until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if d.watcher != nil {
		d.watcher.Start(ctx)
		d.watcher.Close()

		submitted, failed := d.watcher.Counts()
		d.log.Info("ingest watcher stopped", "submitted", submitted, "failed", failed)
		return ctx.Err()
	}

	<-ctx.Done()
	return ctx.Err()
}
