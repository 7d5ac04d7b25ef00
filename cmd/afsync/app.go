package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rpattn/afsync/internal/config"
	"github.com/rpattn/afsync/internal/db"
	"github.com/rpattn/afsync/internal/entityloader"
	"github.com/rpattn/afsync/internal/ingestion"
	"github.com/rpattn/afsync/internal/logging"
	"github.com/rpattn/afsync/internal/metrics"
	"github.com/rpattn/afsync/internal/notify"
	"github.com/rpattn/afsync/internal/problems"
	"github.com/rpattn/afsync/internal/report"
	"github.com/rpattn/afsync/internal/repository"
)

// app holds the wired components of one invocation.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	conn    *db.Connection
	markers problems.Store
	service *ingestion.Service
}

func loadConfig(opts *rootOptions) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configDir)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return cfg, nil, err
	}
	if cfg.File != "" {
		logger.Debug("loaded config", "file", cfg.File)
	} else {
		logger.Debug("no config.yaml found, using defaults and environment")
	}
	return cfg, logger, nil
}

func openMarkerStore(cfg config.Config, logger *slog.Logger) (problems.Store, error) {
	switch cfg.Problems.Backend {
	case "badger":
		return problems.OpenBadgerStore(problems.BadgerConfig{Path: cfg.BadgerDir(), Logger: logger})
	case "files", "":
		return problems.NewFileStore(cfg.DataDir), nil
	}
	return nil, fmt.Errorf("unknown problem store backend %q", cfg.Problems.Backend)
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	markers, err := openMarkerStore(cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		_ = markers.Close()
		conn.Close()
		return nil, err
	}

	store := repository.NewPostgresStore(conn.Pool, logger)
	labels := entityloader.NewLabelLoader(store.Accounts(), store.Groups(), logger)
	reconciler := problems.NewReconciler(markers, labels, logger)

	service := ingestion.NewService(store, reconciler,
		ingestion.WithLogger(logger),
		ingestion.WithNotifier(notifier),
		ingestion.WithReportWriter(report.NewWriter(cfg.DataDir)),
		ingestion.WithMetrics(metrics.NewRecorder(), cfg.Metrics.Textfile),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		conn:    conn,
		markers: markers,
		service: service,
	}, nil
}

func (a *app) Close() error {
	var err error
	if a.markers != nil {
		err = errors.Join(err, a.markers.Close())
	}
	if a.conn != nil {
		a.conn.Close()
	}
	return err
}
