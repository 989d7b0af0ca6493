package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/maximcoj/teleblog/core/config"
	"github.com/maximcoj/teleblog/core/database"
	"github.com/maximcoj/teleblog/core/logger"
)

// Open selects the backend configured in cfg.Storage.
//
// A durable backend that cannot be reached within the connect timeout is
// replaced by the file backend for the rest of the process lifetime.
// Only a failure of the file backend itself is returned.
func Open(ctx context.Context, cfg *coreconfig.Config) (Backend, error) {
	if cfg.Storage.Driver == coreconfig.StorageFile {
		return openFile(ctx, cfg.Storage.DataDir, false)
	}

	timeout := time.Duration(cfg.Storage.ConnectTimeoutSeconds) * time.Second
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	b, err := openDurable(probeCtx, cfg)
	if err == nil {
		logger.LogEvent(ctx, logger.Storage, slog.LevelInfo, "storage.select",
			slog.String("status", "ok"),
			slog.String("backend", b.Name()),
			slog.Bool("fallback", false),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
		return b, nil
	}

	logger.LogEvent(ctx, logger.Storage, slog.LevelWarn, "storage.select",
		slog.String("status", "fail"),
		slog.String("backend", cfg.Storage.Driver),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
		logger.Err(err),
	)
	return openFile(ctx, cfg.Storage.DataDir, true)
}

func openDurable(ctx context.Context, cfg *coreconfig.Config) (Backend, error) {
	switch cfg.Storage.Driver {
	case coreconfig.StorageMongo:
		return NewMongoBackend(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	case coreconfig.StoragePostgres:
		db, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, cfg.Database); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewPostgresBackend(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func openFile(ctx context.Context, dir string, fallback bool) (Backend, error) {
	b, err := NewFileBackend(dir)
	if err != nil {
		logger.LogEvent(ctx, logger.Storage, slog.LevelError, "storage.select",
			slog.String("status", "fail"),
			slog.String("backend", "file"),
			logger.Err(err),
		)
		return nil, fmt.Errorf("open file storage: %w", err)
	}
	logger.LogEvent(ctx, logger.Storage, slog.LevelInfo, "storage.select",
		slog.String("status", "ok"),
		slog.String("backend", b.Name()),
		slog.Bool("fallback", fallback),
		slog.String("path", dir),
	)
	return b, nil
}

// Prepare connects to the configured durable backend without falling back,
// applies its schema or indexes and disconnects. The file backend needs no
// preparation beyond creating its directory.
func Prepare(ctx context.Context, cfg *coreconfig.Config) error {
	var (
		b   Backend
		err error
	)
	if cfg.Storage.Driver == coreconfig.StorageFile {
		b, err = NewFileBackend(cfg.Storage.DataDir)
	} else {
		b, err = openDurable(ctx, cfg)
	}
	if err != nil {
		return fmt.Errorf("prepare %s storage: %w", cfg.Storage.Driver, err)
	}
	return b.Close(ctx)
}
