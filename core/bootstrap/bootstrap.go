// Package bootstrap initializes the shared infrastructure of a bot process:
// logging, persistence and conversation sessions.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	coreconfig "github.com/maximcoj/teleblog/core/config"
	"github.com/maximcoj/teleblog/core/logger"
	"github.com/maximcoj/teleblog/core/telegram/state"
)

// Store is a persistence layer opened during bootstrap.
type Store interface {
	Name() string
	Close(ctx context.Context) error
}

// Options control the bootstrap pipeline.
type Options[S Store] struct {
	Config *coreconfig.Config

	LoggerInit   func(*coreconfig.Config) error
	OpenStorage  func(context.Context, *coreconfig.Config) (S, error)
	OpenSessions func(context.Context, state.Options) state.Manager
}

// Result exposes the initialized infrastructure.
type Result[S Store] struct {
	Storage  S
	Sessions state.Manager
}

// Close releases sessions and storage.
func (r *Result[S]) Close(ctx context.Context) error {
	return errors.Join(r.Sessions.Close(), r.Storage.Close(ctx))
}

// Run initializes the logger, opens storage and the session store.
func Run[S Store](ctx context.Context, opts Options[S]) (*Result[S], error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	if opts.OpenStorage == nil {
		return nil, errors.New("bootstrap: OpenStorage is required")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	store, err := opts.OpenStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: storage initialization failed: %w", err)
	}

	openSessions := opts.OpenSessions
	if openSessions == nil {
		openSessions = state.Open
	}
	sessions := openSessions(ctx, state.Options{
		Backend:       cfg.Session.Backend,
		RedisAddr:     cfg.Session.RedisAddr,
		RedisPassword: cfg.Session.RedisPassword,
		RedisDB:       cfg.Session.RedisDB,
		TTL:           time.Duration(cfg.Session.TTLHours) * time.Hour,
	})

	return &Result[S]{Storage: store, Sessions: sessions}, nil
}
