// Package app wires storage, the conversation dispatcher, the Telegram
// runtime and the web API into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maximcoj/teleblog/core/bootstrap"
	coreconfig "github.com/maximcoj/teleblog/core/config"
	"github.com/maximcoj/teleblog/core/logger"
	coretelegram "github.com/maximcoj/teleblog/core/telegram"
	"github.com/maximcoj/teleblog/core/telegram/state"
	"github.com/maximcoj/teleblog/internal/blog"
	"github.com/maximcoj/teleblog/internal/bot"
	"github.com/maximcoj/teleblog/internal/dispatcher"
	"github.com/maximcoj/teleblog/internal/media"
	"github.com/maximcoj/teleblog/internal/storage"
	"github.com/maximcoj/teleblog/internal/web"
)

// App holds the long-lived components of a running bot.
type App struct {
	cfg      *coreconfig.Config
	infra    *bootstrap.Result[storage.Backend]
	repo     *blog.Repository
	bot      *bot.Bot
	registry *coretelegram.Registry

	webStop context.CancelFunc
	webDone chan error
}

// New bootstraps infrastructure and the dispatcher.
func New(ctx context.Context, cfg *coreconfig.Config) (*App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options[storage.Backend]{
		Config:      cfg,
		OpenStorage: storage.Open,
	})
	if err != nil {
		return nil, err
	}

	repo := blog.NewRepository(infra.Storage, blog.WithBlogURL(cfg.Web.BlogURL))
	d := dispatcher.New(repo, infra.Sessions, dispatcher.WithAdmin(cfg.Telegram.AdminID))
	b := bot.New(d)

	reg := coretelegram.NewRegistry()
	if err := b.Register(reg); err != nil {
		_ = infra.Close(ctx)
		return nil, fmt.Errorf("app: register handlers: %w", err)
	}

	return &App{cfg: cfg, infra: infra, repo: repo, bot: b, registry: reg}, nil
}

// TelegramRunOptions describes the Telegram runtime for this app.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		Config:   a.cfg,
		Registry: a.registry,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, a.bot.OnLimited, coretelegram.Middleware{
			Name: "fsm_step",
			Use:  state.WithStep(a.infra.Sessions),
		}),
		Routes: func(rt coretelegram.Runtime) []coretelegram.Route {
			return a.bot.Routes(rt.Registry)
		},
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt coretelegram.Runtime) error {
	logger.LogEvent(ctx, logger.L, slog.LevelInfo, "app.components",
		slog.String("storage", a.infra.Storage.Name()),
		slog.String("sessions", a.infra.Sessions.Backend()),
		slog.Bool("web", a.cfg.Web.Enabled),
	)
	if !a.cfg.Web.Enabled {
		return nil
	}

	resolver := media.NewResolver(rt.Bot, a.cfg.Web.PublicBaseURL,
		time.Duration(a.cfg.Media.CacheTTLMinutes)*time.Minute)
	srv := web.New(a.repo, resolver)

	webCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.webStop = cancel
	a.webDone = make(chan error, 1)
	go func() {
		err := srv.ListenAndServe(webCtx, a.cfg.Web.Listen)
		if err != nil {
			logger.LogEvent(webCtx, logger.Web, slog.LevelError, "web.stop",
				slog.String("status", "fail"),
				logger.Err(err),
			)
		}
		a.webDone <- err
	}()
	return nil
}

func (a *App) stop(ctx context.Context, _ coretelegram.Runtime) error {
	var errs []error
	if a.webStop != nil {
		a.webStop()
		select {
		case err := <-a.webDone:
			errs = append(errs, err)
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("web shutdown: %w", ctx.Err()))
		}
	}
	errs = append(errs, a.infra.Close(ctx))
	return errors.Join(errs...)
}
