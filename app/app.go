package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/focusbot/app/config"
	"github.com/m3rciful/focusbot/app/handlers"
	"github.com/m3rciful/focusbot/app/storage"
	"github.com/m3rciful/focusbot/app/timer"
	"github.com/m3rciful/focusbot/core/bootstrap"
	corecmd "github.com/m3rciful/focusbot/core/cmd"
	"github.com/m3rciful/focusbot/core/logger"
	coretelegram "github.com/m3rciful/focusbot/core/telegram"
	"github.com/m3rciful/focusbot/core/telegram/router"
)

// App holds the wired application components.
type App struct {
	cfg      *config.Config
	db       *sqlx.DB
	timers   *timer.Service
	prompter *handlers.TelegramPrompter
	handlers *handlers.Handlers
}

// Bootstrap initializes infrastructure and wires the timer services.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	store := storage.New(res.DB)
	prompter := handlers.NewPrompter()
	timers := timer.NewService(timer.Config{
		DefaultDuration: time.Duration(cfg.Timer.DefaultDurationSeconds) * time.Second,
		MinSavable:      time.Duration(cfg.Timer.MinSavableSeconds) * time.Second,
	}, store, prompter)

	return &App{
		cfg:      cfg,
		db:       res.DB,
		timers:   timers,
		prompter: prompter,
		handlers: handlers.New(cfg, timers, store),
	}, nil
}

// TelegramRunOptions assembles routes, middleware, and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	a.handlers.Register(reg)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       a.cfg.Core.Telegram.AdminID,
		OnAdminReject: a.handlers.AdminReject,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.prompter.Bind(rt.Bot, rt.Dispatcher)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.timers.Shutdown()
			if err := a.db.Close(); err != nil {
				logger.Error(ctx, "db", "close.failed",
					slog.String("err", err.Error()),
				)
			}
			return nil
		},
	}, nil
}
