// Package app ties configuration, logging, and the server together and
// runs the process lifecycle: start, serve, shut down on signal.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/searchktools/httpcore/config"
	"github.com/searchktools/httpcore/core"
)

// App is one configured server process.
type App struct {
	cfg *config.Config
	log zerolog.Logger
	srv *core.Server
}

// New builds an app from cfg with a console-friendly logger on stderr.
func New(cfg *config.Config) *App {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	sc := cfg.ServerConfig()
	sc.Logger = &log

	return &App{cfg: cfg, log: log, srv: core.NewServer(sc)}
}

// Server exposes the underlying server for route registration.
func (a *App) Server() *core.Server {
	return a.srv
}

// Run serves until SIGINT or SIGTERM, then drains and returns. The
// second signal kills the process the usual way: NotifyContext restores
// default signal behavior once the context is cancelled.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := a.srv.Listen(ctx, a.cfg.Addr)
	if err != nil {
		a.log.Error().Err(err).Msg("server failed")
	}
	return err
}
