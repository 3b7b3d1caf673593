// Package app wires tradeloop together: it connects the configured
// backends, builds the venue registry, feed, risk engine, catalog and
// trading loop, and runs the goroutines the configured mode needs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/catalog"
	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/store/postgres"
)

// App is the root application object. It owns the configuration, logger,
// and the cleanup functions run in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
	closers   []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app")),
		startedAt: time.Now().UTC(),
	}
}

// Run wires dependencies, starts the configured mode and blocks until ctx
// is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "trade":
		return a.TradeMode(ctx, deps, false)
	case "paper":
		return a.TradeMode(ctx, deps, true)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	case "server":
		return a.ServerMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// OpenCatalog opens the profile catalog alone, connecting to Postgres only
// when profiles are stored there. Used by the CLI's profile commands.
func OpenCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*catalog.Catalog, func(), error) {
	var (
		store   catalog.Store
		cleanup = func() {}
	)
	if cfg.Catalog.Store == "postgres" {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: 2,
			MinConns: 1,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("app: catalog: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				pg.Close()
				return nil, nil, fmt.Errorf("app: catalog: %w", err)
			}
		}
		store, cleanup = pg.Stores().Profiles, pg.Close
	} else {
		store = catalog.NewFileStore(cfg.Catalog.File)
	}

	c, err := catalog.New(ctx, store, cfg.Catalog.DefaultActive, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}
