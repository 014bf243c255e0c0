package app

import (
	"context"
	"errors"
	"fmt"

	"tradepulse/internal/alert"
	"tradepulse/internal/backtest"
	"tradepulse/internal/config"
	"tradepulse/internal/engine"
	"tradepulse/internal/history"
	"tradepulse/internal/logger"
	"tradepulse/internal/market"
	"tradepulse/internal/store"
	"tradepulse/internal/strategy"
	httpapi "tradepulse/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns the long-running pieces: the live feed relay, the persistence
// worker, alert delivery and the HTTP API.
type App struct {
	cfg       *config.Config
	symbols   []string
	registry  *strategy.Registry
	engine    *engine.Engine
	backtests *backtest.Engine
	store     store.Store
	recorder  *store.Recorder
	cache     *history.Cache
	alerts    *alert.Manager
	relay     *market.Relay
	server    *httpapi.Server
	Summary   *StartupSummary
}

// NewApp builds the application from cfg without starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts every service and blocks until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.recorder.Run(ctx) })
	group.Go(func() error { return a.alerts.Run(ctx) })
	if a.relay != nil {
		group.Go(func() error {
			if err := a.relay.Run(ctx, a.symbols); err != nil {
				return fmt.Errorf("live feed: %w", err)
			}
			return nil
		})
	}
	if a.server != nil {
		group.Go(func() error {
			if err := a.server.Start(ctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	return group.Wait()
}

// Close releases the feed, the candle cache and the store.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.relay != nil {
		a.relay.Close()
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// Engine exposes the live engine for tests and replay harnesses.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

func (a *App) Alerts() *alert.Manager {
	if a == nil {
		return nil
	}
	return a.alerts
}
