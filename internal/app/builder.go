package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tradepulse/internal/alert"
	"tradepulse/internal/backtest"
	"tradepulse/internal/config"
	"tradepulse/internal/engine"
	"tradepulse/internal/gateway/notifier"
	"tradepulse/internal/indicator"
	"tradepulse/internal/logger"
	"tradepulse/internal/market"
	"tradepulse/internal/performance"
	"tradepulse/internal/pkg/symbol"
	"tradepulse/internal/store"
	"tradepulse/internal/store/gormstore"
	"tradepulse/internal/strategy"
	httpapi "tradepulse/internal/transport/http"
)

// AppBuilder assembles an App. The fn fields exist so tests can swap the
// network-facing pieces.
type AppBuilder struct {
	cfg *config.Config

	marketStackFn func(config.MarketConfig) (*MarketStack, error)
	storeFn       func(config.StoreConfig) (store.Store, error)
	notifierFn    func(config.NotifyConfig) notifier.TextNotifier
	now           func() time.Time
}

type AppBuilderOption func(*AppBuilder)

func WithMarketStack(fn func(config.MarketConfig) (*MarketStack, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.marketStackFn = fn }
}

func WithStore(fn func(config.StoreConfig) (store.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.storeFn = fn }
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifierFn = func(config.NotifyConfig) notifier.TextNotifier { return n }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		marketStackFn: buildMarketStack,
		storeFn:       openStore,
		notifierFn:    buildNotifier,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	symbols := symbol.NormalizeList(cfg.Market.Symbols)

	registry, err := loadRegistry(cfg.Strategies)
	if err != nil {
		return nil, err
	}

	stack, err := b.marketStackFn(cfg.Market)
	if err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			stack.close()
		}
	}()

	st, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, err
	}
	defer func() {
		if !success {
			_ = st.Close()
		}
	}()
	recorder := store.NewRecorder(st, store.RecorderConfig{QueueSize: cfg.Engine.PersistQueue})

	indicators := indicator.Options{
		SignalLine: indicator.SignalLine(cfg.Indicators.SignalLine),
		RSIPeriod:  cfg.Indicators.RSIPeriod,
		ATRPeriod:  cfg.Indicators.ATRPeriod,
	}
	hub := httpapi.NewHub()
	eng := engine.New(engine.Config{
		Threshold:       cfg.Engine.Threshold,
		WindowSize:      cfg.Engine.WindowSize,
		MinHistory:      cfg.Engine.MinHistory,
		HistoryCap:      cfg.Engine.HistoryCap,
		HistoryTrim:     cfg.Engine.HistoryTrim,
		AutoTrade:       cfg.Engine.AutoTrade,
		PaperCapital:    cfg.Engine.PaperCapital,
		Timeframe:       cfg.Market.Timeframe,
		ReferencePrices: normalizePrices(cfg.Market.ReferencePrices),
		Indicators:      indicators,
	}, engine.Deps{
		Strategies: registry,
		Recorder:   recorder,
		History:    stack.History,
		Hooks:      []engine.SignalHook{hub.PublishSignal},
		Now:        b.now,
	})

	alerts, err := buildAlerts(cfg.Alerts, b.notifierFn(cfg.Notify))
	if err != nil {
		return nil, err
	}
	eng.Observe(alerts.OnUpdate)
	eng.Subscribe(alerts.OnSignal)
	alerts.Subscribe(hub.PublishAlert)

	backtests := backtest.NewEngine(backtest.EngineConfig{
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
		ResultsCap:    cfg.Backtest.ResultsCap,
		Indicators:    indicators,
		Performance:   performance.Options{RiskFreeRate: cfg.Backtest.RiskFreeRate, PeriodsPerYear: 252},
	}, registry, stack.History, recorder)

	var relay *market.Relay
	if stack.Feed != nil && !cfg.Market.DisableLiveStream {
		relay = market.NewRelay(stack.Feed, eng.HandleTick, market.WithRelayCallbacks(
			func() { logger.Infof("[feed] %s connected", stack.Name) },
			func(err error) { logger.Warnf("[feed] %s disconnected: %v", stack.Name, err) },
		))
	}

	var feedStats httpapi.FeedStats
	if relay != nil {
		feedStats = relay
	}
	server, err := httpapi.NewServer(httpapi.Config{
		Addr:      cfg.App.HTTPAddr,
		Engine:    eng,
		Backtests: backtests,
		Archive:   st,
		Alerts:    alerts,
		Hub:       hub,
		Feed:      feedStats,
		Defaults: httpapi.BacktestDefaults{
			Commission:   cfg.Backtest.Commission,
			Slippage:     cfg.Backtest.Slippage,
			RiskPerTrade: cfg.Backtest.RiskPerTrade,
			WarmupBars:   cfg.Backtest.WarmupBars,
		},
	})
	if err != nil {
		return nil, err
	}

	registry.Subscribe(func(list []strategy.Strategy) {
		logger.Infof("[strategy] %d strategies loaded", len(list))
	})

	success = true
	return &App{
		cfg:       cfg,
		symbols:   symbols,
		registry:  registry,
		engine:    eng,
		backtests: backtests,
		store:     st,
		recorder:  recorder,
		cache:     stack.Cache,
		alerts:    alerts,
		relay:     relay,
		server:    server,
		Summary:   newStartupSummary(cfg, symbols, stack.Name, registry.List(), alerts.Rules()),
	}, nil
}

func loadRegistry(cfg config.StrategiesConfig) (*strategy.Registry, error) {
	registry := strategy.NewRegistry()
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return registry, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warnf("[strategy] %s not found, using built-in strategies", path)
		return registry, nil
	}
	if err := registry.LoadFile(path, cfg.Watch); err != nil {
		return nil, fmt.Errorf("load strategies: %w", err)
	}
	logger.Infof("✓ strategies loaded from %s", path)
	return registry, nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		logger.Infof("✓ store: in memory")
		return store.NewMemory(0), nil
	}
	st, err := gormstore.NewGormStore(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Infof("✓ store: %s", path)
	return st, nil
}

func buildNotifier(cfg config.NotifyConfig) notifier.TextNotifier {
	if !cfg.Telegram.Enabled {
		return notifier.Log{Prefix: "[alert]"}
	}
	logger.Infof("✓ telegram notifications enabled")
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

func buildAlerts(cfg config.AlertsConfig, n notifier.TextNotifier) (*alert.Manager, error) {
	mgr := alert.NewManager(n, alert.Options{HistoryCap: cfg.HistoryCap})
	for i, r := range cfg.Rules {
		if _, err := mgr.AddRule(r.Rule()); err != nil {
			return nil, fmt.Errorf("alerts.rules[%d]: %w", i, err)
		}
	}
	return mgr, nil
}

func normalizePrices(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for sym, px := range in {
		out[symbol.Normalize(sym)] = px
	}
	return out
}

// provideAppBuilder and provideAppFromBuilder are the wire providers.
func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}
