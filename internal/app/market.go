package app

import (
	"fmt"
	"strings"
	"time"

	"tradepulse/internal/config"
	"tradepulse/internal/gateway/binance"
	"tradepulse/internal/history"
	"tradepulse/internal/logger"
	"tradepulse/internal/market"
)

// MarketStack is the candle history plus the live tick feed for one market
// mode. Feed may be nil when only history is wanted.
type MarketStack struct {
	Name    string
	History history.Adapter
	Feed    market.Feed
	Cache   *history.Cache
}

func (s *MarketStack) close() {
	if s == nil {
		return
	}
	if s.Feed != nil {
		_ = s.Feed.Close()
	}
	if s.Cache != nil {
		_ = s.Cache.Close()
	}
}

func buildMarketStack(cfg config.MarketConfig) (*MarketStack, error) {
	var (
		src  history.Source
		feed market.Feed
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case config.MarketModeSimulation:
		src = &history.SimulationSource{Seed: cfg.Seed, StartPrices: cfg.ReferencePrices}
		feed = market.NewSimulationFeed(time.Duration(cfg.TickIntervalMs)*time.Millisecond, cfg.Seed, cfg.ReferencePrices)
		logger.Warnf("[market] simulation mode: candles and ticks are synthetic")
	case config.MarketModeBinance, "":
		bn, err := binance.New(binance.Config{
			RESTBaseURL:  cfg.RESTBaseURL,
			ProxyEnabled: cfg.Proxy.Enabled,
			RESTProxyURL: cfg.Proxy.RESTURL,
			WSProxyURL:   cfg.Proxy.WSURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init binance source: %w", err)
		}
		src, feed = bn, bn
	default:
		return nil, fmt.Errorf("unknown market mode %q", cfg.Mode)
	}

	var cache *history.Cache
	if dir := strings.TrimSpace(cfg.CacheDir); dir != "" {
		c, err := history.NewCache(dir)
		if err != nil {
			_ = feed.Close()
			return nil, fmt.Errorf("open candle cache: %w", err)
		}
		cache = c
	}
	svc, err := history.NewService(history.ServiceConfig{
		Source:          src,
		Cache:           cache,
		RateLimitPerMin: cfg.RateLimitPerMin,
		MaxBatch:        cfg.MaxBatch,
	})
	if err != nil {
		_ = feed.Close()
		if cache != nil {
			_ = cache.Close()
		}
		return nil, err
	}
	logger.Infof("✓ market source %s (cache=%t)", svc.SourceName(), cache != nil)
	return &MarketStack{Name: svc.SourceName(), History: svc, Feed: feed, Cache: cache}, nil
}
