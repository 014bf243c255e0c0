package config

import (
	"fmt"
	"strings"

	"tradepulse/internal/history"
	"tradepulse/internal/pkg/symbol"
)

func validate(c *Config) error {
	switch strings.ToLower(c.App.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", c.App.LogFormat)
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Indicators.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch m.Mode {
	case MarketModeBinance, MarketModeSimulation:
	default:
		return fmt.Errorf("market.mode must be %q or %q, got %q", MarketModeBinance, MarketModeSimulation, m.Mode)
	}
	if _, err := history.ParseTimeframe(m.Timeframe); err != nil {
		return fmt.Errorf("market.timeframe: %w", err)
	}
	m.Symbols = symbol.NormalizeList(m.Symbols)
	if len(m.Symbols) == 0 {
		return fmt.Errorf("market.symbols requires at least one symbol")
	}
	for _, s := range m.Symbols {
		if !symbol.IsValid(s) {
			return fmt.Errorf("market.symbols contains unsupported symbol %q", s)
		}
	}
	if len(m.ReferencePrices) > 0 {
		refs := make(map[string]float64, len(m.ReferencePrices))
		for k, v := range m.ReferencePrices {
			if !(v > 0) {
				return fmt.Errorf("market.reference_prices.%s must be > 0", k)
			}
			refs[symbol.Normalize(k)] = v
		}
		m.ReferencePrices = refs
	}
	if m.Proxy.Enabled && strings.TrimSpace(m.Proxy.RESTURL) == "" && strings.TrimSpace(m.Proxy.WSURL) == "" {
		return fmt.Errorf("market.proxy enabled without rest_url or ws_url")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.Threshold < 0 || e.Threshold > 1 {
		return fmt.Errorf("engine.threshold must be in [0,1]")
	}
	if e.MinHistory > e.WindowSize {
		return fmt.Errorf("engine.min_history (%d) exceeds engine.window_size (%d)", e.MinHistory, e.WindowSize)
	}
	if e.HistoryTrim > e.HistoryCap {
		return fmt.Errorf("engine.history_trim (%d) exceeds engine.history_cap (%d)", e.HistoryTrim, e.HistoryCap)
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.WarmupBars < 2 {
		return fmt.Errorf("backtest.warmup_bars must be >= 2")
	}
	if b.Commission < 0 || b.Commission >= 1 {
		return fmt.Errorf("backtest.commission must be in [0,1)")
	}
	if b.Slippage < 0 || b.Slippage >= 1 {
		return fmt.Errorf("backtest.slippage must be in [0,1)")
	}
	if !(b.RiskPerTrade > 0 && b.RiskPerTrade <= 1) {
		return fmt.Errorf("backtest.risk_per_trade must be in (0,1]")
	}
	return nil
}

func (i *IndicatorConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(i.SignalLine)) {
	case "ema", "legacy":
		return nil
	}
	return fmt.Errorf("indicators.signal_line must be ema or legacy, got %q", i.SignalLine)
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram enabled but bot_token or chat_id is missing")
	}
	return nil
}
