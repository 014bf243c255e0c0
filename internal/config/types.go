package config

import (
	"strings"

	"tradepulse/internal/alert"
)

// Config is the root of config.yaml.
type Config struct {
	App        AppConfig        `toml:"app"`
	Market     MarketConfig     `toml:"market"`
	Engine     EngineConfig     `toml:"engine"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Indicators IndicatorConfig  `toml:"indicators"`
	Strategies StrategiesConfig `toml:"strategies"`
	Store      StoreConfig      `toml:"store"`
	Notify     NotifyConfig     `toml:"notify"`
	Alerts     AlertsConfig     `toml:"alerts"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	HTTPAddr  string `toml:"http_addr"`
}

const (
	MarketModeBinance    = "binance"
	MarketModeSimulation = "simulation"
)

type MarketConfig struct {
	Mode            string             `toml:"mode"`
	RESTBaseURL     string             `toml:"rest_base_url"`
	Symbols         []string           `toml:"symbols"`
	Timeframe       string             `toml:"timeframe"`
	Proxy           ProxyConfig        `toml:"proxy"`
	RateLimitPerMin int                `toml:"rate_limit_per_min"`
	MaxBatch        int                `toml:"max_batch"`
	CacheDir        string             `toml:"cache_dir"`
	ReferencePrices map[string]float64 `toml:"reference_prices"`
	// Simulation settings; only read in simulation mode.
	Seed              int64 `toml:"seed"`
	TickIntervalMs    int   `toml:"tick_interval_ms"`
	DisableLiveStream bool  `toml:"disable_live_stream"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
	WSURL   string `toml:"ws_url"`
}

type EngineConfig struct {
	Threshold    float64 `toml:"threshold"`
	WindowSize   int     `toml:"window_size"`
	MinHistory   int     `toml:"min_history"`
	HistoryCap   int     `toml:"history_cap"`
	HistoryTrim  int     `toml:"history_trim"`
	AutoTrade    bool    `toml:"auto_trade"`
	PaperCapital float64 `toml:"paper_capital"`
	PersistQueue int     `toml:"persist_queue"`
}

type BacktestConfig struct {
	WarmupBars    int     `toml:"warmup_bars"`
	MaxConcurrent int     `toml:"max_concurrent"`
	Commission    float64 `toml:"commission"`
	Slippage      float64 `toml:"slippage"`
	RiskPerTrade  float64 `toml:"risk_per_trade"`
	ResultsCap    int     `toml:"results_cap"`
	RiskFreeRate  float64 `toml:"risk_free_rate"`
}

type IndicatorConfig struct {
	SignalLine string `toml:"signal_line"`
	RSIPeriod  int    `toml:"rsi_period"`
	ATRPeriod  int    `toml:"atr_period"`
}

type StrategiesConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

type StoreConfig struct {
	// Path of the SQLite database. Empty keeps signals and results in memory.
	Path string `toml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type AlertsConfig struct {
	HistoryCap int         `toml:"history_cap"`
	Rules      []AlertRule `toml:"rules"`
}

type AlertRule struct {
	ID              string           `toml:"id"`
	Name            string           `toml:"name"`
	Logic           string           `toml:"logic"`
	CooldownMinutes int              `toml:"cooldown_minutes"`
	Message         string           `toml:"message"`
	Disabled        bool             `toml:"disabled"`
	Conditions      []AlertCondition `toml:"conditions"`
}

type AlertCondition struct {
	Type      string  `toml:"type"`
	Symbol    string  `toml:"symbol"`
	Operator  string  `toml:"operator"`
	Value     float64 `toml:"value"`
	Indicator string  `toml:"indicator"`
}

// Rule converts the configured rule into an alert.Rule.
func (r AlertRule) Rule() alert.Rule {
	out := alert.Rule{
		ID:              strings.TrimSpace(r.ID),
		Name:            r.Name,
		Logic:           alert.Logic(r.Logic),
		CooldownMinutes: r.CooldownMinutes,
		Message:         r.Message,
		Disabled:        r.Disabled,
	}
	for _, c := range r.Conditions {
		out.Conditions = append(out.Conditions, alert.Condition{
			Type:      alert.Kind(c.Type),
			Symbol:    c.Symbol,
			Operator:  alert.Operator(c.Operator),
			Value:     c.Value,
			Indicator: c.Indicator,
		})
	}
	return out
}

// keySet records which dotted keys the loaded files set explicitly.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
