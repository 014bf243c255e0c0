package config

import "strings"

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppHTTPAddr     = ":9991"
	defaultMarketMode      = MarketModeBinance
	defaultMarketREST      = "https://fapi.binance.com"
	defaultMarketTimeframe = "1m"
	defaultMarketRate      = 1200
	defaultMarketBatch     = 1000
	defaultTickIntervalMs  = 1000
	defaultEngineWindow    = 100
	defaultEngineMinHist   = 21
	defaultEngineHistCap   = 1000
	defaultEngineHistTrim  = 500
	defaultPaperCapital    = 10_000
	defaultPersistQueue    = 256
	defaultWarmupBars      = 50
	defaultMaxConcurrent   = 2
	defaultCommission      = 0.001
	defaultSlippage        = 0.0005
	defaultRiskPerTrade    = 0.02
	defaultResultsCap      = 100
	defaultRiskFreeRate    = 0.02
	defaultSignalLine      = "ema"
	defaultStrategiesPath  = "configs/strategies.yaml"
	defaultAlertHistoryCap = 500
)

var defaultSymbols = []string{"BTCUSDT", "ETHUSDT"}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Indicators.applyDefaults(keys)
	c.Strategies.applyDefaults(keys)
	c.Alerts.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.mode", &m.Mode, defaultMarketMode),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		stringFieldDefault("market.timeframe", &m.Timeframe, defaultMarketTimeframe),
		intFieldDefault("market.rate_limit_per_min", &m.RateLimitPerMin, defaultMarketRate),
		intFieldDefault("market.max_batch", &m.MaxBatch, defaultMarketBatch),
		intFieldDefault("market.tick_interval_ms", &m.TickIntervalMs, defaultTickIntervalMs),
		fieldDefault{
			key:   "market.symbols",
			need:  func() bool { return len(m.Symbols) == 0 },
			apply: func() { m.Symbols = append([]string(nil), defaultSymbols...) },
		},
	)
	m.Mode = strings.ToLower(strings.TrimSpace(m.Mode))
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("engine.window_size", &e.WindowSize, defaultEngineWindow),
		intFieldDefault("engine.min_history", &e.MinHistory, defaultEngineMinHist),
		intFieldDefault("engine.history_cap", &e.HistoryCap, defaultEngineHistCap),
		intFieldDefault("engine.history_trim", &e.HistoryTrim, defaultEngineHistTrim),
		intFieldDefault("engine.persist_queue", &e.PersistQueue, defaultPersistQueue),
		floatFieldDefault("engine.paper_capital", &e.PaperCapital, defaultPaperCapital),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("backtest.warmup_bars", &b.WarmupBars, defaultWarmupBars),
		intFieldDefault("backtest.max_concurrent", &b.MaxConcurrent, defaultMaxConcurrent),
		intFieldDefault("backtest.results_cap", &b.ResultsCap, defaultResultsCap),
		floatFieldDefault("backtest.commission", &b.Commission, defaultCommission),
		floatFieldDefault("backtest.slippage", &b.Slippage, defaultSlippage),
		floatFieldDefault("backtest.risk_per_trade", &b.RiskPerTrade, defaultRiskPerTrade),
		floatFieldDefault("backtest.risk_free_rate", &b.RiskFreeRate, defaultRiskFreeRate),
	)
}

func (i *IndicatorConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("indicators.signal_line", &i.SignalLine, defaultSignalLine),
	)
}

func (s *StrategiesConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("strategies.path", &s.Path, defaultStrategiesPath),
	)
}

func (a *AlertsConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("alerts.history_cap", &a.HistoryCap, defaultAlertHistoryCap),
	)
}

// applyFieldDefaults applies each default unless its key was set explicitly.
func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}
