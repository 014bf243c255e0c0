package backtest

import (
	"strings"
	"time"

	"tradepulse/internal/apperr"
	"tradepulse/internal/history"
	"tradepulse/internal/strategy"
	"tradepulse/internal/strategy/exit"
)

const (
	defaultWarmupBars = 50
	defaultTimeframe  = "1h"
)

// Config describes one backtest run.
type Config struct {
	StrategyID     string     `json:"strategy_id"`
	Symbol         string     `json:"symbol"`
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	InitialCapital float64    `json:"initial_capital"`
	Timeframe      string     `json:"timeframe"`
	Commission     float64    `json:"commission"`
	Slippage       float64    `json:"slippage"`
	MaxPositions   int        `json:"max_positions"`
	RiskPerTrade   float64    `json:"risk_per_trade"`
	Exit           *exit.Spec `json:"exit,omitempty"`
	Threshold      float64    `json:"threshold,omitempty"`
	WarmupBars     int        `json:"warmup_bars,omitempty"`
}

// Validate fills optional fields and rejects out-of-range values with
// ErrInvalidConfig.
func (c Config) Validate() (Config, error) {
	const op = "backtest.config"
	c.StrategyID = strings.TrimSpace(c.StrategyID)
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.Timeframe == "" {
		c.Timeframe = defaultTimeframe
	}
	if c.MaxPositions == 0 {
		c.MaxPositions = 1
	}
	if c.WarmupBars == 0 {
		c.WarmupBars = defaultWarmupBars
	}
	if c.Threshold == 0 {
		c.Threshold = strategy.DefaultThreshold
	}

	fail := func(format string, args ...any) (Config, error) {
		return Config{}, apperr.Invalid(op, format, args...).WithSymbol(c.Symbol).WithStrategy(c.StrategyID)
	}
	switch {
	case c.StrategyID == "":
		return fail("strategy_id is required")
	case c.Symbol == "":
		return fail("symbol is required")
	case !(c.InitialCapital > 0):
		return fail("initial_capital must be > 0")
	case !(c.RiskPerTrade > 0 && c.RiskPerTrade <= 1):
		return fail("risk_per_trade must be in (0,1]")
	case c.Commission < 0 || c.Commission >= 1:
		return fail("commission must be in [0,1)")
	case c.Slippage < 0 || c.Slippage >= 1:
		return fail("slippage must be in [0,1)")
	case c.MaxPositions < 1:
		return fail("max_positions must be >= 1")
	case c.WarmupBars < 2:
		return fail("warmup_bars must be >= 2")
	case c.Threshold < 0 || c.Threshold > 1:
		return fail("threshold must be in [0,1]")
	case c.Start.IsZero() || c.End.IsZero() || !c.End.After(c.Start):
		return fail("end must be after start")
	}
	tf, err := history.ParseTimeframe(c.Timeframe)
	if err != nil {
		return Config{}, apperr.New(apperr.ErrInvalidConfig, op, err).WithSymbol(c.Symbol).WithStrategy(c.StrategyID)
	}
	c.Timeframe = tf.Key
	if c.Exit != nil {
		if _, err := exit.Build(*c.Exit); err != nil {
			return Config{}, apperr.New(apperr.ErrInvalidConfig, op, err).WithSymbol(c.Symbol).WithStrategy(c.StrategyID)
		}
	}
	return c, nil
}
