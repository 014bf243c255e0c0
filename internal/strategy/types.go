package strategy

import (
	"fmt"
	"strings"

	"tradepulse/internal/market"
	"tradepulse/internal/strategy/exit"
)

// DefaultThreshold is the confidence a strategy needs before it signals.
const DefaultThreshold = 0.6

type Type string

const (
	TypeMomentum       Type = "momentum"
	TypeMeanReversion  Type = "mean-reversion"
	TypeBreakout       Type = "breakout"
	TypeNewsDriven     Type = "news-driven"
	TypeLiquiditySweep Type = "liquidity-sweep"
)

func (t Type) Valid() bool {
	switch t {
	case TypeMomentum, TypeMeanReversion, TypeBreakout, TypeNewsDriven, TypeLiquiditySweep:
		return true
	}
	return false
}

type Operator string

const (
	OpGreaterThan  Operator = "greater_than"
	OpLessThan     Operator = "less_than"
	OpEquals       Operator = "equals"
	OpRising       Operator = "rising"
	OpFalling      Operator = "falling"
	OpCrossover    Operator = "crossover"
	OpCrossesUnder Operator = "crosses_under"
)

// Condition compares an indicator with a literal Value or, when Ref is set,
// with another indicator. For "volume" with a literal, Value is a multiple of
// the rolling average volume.
type Condition struct {
	Indicator string   `json:"indicator" yaml:"indicator" mapstructure:"indicator"`
	Operator  Operator `json:"operator" yaml:"operator" mapstructure:"operator"`
	Value     float64  `json:"value,omitempty" yaml:"value" mapstructure:"value"`
	Ref       string   `json:"ref,omitempty" yaml:"ref" mapstructure:"ref"`
	Timeframe string   `json:"timeframe,omitempty" yaml:"timeframe" mapstructure:"timeframe"`
	Weight    float64  `json:"weight" yaml:"weight" mapstructure:"weight"`
}

func (c Condition) comparandLabel() string {
	if c.Ref != "" {
		return c.Ref
	}
	if strings.EqualFold(c.Indicator, "volume") {
		return fmt.Sprintf("%gx avg", c.Value)
	}
	return fmt.Sprintf("%g", c.Value)
}

func (c Condition) String() string {
	switch c.Operator {
	case OpRising, OpFalling:
		return fmt.Sprintf("%s %s", c.Indicator, c.Operator)
	default:
		return fmt.Sprintf("%s %s %s", c.Indicator, c.Operator, c.comparandLabel())
	}
}

type Risk struct {
	MaxRisk         float64 `json:"max_risk" yaml:"max_risk" mapstructure:"max_risk"`
	StopLossATR     float64 `json:"stop_loss_atr" yaml:"stop_loss_atr" mapstructure:"stop_loss_atr"`
	TakeProfitRR    float64 `json:"take_profit_rr" yaml:"take_profit_rr" mapstructure:"take_profit_rr"`
	CooldownMinutes int     `json:"cooldown_minutes" yaml:"cooldown_minutes" mapstructure:"cooldown_minutes"`
}

// Strategy is an immutable, weighted rule set. Conditions decide entries;
// any met ExitCondition asks to close an open position.
type Strategy struct {
	ID             string      `json:"id" yaml:"id" mapstructure:"id"`
	Name           string      `json:"name" yaml:"name" mapstructure:"name"`
	Description    string      `json:"description,omitempty" yaml:"description" mapstructure:"description"`
	Type           Type        `json:"type" yaml:"type" mapstructure:"type"`
	Timeframes     []string    `json:"timeframes,omitempty" yaml:"timeframes" mapstructure:"timeframes"`
	Conditions     []Condition `json:"conditions" yaml:"conditions" mapstructure:"conditions"`
	ExitConditions []Condition `json:"exit_conditions,omitempty" yaml:"exit_conditions" mapstructure:"exit_conditions"`
	Risk           Risk        `json:"risk" yaml:"risk" mapstructure:"risk"`
	Exit           exit.Spec   `json:"exit,omitempty" yaml:"exit" mapstructure:"exit"`
	Disabled       bool        `json:"disabled,omitempty" yaml:"disabled" mapstructure:"disabled"`
}

// ExitSpec returns the configured exit rule, falling back to risk_reward from
// the ATR risk parameters and then to the fixed-percentage default.
func (s Strategy) ExitSpec() exit.Spec {
	if !s.Exit.IsZero() {
		return s.Exit
	}
	if s.Risk.StopLossATR > 0 {
		return exit.RiskRewardSpec(s.Risk.StopLossATR, s.Risk.TakeProfitRR)
	}
	return exit.DefaultSpec()
}

// Clone deep-copies the slices so callers cannot mutate registry state.
func (s Strategy) Clone() Strategy {
	out := s
	out.Timeframes = append([]string(nil), s.Timeframes...)
	out.Conditions = append([]Condition(nil), s.Conditions...)
	out.ExitConditions = append([]Condition(nil), s.ExitConditions...)
	if s.Exit.Params != nil {
		out.Exit.Params = make(map[string]float64, len(s.Exit.Params))
		for k, v := range s.Exit.Params {
			out.Exit.Params[k] = v
		}
	}
	return out
}

// Validate checks ids, weights, risk fractions and that every condition is a
// supported indicator/operator pair.
func (s Strategy) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("strategy id is required")
	}
	if !s.Type.Valid() {
		return fmt.Errorf("strategy %s: unknown type %q", s.ID, s.Type)
	}
	if len(s.Conditions) == 0 {
		return fmt.Errorf("strategy %s: at least one condition is required", s.ID)
	}
	check := func(kind string, list []Condition) error {
		for i, c := range list {
			if c.Weight <= 0 || c.Weight > 1 {
				return fmt.Errorf("strategy %s: %s[%d] weight must be in (0,1]", s.ID, kind, i)
			}
			if err := Supported(c); err != nil {
				return fmt.Errorf("strategy %s: %s[%d]: %w", s.ID, kind, i, err)
			}
		}
		return nil
	}
	if err := check("conditions", s.Conditions); err != nil {
		return err
	}
	if err := check("exit_conditions", s.ExitConditions); err != nil {
		return err
	}
	if s.Risk.MaxRisk < 0 || s.Risk.MaxRisk > 1 {
		return fmt.Errorf("strategy %s: risk.max_risk must be in [0,1]", s.ID)
	}
	if s.Risk.StopLossATR < 0 || s.Risk.TakeProfitRR < 0 || s.Risk.CooldownMinutes < 0 {
		return fmt.Errorf("strategy %s: risk parameters must be non-negative", s.ID)
	}
	if _, err := exit.Build(s.ExitSpec()); err != nil {
		return fmt.Errorf("strategy %s: %w", s.ID, err)
	}
	return nil
}

// Signal is an emitted trading intent. Confidence is always in [0,1].
type Signal struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Confidence float64     `json:"confidence"`
	Price      float64     `json:"price"`
	Timestamp  int64       `json:"timestamp"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Reasons    []string    `json:"reasons"`
	StrategyID string      `json:"strategy_id"`
	Timeframe  string      `json:"timeframe,omitempty"`
}
