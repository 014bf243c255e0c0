package strategy

// Defaults returns fresh copies of the built-in strategies.
func Defaults() []Strategy {
	return []Strategy{
		{
			ID:          "momentum-scalper",
			Name:        "Momentum Scalper",
			Description: "Fast EMA trend with VWAP and volume confirmation",
			Type:        TypeMomentum,
			Timeframes:  []string{"1m", "5m"},
			Conditions: []Condition{
				{Indicator: "ema9", Operator: OpGreaterThan, Ref: "ema21", Weight: 0.3},
				{Indicator: "rsi", Operator: OpGreaterThan, Value: 50, Weight: 0.2},
				{Indicator: "price", Operator: OpGreaterThan, Ref: "vwap", Weight: 0.2},
				{Indicator: "volume", Operator: OpGreaterThan, Value: 1.5, Weight: 0.3},
			},
			ExitConditions: []Condition{
				{Indicator: "ema9", Operator: OpLessThan, Ref: "ema21", Weight: 1},
				{Indicator: "rsi", Operator: OpGreaterThan, Value: 80, Weight: 1},
				{Indicator: "rsi", Operator: OpLessThan, Value: 30, Weight: 1},
			},
			Risk: Risk{MaxRisk: 0.02, StopLossATR: 1.2, TakeProfitRR: 1.5, CooldownMinutes: 10},
		},
		{
			ID:          "mean-reversion",
			Name:        "Mean Reversion",
			Description: "Oversold RSI below the lower Bollinger band",
			Type:        TypeMeanReversion,
			Timeframes:  []string{"5m", "15m"},
			Conditions: []Condition{
				{Indicator: "rsi", Operator: OpLessThan, Value: 30, Weight: 0.4},
				{Indicator: "price", Operator: OpLessThan, Ref: "bollinger.lower", Weight: 0.3},
				{Indicator: "volume", Operator: OpGreaterThan, Value: 1.2, Weight: 0.3},
			},
			ExitConditions: []Condition{
				{Indicator: "rsi", Operator: OpGreaterThan, Value: 50, Weight: 1},
				{Indicator: "price", Operator: OpGreaterThan, Ref: "bollinger.middle", Weight: 1},
			},
			Risk: Risk{MaxRisk: 0.015, StopLossATR: 1.0, TakeProfitRR: 2.0, CooldownMinutes: 15},
		},
		{
			ID:          "breakout-momentum",
			Name:        "Breakout Momentum",
			Description: "Close above the upper band on expanding volume and range",
			Type:        TypeBreakout,
			Timeframes:  []string{"15m", "1h"},
			Conditions: []Condition{
				{Indicator: "price", Operator: OpGreaterThan, Ref: "bollinger.upper", Weight: 0.4},
				{Indicator: "volume", Operator: OpGreaterThan, Value: 2.0, Weight: 0.3},
				{Indicator: "rsi", Operator: OpGreaterThan, Value: 60, Weight: 0.2},
				{Indicator: "atr_pct", Operator: OpGreaterThan, Value: 1.5, Weight: 0.1},
			},
			ExitConditions: []Condition{
				{Indicator: "ema9", Operator: OpCrossesUnder, Ref: "ema21", Weight: 1},
				{Indicator: "rsi", Operator: OpLessThan, Value: 40, Weight: 1},
			},
			Risk: Risk{MaxRisk: 0.025, StopLossATR: 1.5, TakeProfitRR: 2.5, CooldownMinutes: 30},
		},
		{
			ID:          "liquidity-sweep",
			Name:        "Liquidity Sweep",
			Description: "Reclaim of support after a stop run",
			Type:        TypeLiquiditySweep,
			Timeframes:  []string{"5m", "15m"},
			Conditions: []Condition{
				{Indicator: "price", Operator: OpCrossover, Ref: "support", Weight: 0.5},
				{Indicator: "volume", Operator: OpGreaterThan, Value: 3.0, Weight: 0.3},
				{Indicator: "williams_r", Operator: OpLessThan, Value: -80, Weight: 0.2},
			},
			ExitConditions: []Condition{
				{Indicator: "williams_r", Operator: OpGreaterThan, Value: -20, Weight: 1},
			},
			Risk: Risk{MaxRisk: 0.02, StopLossATR: 1.0, TakeProfitRR: 3.0, CooldownMinutes: 20},
		},
		{
			ID:          "news-momentum",
			Name:        "News Momentum",
			Description: "Volume and volatility spike above VWAP",
			Type:        TypeNewsDriven,
			Timeframes:  []string{"1m"},
			Conditions: []Condition{
				{Indicator: "volume", Operator: OpGreaterThan, Value: 5.0, Weight: 0.4},
				{Indicator: "volatility", Operator: OpGreaterThan, Value: 0.02, Weight: 0.3},
				{Indicator: "price", Operator: OpGreaterThan, Ref: "vwap", Weight: 0.3},
			},
			ExitConditions: []Condition{
				{Indicator: "price", Operator: OpCrossesUnder, Ref: "vwap", Weight: 1},
			},
			Risk: Risk{MaxRisk: 0.03, StopLossATR: 2.0, TakeProfitRR: 1.8, CooldownMinutes: 5},
		},
		{
			ID:          "advanced-scalping",
			Name:        "Advanced Scalping",
			Description: "Supertrend direction with stochastic and CCI filters",
			Type:        TypeMomentum,
			Timeframes:  []string{"1m"},
			Conditions: []Condition{
				{Indicator: "supertrend.direction", Operator: OpEquals, Value: 1, Weight: 0.3},
				{Indicator: "stochastic.k", Operator: OpLessThan, Value: 80, Weight: 0.2},
				{Indicator: "cci", Operator: OpGreaterThan, Value: -100, Weight: 0.2},
				{Indicator: "volume", Operator: OpGreaterThan, Value: 1.8, Weight: 0.3},
			},
			ExitConditions: []Condition{
				{Indicator: "supertrend.direction", Operator: OpEquals, Value: -1, Weight: 1},
				{Indicator: "stochastic.k", Operator: OpGreaterThan, Value: 95, Weight: 1},
			},
			Risk: Risk{MaxRisk: 0.01, StopLossATR: 0.8, TakeProfitRR: 1.2, CooldownMinutes: 3},
		},
	}
}
