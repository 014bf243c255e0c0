package strategy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tradepulse/internal/apperr"
	"tradepulse/internal/indicator"
	"tradepulse/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearCandles(n int, start, step, volume float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		c := start + step*float64(i)
		out[i] = market.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     c - step/2,
			High:     c + 0.5,
			Low:      c - 0.5,
			Close:    c,
			Volume:   volume,
		}
	}
	return out
}

func mustGet(t *testing.T, r *Registry, id string) Strategy {
	t.Helper()
	s, err := r.Get(id)
	require.NoError(t, err)
	return s
}

func TestEvaluateMomentumOnRisingSeries(t *testing.T) {
	r := NewRegistry()
	snap := indicator.Compute(linearCandles(60, 100, 1, 1000), indicator.Options{})

	ev := Evaluate(mustGet(t, r, "momentum-scalper"), snap, 0)
	assert.InDelta(t, 0.7, ev.Confidence, 1e-9)
	assert.True(t, ev.Triggered)
	assert.Equal(t, market.SideLong, ev.Side)
	assert.Len(t, ev.Reasons, 3)
	assert.Contains(t, ev.Reasons[0], "ema9 greater_than ema21")
	assert.Empty(t, ev.Unsupported)
}

func TestEvaluateFlatSeriesStaysBelowThreshold(t *testing.T) {
	r := NewRegistry()
	snap := indicator.Compute(linearCandles(60, 100, 0, 1000), indicator.Options{})

	ev := Evaluate(mustGet(t, r, "momentum-scalper"), snap, 0.6)
	assert.False(t, ev.Triggered)
	assert.Equal(t, market.SideFlat, ev.Side)
	assert.Less(t, ev.Confidence, 0.6)
}

func TestEvaluateZeroConditions(t *testing.T) {
	ev := Evaluate(Strategy{ID: "empty", Type: TypeMomentum}, indicator.Snapshot{Price: 1}, 0.6)
	assert.Equal(t, 0.0, ev.Confidence)
	assert.False(t, ev.Triggered)
}

func TestEvaluateConfidenceBounds(t *testing.T) {
	snaps := []indicator.Snapshot{
		{},
		indicator.Compute(linearCandles(80, 50, 0.7, 10), indicator.Options{}),
		indicator.Compute(linearCandles(80, 500, -2, 10), indicator.Options{}),
	}
	for _, s := range NewRegistry().List() {
		for _, snap := range snaps {
			ev := Evaluate(s, snap, 0)
			assert.GreaterOrEqual(t, ev.Confidence, 0.0, s.ID)
			assert.LessOrEqual(t, ev.Confidence, 1.0, s.ID)
		}
	}
}

func TestOperators(t *testing.T) {
	prev := indicator.Snapshot{Price: 99, EMA9: 10, EMA21: 11, RSI: 40, Volume: 100, AvgVolume: 100}
	cur := indicator.Snapshot{Price: 101, EMA9: 12, EMA21: 11, RSI: 45, Volume: 250, AvgVolume: 100, Prev: &prev}

	cases := []struct {
		name string
		cond Condition
		met  bool
	}{
		{"greater literal", Condition{Indicator: "rsi", Operator: OpGreaterThan, Value: 44}, true},
		{"less literal", Condition{Indicator: "rsi", Operator: OpLessThan, Value: 44}, false},
		{"equals", Condition{Indicator: "price", Operator: OpEquals, Value: 101}, true},
		{"rising", Condition{Indicator: "rsi", Operator: OpRising}, true},
		{"falling", Condition{Indicator: "rsi", Operator: OpFalling}, false},
		{"crossover ref", Condition{Indicator: "ema9", Operator: OpCrossover, Ref: "ema21"}, true},
		{"crosses under ref", Condition{Indicator: "ema9", Operator: OpCrossesUnder, Ref: "ema21"}, false},
		{"volume multiple", Condition{Indicator: "volume", Operator: OpGreaterThan, Value: 2}, true},
		{"volume multiple unmet", Condition{Indicator: "volume", Operator: OpGreaterThan, Value: 3}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.cond.Weight = 1
			out := evalCondition(tc.cond, cur)
			assert.False(t, out.unsupported)
			assert.Equal(t, tc.met, out.met)
		})
	}

	t.Run("rising without history", func(t *testing.T) {
		noPrev := cur
		noPrev.Prev = nil
		assert.False(t, evalCondition(Condition{Indicator: "rsi", Operator: OpRising, Weight: 1}, noPrev).met)
	})
}

func TestUnsupportedConditionsAreReported(t *testing.T) {
	s := Strategy{
		ID:   "odd",
		Type: TypeBreakout,
		Conditions: []Condition{
			{Indicator: "rsi", Operator: OpGreaterThan, Value: 10, Weight: 0.5},
			{Indicator: "moon_phase", Operator: OpGreaterThan, Value: 1, Weight: 0.25},
			{Indicator: "supertrend.direction", Operator: OpCrossover, Value: 0, Weight: 0.25},
		},
	}
	ev := Evaluate(s, indicator.Snapshot{RSI: 55}, 0.5)
	assert.InDelta(t, 0.5, ev.Confidence, 1e-9)
	assert.Len(t, ev.Unsupported, 2)
	assert.True(t, ev.Triggered)

	err := NewRegistry().Add(s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidConfig))
}

func TestEvaluateExit(t *testing.T) {
	s := Strategy{ExitConditions: []Condition{{Indicator: "rsi", Operator: OpGreaterThan, Value: 80, Weight: 1}}}
	hit, reasons := EvaluateExit(s, indicator.Snapshot{RSI: 85})
	assert.True(t, hit)
	assert.Len(t, reasons, 1)

	hit, _ = EvaluateExit(s, indicator.Snapshot{RSI: 60})
	assert.False(t, hit)
}

func TestSideFor(t *testing.T) {
	down := indicator.Snapshot{EMA9: 1, EMA21: 2}
	assert.Equal(t, market.SideLong, SideFor(TypeMeanReversion, down))
	assert.Equal(t, market.SideShort, SideFor(TypeMomentum, down))
	assert.Equal(t, market.SideLong, SideFor(TypeBreakout, indicator.Snapshot{EMA9: 3, EMA21: 2}))
}

func TestRegistryCopiesAndErrors(t *testing.T) {
	r := NewRegistry()
	assert.Len(t, r.List(), 6)
	for _, s := range r.List() {
		assert.NoError(t, s.Validate(), s.ID)
	}

	s := mustGet(t, r, "mean-reversion")
	s.Conditions[0].Weight = 0.01
	assert.Equal(t, 0.4, mustGet(t, r, "mean-reversion").Conditions[0].Weight, "registry hands out copies")

	_, err := r.Get("nope")
	assert.True(t, errors.Is(err, apperr.ErrUnknownStrategy))
	assert.True(t, errors.Is(r.Remove("nope"), apperr.ErrUnknownStrategy))

	require.NoError(t, r.Remove("news-momentum"))
	assert.Len(t, r.List(), 5)

	custom := Strategy{
		ID:         "custom",
		Type:       TypeMomentum,
		Conditions: []Condition{{Indicator: "macd.histogram", Operator: OpGreaterThan, Value: 0, Weight: 1}},
		Disabled:   true,
	}
	var notified int
	r.Subscribe(func([]Strategy) { notified++ })
	require.NoError(t, r.Add(custom))
	assert.Equal(t, 1, notified)
	assert.Len(t, r.List(), 6)
	assert.Len(t, r.Enabled(), 5)
}

func TestValidateRejectsBadDefinitions(t *testing.T) {
	base := Strategy{
		ID:         "x",
		Type:       TypeMomentum,
		Conditions: []Condition{{Indicator: "rsi", Operator: OpLessThan, Value: 30, Weight: 1}},
	}
	require.NoError(t, base.Validate())

	bad := []func(s *Strategy){
		func(s *Strategy) { s.ID = " " },
		func(s *Strategy) { s.Type = "astrology" },
		func(s *Strategy) { s.Conditions = nil },
		func(s *Strategy) { s.Conditions[0].Weight = 0 },
		func(s *Strategy) { s.Conditions[0].Weight = 1.5 },
		func(s *Strategy) { s.Conditions[0].Ref = "nowhere" },
		func(s *Strategy) { s.Risk.MaxRisk = 2 },
		func(s *Strategy) { s.Exit.Kind = "trailing" },
	}
	for i, mutate := range bad {
		s := base.Clone()
		mutate(&s)
		assert.Error(t, s.Validate(), "case %d", i)
	}
}

func TestExitSpecFallbacks(t *testing.T) {
	s := Strategy{Risk: Risk{StopLossATR: 1.2, TakeProfitRR: 1.5}}
	assert.Equal(t, "risk_reward", s.ExitSpec().Kind)
	assert.Equal(t, "fixed_pct", Strategy{}.ExitSpec().Kind)
}

const strategyFile = `strategies:
  - id: rsi-dip
    name: RSI dip
    type: mean-reversion
    conditions:
      - indicator: rsi
        operator: less_than
        value: 25
        weight: 1
    risk:
      max_risk: 0.01
      cooldown_minutes: 5
    exit:
      kind: fixed_pct
      params:
        stop_pct: 0.02
        take_pct: 0.04
  - id: momentum-scalper
    type: momentum
    conditions:
      - indicator: ema9
        operator: greater_than
        ref: ema21
        weight: 1
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strategyFile), 0o644))

	r := NewRegistry()
	require.NoError(t, r.LoadFile(path, false))

	dip := mustGet(t, r, "rsi-dip")
	assert.Equal(t, TypeMeanReversion, dip.Type)
	assert.Equal(t, 0.04, dip.Exit.Params["take_pct"])
	assert.Len(t, mustGet(t, r, "momentum-scalper").Conditions, 1, "file overrides builtin")
	assert.Len(t, r.List(), 7)
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	body := "strategies:\n  - id: a\n    type: momentum\n    colour: red\n    conditions:\n      - {indicator: rsi, operator: less_than, value: 1, weight: 1}\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	err := NewRegistry().LoadFile(path, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidConfig))
}

func TestLoadFileSchemaRejectsBadWeight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	body := "strategies:\n  - id: a\n    type: momentum\n    conditions:\n      - {indicator: rsi, operator: less_than, value: 1, weight: 3}\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	err := NewRegistry().LoadFile(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}
