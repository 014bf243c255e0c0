package exit

import (
	"testing"

	"tradepulse/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedPercentLevels(t *testing.T) {
	rule, err := Build(Spec{})
	require.NoError(t, err)
	assert.Equal(t, KindFixedPercent, rule.Kind())

	long := rule.Levels(Input{Side: market.SideLong, Entry: 100})
	assert.InDelta(t, 95.0, long.StopLoss, 1e-9)
	assert.InDelta(t, 110.0, long.TakeProfit, 1e-9)

	short := rule.Levels(Input{Side: market.SideShort, Entry: 100})
	assert.InDelta(t, 105.0, short.StopLoss, 1e-9)
	assert.InDelta(t, 90.0, short.TakeProfit, 1e-9)
}

func TestRiskRewardLevels(t *testing.T) {
	rule, err := Build(RiskRewardSpec(1.2, 1.5))
	require.NoError(t, err)

	lv := rule.Levels(Input{Side: market.SideLong, Entry: 100, ATR: 2})
	assert.InDelta(t, 97.6, lv.StopLoss, 1e-9)
	assert.InDelta(t, 103.6, lv.TakeProfit, 1e-9)

	sv := rule.Levels(Input{Side: market.SideShort, Entry: 100, ATR: 2})
	assert.InDelta(t, 102.4, sv.StopLoss, 1e-9)
	assert.InDelta(t, 96.4, sv.TakeProfit, 1e-9)

	assert.Equal(t, Levels{}, rule.Levels(Input{Side: market.SideLong, Entry: 100, ATR: 0}), "no volatility disables levels")
}

func TestATRMultipleLevels(t *testing.T) {
	rule, err := Build(Spec{Kind: KindATRMultiple, Params: map[string]float64{"stop_atr": 2, "take_atr": 3}})
	require.NoError(t, err)
	lv := rule.Levels(Input{Side: market.SideLong, Entry: 50, ATR: 1})
	assert.InDelta(t, 48.0, lv.StopLoss, 1e-9)
	assert.InDelta(t, 53.0, lv.TakeProfit, 1e-9)
}

func TestBuildRejectsBadSpecs(t *testing.T) {
	cases := []Spec{
		{Kind: "trailing"},
		{Kind: KindFixedPercent, Params: map[string]float64{"stop_pct": 1.5}},
		{Kind: KindRiskReward, Params: map[string]float64{"rr": 2}},
		{Kind: KindATRMultiple},
	}
	for _, spec := range cases {
		_, err := Build(spec)
		assert.Error(t, err, spec.Kind)
	}
	assert.Contains(t, Kinds(), KindRiskReward)
}

func TestLevelsHit(t *testing.T) {
	lv := Levels{StopLoss: 95, TakeProfit: 110}

	reason, px, ok := lv.Hit(market.SideLong, 111, 100)
	assert.True(t, ok)
	assert.Equal(t, ReasonTakeProfit, reason)
	assert.Equal(t, 110.0, px)

	reason, _, ok = lv.Hit(market.SideLong, 112, 94)
	assert.True(t, ok)
	assert.Equal(t, ReasonStopLoss, reason, "stop wins when a bar spans both levels")

	_, _, ok = lv.Hit(market.SideLong, 105, 96)
	assert.False(t, ok)

	short := Levels{StopLoss: 105, TakeProfit: 90}
	reason, _, ok = short.Hit(market.SideShort, 106, 100)
	assert.True(t, ok)
	assert.Equal(t, ReasonStopLoss, reason)

	_, _, ok = Levels{}.Hit(market.SideLong, 1000, 1)
	assert.False(t, ok)
}
