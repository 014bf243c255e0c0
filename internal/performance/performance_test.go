package performance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day = int64(24 * time.Hour / time.Millisecond)
)

func closedTrade(entryDay, exitDay int, pnl, pnlPct float64) Trade {
	return Trade{
		EntryTime:  t0.UnixMilli() + int64(entryDay)*day,
		ExitTime:   t0.UnixMilli() + int64(exitDay)*day,
		EntryPrice: 100,
		Quantity:   1,
		PnL:        pnl,
		PnLPercent: pnlPct,
	}
}

func TestEmptyTradesAreZeroed(t *testing.T) {
	rep := Calculate(nil, 10_000, t0, t0.AddDate(0, 1, 0), DefaultOptions())
	assert.Equal(t, Metrics{}, rep.Metrics)
	require.Len(t, rep.Equity, 1)
	assert.Equal(t, 10_000.0, rep.Equity[0].Equity)
	assert.Equal(t, t0.UnixMilli(), rep.Equity[0].Timestamp)
	assert.Empty(t, rep.Monthly)
	assert.Equal(t, RiskMetrics{}, rep.Risk)
}

func TestSingleWinningTrade(t *testing.T) {
	tr := closedTrade(0, 10, 10, 0.10)
	rep := Calculate([]Trade{tr}, 1_000, t0, t0.AddDate(0, 0, 30), DefaultOptions())
	m := rep.Metrics

	assert.InDelta(t, 10.0, m.TotalPnL, 1e-12)
	assert.InDelta(t, 10.0/1_000, m.TotalReturn, 1e-12)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1.0, m.WinRate)
	assert.Equal(t, 0.0, m.ProfitFactor, "no losers")
	assert.Equal(t, 0.0, m.Sharpe, "single return")
	assert.Equal(t, SortinoNoDownside, m.Sortino)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 0.0, m.Calmar)
	assert.InDelta(t, 10.0/30, m.ExposureTime, 1e-9)
	assert.Greater(t, m.AnnualizedReturn, m.TotalReturn)
}

func TestCountsAddUp(t *testing.T) {
	trades := []Trade{
		closedTrade(0, 1, 5, 0.05),
		closedTrade(1, 2, -3, -0.03),
		closedTrade(2, 3, 0, 0),
		closedTrade(3, 4, 7, 0.07),
		closedTrade(4, 5, -1, -0.01),
		{EntryTime: t0.UnixMilli(), PnL: 99}, // still open
	}
	m := Calculate(trades, 100, t0, t0.AddDate(0, 0, 10), DefaultOptions()).Metrics
	assert.Equal(t, 5, m.TotalTrades)
	assert.Equal(t, m.TotalTrades, m.WinningTrades+m.LosingTrades+m.BreakEvenTrades)
	assert.Equal(t, 1, m.BreakEvenTrades)
	assert.InDelta(t, 12.0/4.0, m.ProfitFactor, 1e-12)
	assert.InDelta(t, 6.0/2.0, m.PayoffRatio, 1e-12)
	assert.Equal(t, 7.0, m.LargestWin)
	assert.Equal(t, -3.0, m.LargestLoss)
	assert.InDelta(t, 8.0/5.0, m.Expectancy, 1e-12)
	assert.NotZero(t, m.Sharpe)
	assert.NotEqual(t, SortinoNoDownside, m.Sortino)
}

func TestMaxDrawdown(t *testing.T) {
	dd, dur := MaxDrawdown([]float64{100, 120, 90, 95, 130, 125}, []int64{0, 1, 2, 3, 4, 5})
	assert.InDelta(t, 0.25, dd, 1e-12)
	assert.Equal(t, int64(3), dur)

	dd, _ = MaxDrawdown([]float64{100, -50}, nil)
	assert.Equal(t, 1.0, dd, "clamped to 1")

	series := []float64{100, 110}
	prev := 0.0
	for _, v := range []float64{105, 100, 80, 60} {
		series = append(series, v)
		dd, _ := MaxDrawdown(series, nil)
		assert.GreaterOrEqual(t, dd, prev)
		assert.LessOrEqual(t, dd, 1.0)
		prev = dd
	}
}

func TestSharpeSortino(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.03, 0.005}
	opts := Options{RiskFreeRate: 0, PeriodsPerYear: 252}

	mean := (0.01 - 0.02 + 0.03 + 0.005) / 4
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= 4
	assert.InDelta(t, mean*252/math.Sqrt(variance*252), Sharpe(returns, opts), 1e-9)

	downside := math.Sqrt(0.02 * 0.02 / 4 * 252)
	assert.InDelta(t, mean*252/downside, Sortino(returns, opts), 1e-9)

	assert.Equal(t, 0.0, Sharpe([]float64{0.01, 0.01}, opts), "zero deviation")
	assert.Equal(t, 0.0, Sortino(nil, opts))
	assert.Equal(t, 0.0, Sortino([]float64{0, 0}, opts))
}

func TestVaRAndRisk(t *testing.T) {
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = float64(i-50) / 1000
	}
	assert.InDelta(t, 0.045, VaR(returns, 0.95), 1e-12)
	assert.InDelta(t, 0.049, VaR(returns, 0.99), 1e-12)

	r := Risk(returns)
	assert.InDelta(t, (0.050+0.049+0.048+0.047+0.046+0.045)/6, r.CVaR95, 1e-12)
	assert.Greater(t, r.DownsideDeviation, 0.0)
	assert.Greater(t, r.UpsideDeviation, 0.0)
	assert.Equal(t, 0.0, VaR(nil, 0.95))
}

func TestMonthlyAndAnalysis(t *testing.T) {
	trades := []Trade{
		closedTrade(0, 2, 10, 0.1),
		closedTrade(3, 5, 5, 0.05),
		closedTrade(40, 41, -4, -0.04),
		closedTrade(42, 46, -2, -0.02),
		closedTrade(50, 51, 1, 0.01),
	}
	rep := Calculate(trades, 1_000, t0, t0.AddDate(0, 3, 0), DefaultOptions())

	require.Len(t, rep.Monthly, 2)
	assert.Equal(t, 2024, rep.Monthly[0].Year)
	assert.Equal(t, 1, rep.Monthly[0].Month)
	assert.InDelta(t, 0.15, rep.Monthly[0].Return, 1e-12)
	assert.Equal(t, 2, rep.Monthly[0].Trades)
	assert.Equal(t, 2, rep.Monthly[1].Month)
	assert.Equal(t, 3, rep.Monthly[1].Trades)

	a := rep.Analysis
	assert.Equal(t, 2, a.ConsecutiveWins)
	assert.Equal(t, 2, a.ConsecutiveLosses)
	assert.Equal(t, day, a.ShortestMs)
	assert.Equal(t, 4*day, a.LongestMs)
	assert.Equal(t, 2*day, a.MedianDurationMs)
	assert.Equal(t, 1, a.BestMonth.Month)
	assert.Equal(t, 2, a.WorstMonth.Month)

	require.Len(t, rep.Equity, 6)
	assert.InDelta(t, 1_010.0, rep.Equity[5].Equity, 1e-9)
	assert.Len(t, rep.Drawdown, 6)
	assert.True(t, rep.Drawdown[3].Active)
	assert.Greater(t, rep.Metrics.MaxDrawdown, 0.0)
}

func TestExposureMergesOverlaps(t *testing.T) {
	trades := []Trade{closedTrade(0, 4, 1, 0.01), closedTrade(2, 6, 1, 0.01)}
	assert.InDelta(t, 0.6, exposure(trades, t0.UnixMilli(), t0.UnixMilli()+10*day), 1e-12)
}
