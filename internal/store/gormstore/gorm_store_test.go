package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradepulse/internal/backtest"
	"tradepulse/internal/market"
	"tradepulse/internal/performance"
	"tradepulse/internal/store"
	"tradepulse/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "data", "tradepulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStore_Signals(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	sigs := []strategy.Signal{
		{ID: "a", Symbol: "BTCUSDT", Side: market.SideLong, Confidence: 0.7, Price: 100, Timestamp: 1000, Reasons: []string{"rsi"}, StrategyID: "momentum-scalper", Timeframe: "1m"},
		{ID: "b", Symbol: "ETHUSDT", Side: market.SideShort, Confidence: 0.8, Price: 50, Timestamp: 2000, StrategyID: "mean-reversion"},
		{ID: "c", Symbol: "BTCUSDT", Side: market.SideShort, Confidence: 0.9, Price: 101, Timestamp: 3000, StrategyID: "mean-reversion"},
	}
	for _, sig := range sigs {
		require.NoError(t, s.StoreSignal(ctx, sig))
	}
	// duplicate ids are ignored
	require.NoError(t, s.StoreSignal(ctx, sigs[0]))

	all, err := s.ListSignals(ctx, store.SignalQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, []string{"rsi"}, all[2].Reasons)
	assert.Equal(t, market.SideLong, all[2].Side)

	btc, err := s.ListSignals(ctx, store.SignalQuery{Symbol: "btcusdt"})
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	mr, err := s.ListSignals(ctx, store.SignalQuery{StrategyID: "mean-reversion", Limit: 1})
	require.NoError(t, err)
	require.Len(t, mr, 1)
	assert.Equal(t, "c", mr[0].ID)
}

func TestGormStore_BacktestResults(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id string, finished time.Time, ret float64) *backtest.Result {
		return &backtest.Result{
			ID: id,
			Config: backtest.Config{
				StrategyID: "momentum-scalper", Symbol: "BTCUSDT", Timeframe: "1h",
				Start: base, End: base.Add(48 * time.Hour), InitialCapital: 10000,
			},
			Report:       performance.Report{Metrics: performance.Metrics{TotalTrades: 3, TotalReturn: ret}},
			FinalCapital: 10000 * (1 + ret),
			FinishedAt:   finished,
		}
	}
	require.NoError(t, s.StoreBacktestResult(ctx, mk("r1", base.Add(time.Hour), 0.1)))
	require.NoError(t, s.StoreBacktestResult(ctx, mk("r2", base.Add(2*time.Hour), -0.05)))
	// upsert replaces the earlier row
	require.NoError(t, s.StoreBacktestResult(ctx, mk("r1", base.Add(3*time.Hour), 0.2)))
	require.NoError(t, s.StoreBacktestResult(ctx, nil))

	list, err := s.ListBacktestResults(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r1", list[0].ID)
	assert.InDelta(t, 0.2, list[0].TotalReturn, 1e-12)
	assert.Equal(t, 3, list[0].TotalTrades)
	assert.Equal(t, "r2", list[1].ID)

	full, err := s.LoadBacktestResult(ctx, "r2")
	require.NoError(t, err)
	assert.InDelta(t, 9500, full.FinalCapital, 1e-9)
	assert.Equal(t, "BTCUSDT", full.Config.Symbol)
}

func TestNewGormStore_RequiresPath(t *testing.T) {
	_, err := NewGormStore("  ")
	assert.Error(t, err)
}
