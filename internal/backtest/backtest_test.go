package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tradepulse/internal/apperr"
	"tradepulse/internal/history"
	"tradepulse/internal/indicator"
	"tradepulse/internal/market"
	"tradepulse/internal/performance"
	"tradepulse/internal/strategy"
	"tradepulse/internal/strategy/exit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

const hourMs = int64(time.Hour / time.Millisecond)

func hourly(n int, price func(i int) float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		p := price(i)
		open := t0.UnixMilli() + int64(i)*hourMs
		out[i] = market.Candle{
			OpenTime:  open,
			CloseTime: open + hourMs - 1,
			Open:      p,
			High:      p + 0.5,
			Low:       p - 0.5,
			Close:     p,
			Volume:    1_000,
		}
	}
	return out
}

func rising(i int) float64 { return 100 + float64(i) }
func flat(int) float64     { return 100 }

type recordingSink struct {
	mu  sync.Mutex
	got []*Result
}

func (s *recordingSink) RecordBacktest(res *Result) {
	s.mu.Lock()
	s.got = append(s.got, res)
	s.mu.Unlock()
}

func newTestEngine(t *testing.T, candles []market.Candle, sink ResultSink) *Engine {
	t.Helper()
	mem := history.NewMemory()
	if candles != nil {
		mem.Put("BTCUSDT", "1h", candles)
	}
	return NewEngine(EngineConfig{ResultsCap: 2}, strategy.NewRegistry(), mem, sink)
}

func baseConfig() Config {
	return Config{
		StrategyID:     "momentum-scalper",
		Symbol:         "btcusdt",
		Start:          t0.Add(50 * time.Hour),
		End:            t0.Add(199 * time.Hour),
		InitialCapital: 10_000,
		Timeframe:      "1h",
		RiskPerTrade:   0.1,
	}
}

func TestRisingSeriesOpensProfitableLongs(t *testing.T) {
	sink := &recordingSink{}
	eng := newTestEngine(t, hourly(200, rising), sink)

	res, err := eng.Run(context.Background(), baseConfig())
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)
	assert.Equal(t, "BTCUSDT", res.Config.Symbol)
	assert.Equal(t, 150, res.Bars)

	for _, tr := range res.Trades {
		assert.Equal(t, market.SideLong, tr.Side)
		assert.Greater(t, tr.PnL, 0.0, tr.ID)
		assert.Greater(t, tr.ExitTime, tr.EntryTime)
		assert.Contains(t, []exit.Reason{exit.ReasonTakeProfit, exit.ReasonEndOfData}, tr.ExitReason)
		assert.Contains(t, tr.ID, res.ID)
	}
	m := res.Report.Metrics
	assert.Equal(t, len(res.Trades), m.TotalTrades)
	assert.Equal(t, 1.0, m.WinRate)
	assert.Greater(t, m.TotalReturn, 0.0)
	assert.Greater(t, res.FinalCapital, 10_000.0)

	require.Len(t, sink.got, 1)
	assert.Equal(t, res.ID, sink.got[0].ID)
}

func TestFlatSeriesHasNoTrades(t *testing.T) {
	eng := newTestEngine(t, hourly(200, flat), nil)
	res, err := eng.Run(context.Background(), baseConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, performance.Metrics{}, res.Report.Metrics)
	assert.Equal(t, 10_000.0, res.FinalCapital)
}

func TestRunsAreDeterministic(t *testing.T) {
	candles := market.RandomWalk(market.WalkParams{Seed: 7, StartPrice: 100}, t0, time.Hour, 300)
	cfg := baseConfig()
	cfg.End = t0.Add(299 * time.Hour)
	cfg.Commission = 0.001
	cfg.Slippage = 0.0005

	eng := newTestEngine(t, candles, nil)
	a, err := eng.Run(context.Background(), cfg)
	require.NoError(t, err)
	b, err := eng.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	require.Len(t, b.Trades, len(a.Trades))
	for i := range a.Trades {
		assert.Equal(t, fmt.Sprintf("%s-%04d", a.ID, i+1), a.Trades[i].ID)
		assert.Equal(t, fmt.Sprintf("%s-%04d", b.ID, i+1), b.Trades[i].ID)
		x, y := a.Trades[i], b.Trades[i]
		x.ID, y.ID = "", ""
		assert.Equal(t, x, y)
	}
	assert.Equal(t, a.Report.Metrics, b.Report.Metrics)
}

func TestMaxPositionsIsRespected(t *testing.T) {
	eng := newTestEngine(t, hourly(200, rising), nil)
	res, err := eng.Run(context.Background(), baseConfig())
	require.NoError(t, err)
	for i := 1; i < len(res.Trades); i++ {
		assert.GreaterOrEqual(t, res.Trades[i].EntryTime, res.Trades[i-1].ExitTime)
	}
}

func walkConfig(maxPositions int, risk float64) (Config, []market.Candle) {
	candles := market.RandomWalk(market.WalkParams{Seed: 7, StartPrice: 100}, t0, time.Hour, 600)
	cfg := baseConfig()
	cfg.End = t0.Add(599 * time.Hour)
	cfg.MaxPositions = maxPositions
	cfg.RiskPerTrade = risk
	return cfg, candles
}

// openAt returns the trades other than x still open when x was entered.
func openAt(trades []Trade, x Trade) []Trade {
	var out []Trade
	for _, y := range trades {
		if y.ID != x.ID && y.EntryTime <= x.EntryTime && x.EntryTime < y.ExitTime {
			out = append(out, y)
		}
	}
	return out
}

func TestSeveralPositionsOverlap(t *testing.T) {
	cfg, candles := walkConfig(3, 0.1)
	res, err := newTestEngine(t, candles, nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	peak := 0
	for _, x := range res.Trades {
		if n := len(openAt(res.Trades, x)) + 1; n > peak {
			peak = n
		}
	}
	assert.LessOrEqual(t, peak, 3)
	assert.Greater(t, peak, 1, "the walk should stack entries")
}

func TestSizingUsesFreeCapital(t *testing.T) {
	cfg, candles := walkConfig(3, 0.9)
	res, err := newTestEngine(t, candles, nil).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	for _, x := range res.Trades {
		capital := cfg.InitialCapital
		for _, y := range res.Trades {
			if y.ExitTime <= x.EntryTime {
				capital += y.PnL
			}
		}
		notional := x.EntryPrice * x.Quantity
		for _, y := range openAt(res.Trades, x) {
			notional += y.EntryPrice * y.Quantity
		}
		assert.LessOrEqual(t, notional, capital+1e-6, x.ID)
	}
}

func TestGapFill(t *testing.T) {
	cases := []struct {
		name   string
		side   market.Side
		reason exit.Reason
		level  float64
		open   float64
		want   float64
	}{
		{"long stop gapped down", market.SideLong, exit.ReasonStopLoss, 95, 90, 90},
		{"long stop touched", market.SideLong, exit.ReasonStopLoss, 95, 99, 95},
		{"long target gapped up", market.SideLong, exit.ReasonTakeProfit, 110, 112, 112},
		{"long target touched", market.SideLong, exit.ReasonTakeProfit, 110, 105, 110},
		{"short stop gapped up", market.SideShort, exit.ReasonStopLoss, 105, 108, 108},
		{"short target gapped down", market.SideShort, exit.ReasonTakeProfit, 90, 88, 88},
		{"short target touched", market.SideShort, exit.ReasonTakeProfit, 90, 95, 90},
		{"missing open", market.SideLong, exit.ReasonStopLoss, 95, 0, 95},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, gapFill(tc.side, tc.reason, tc.level, tc.open))
		})
	}
}

func TestStopExitPaysSlippage(t *testing.T) {
	sim := newSimulation("run", Config{InitialCapital: 1_000, Slippage: 0.01}, strategy.Strategy{}, nil, indicator.Options{})
	pos := &position{
		trade:  Trade{Side: market.SideLong, EntryPrice: 100, Quantity: 1},
		levels: exit.Levels{StopLoss: 95, TakeProfit: 110},
	}
	reason, px, ok := pos.levels.Hit(market.SideLong, 92, 88)
	require.True(t, ok)
	require.Equal(t, exit.ReasonStopLoss, reason)

	sim.closeAt(pos, gapFill(market.SideLong, reason, px, 90), hourMs, reason)
	require.Len(t, sim.closed, 1)
	tr := sim.closed[0]
	assert.InDelta(t, 89.1, tr.ExitPrice, 1e-9, "gap open less slippage")
	assert.InDelta(t, 0.9, tr.Slippage, 1e-9)
	assert.InDelta(t, -10.9, tr.PnL, 1e-9)
	assert.InDelta(t, 1_000-10.9, sim.capital, 1e-9)
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown strategy", func(t *testing.T) {
		cfg := baseConfig()
		cfg.StrategyID = "nope"
		_, err := newTestEngine(t, hourly(200, rising), nil).Run(ctx, cfg)
		require.ErrorIs(t, err, apperr.ErrUnknownStrategy)
		var ae *apperr.Error
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "BTCUSDT", ae.Symbol)
	})

	t.Run("no data", func(t *testing.T) {
		_, err := newTestEngine(t, nil, nil).Run(ctx, baseConfig())
		assert.ErrorIs(t, err, apperr.ErrDataUnavailable)
	})

	t.Run("too few candles for warmup", func(t *testing.T) {
		_, err := newTestEngine(t, hourly(30, rising), nil).Run(ctx, baseConfig())
		assert.ErrorIs(t, err, apperr.ErrDataUnavailable)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := baseConfig()
		cfg.InitialCapital = 0
		_, err := newTestEngine(t, hourly(200, rising), nil).Run(ctx, cfg)
		assert.ErrorIs(t, err, apperr.ErrInvalidConfig)

		cfg = baseConfig()
		cfg.End = cfg.Start
		_, err = newTestEngine(t, hourly(200, rising), nil).Run(ctx, cfg)
		assert.ErrorIs(t, err, apperr.ErrInvalidConfig)

		cfg = baseConfig()
		cfg.Timeframe = "7m"
		_, err = newTestEngine(t, hourly(200, rising), nil).Run(ctx, cfg)
		assert.ErrorIs(t, err, apperr.ErrInvalidConfig)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		eng := newTestEngine(t, hourly(200, rising), nil)
		res, err := eng.Run(cctx, baseConfig())
		assert.Nil(t, res)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, eng.List())
	})
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := baseConfig().Validate()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxPositions)
	assert.Equal(t, 50, cfg.WarmupBars)
	assert.Equal(t, strategy.DefaultThreshold, cfg.Threshold)

	bad := baseConfig()
	bad.Exit = &exit.Spec{Kind: "bogus"}
	_, err = bad.Validate()
	assert.ErrorIs(t, err, apperr.ErrInvalidConfig)
}

func TestSettleTrade(t *testing.T) {
	open := Trade{Side: market.SideLong, EntryPrice: 100, Quantity: 1, EntryTime: t0.UnixMilli()}
	closed := settleTrade(open, 110, t0.UnixMilli()+hourMs, exit.ReasonSignal, 0)
	assert.InDelta(t, 10.0, closed.PnL, 1e-12)
	assert.InDelta(t, 0.10, closed.PnLPercent, 1e-12)
	assert.Equal(t, hourMs, closed.DurationMs)

	short := open
	short.Side = market.SideShort
	closed = settleTrade(short, 110, t0.UnixMilli()+hourMs, exit.ReasonStopLoss, 0.001)
	assert.InDelta(t, -10.0-0.11, closed.PnL, 1e-12)

	rep := performance.Calculate([]performance.Trade{settleTrade(open, 110, t0.UnixMilli()+hourMs, exit.ReasonSignal, 0).perf()},
		1_000, t0, t0.Add(24*time.Hour), performance.DefaultOptions())
	assert.InDelta(t, 10.0/1_000, rep.Metrics.TotalReturn, 1e-12)
}

func TestResultsAreBounded(t *testing.T) {
	eng := newTestEngine(t, hourly(200, flat), nil)
	var ids []string
	for i := 0; i < 3; i++ {
		res, err := eng.Run(context.Background(), baseConfig())
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}
	_, err := eng.Get(ids[0])
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	got, err := eng.Get(ids[2])
	require.NoError(t, err)
	assert.Equal(t, ids[2], got.ID)
	assert.Len(t, eng.List(), 2)
}
