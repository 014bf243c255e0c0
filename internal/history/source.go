// Package history supplies historical OHLCV candles to the backtester and
// warms up the live engine. Candles come from a remote Source, optionally
// through a local SQLite cache.
package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"tradepulse/internal/apperr"
	"tradepulse/internal/market"
)

// Adapter is what consumers depend on.
type Adapter interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Candle, error)
}

// FetchRequest is one remote kline request. Start/End are unix ms; End 0
// means open-ended.
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64
	End      int64
	Limit    int
}

// Source fetches raw candles from an exchange or generator.
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error)
	Name() string
}

// ValidateSeries checks that open times strictly increase and prices are sane.
func ValidateSeries(candles []market.Candle) error {
	for i, c := range candles {
		if c.Close <= 0 || c.High < c.Low || math.IsNaN(c.Close) {
			return fmt.Errorf("candle %d at %d has invalid prices", i, c.OpenTime)
		}
		if i > 0 && c.OpenTime <= candles[i-1].OpenTime {
			return fmt.Errorf("candle %d open time %d does not follow %d", i, c.OpenTime, candles[i-1].OpenTime)
		}
	}
	return nil
}

// SimulationSource generates deterministic random-walk candles. It only
// serves when market mode is explicitly "simulation".
type SimulationSource struct {
	Seed        int64
	StartPrices map[string]float64
	Volatility  float64
}

func (s *SimulationSource) Name() string { return "simulation" }

func (s *SimulationSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tf, err := ParseTimeframe(req.Interval)
	if err != nil {
		return nil, err
	}
	end := req.End
	if end <= 0 {
		end = time.Now().UnixMilli()
	}
	start, end := tf.AlignRange(req.Start, end)
	n := int(tf.ExpectedCandles(start, end))
	if req.Limit > 0 && n > req.Limit {
		n = req.Limit
	}
	price := s.StartPrices[req.Symbol]
	params := market.WalkParams{
		Seed:       market.SeedFor(req.Symbol, s.Seed) ^ start,
		StartPrice: price,
		Volatility: s.Volatility,
	}
	return market.RandomWalk(params, time.UnixMilli(start), tf.Duration, n), nil
}

func unavailable(op, symbol string, cause error) error {
	return apperr.New(apperr.ErrDataUnavailable, op, cause).WithSymbol(symbol)
}
