// Package store persists signals and backtest results. Writers go through a
// Recorder so that storage trouble never reaches the signal or backtest path.
package store

import (
	"context"

	"tradepulse/internal/backtest"
	"tradepulse/internal/strategy"
)

// SignalQuery filters stored signals. Zero fields match everything; Limit
// defaults to 50.
type SignalQuery struct {
	Symbol     string
	StrategyID string
	Limit      int
}

func (q SignalQuery) Size() int {
	if q.Limit <= 0 {
		return 50
	}
	if q.Limit > 1000 {
		return 1000
	}
	return q.Limit
}

// Store is the persistence collaborator.
type Store interface {
	StoreSignal(ctx context.Context, sig strategy.Signal) error
	StoreBacktestResult(ctx context.Context, res *backtest.Result) error
	// ListSignals returns the newest signals first.
	ListSignals(ctx context.Context, q SignalQuery) ([]strategy.Signal, error)
	// ListBacktestResults returns the newest run summaries first.
	ListBacktestResults(ctx context.Context, limit int) ([]backtest.Summary, error)
	Close() error
}
