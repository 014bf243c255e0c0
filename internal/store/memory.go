package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"tradepulse/internal/backtest"
	"tradepulse/internal/strategy"
)

// Memory is a Store kept in process, used when no database path is set.
type Memory struct {
	mu      sync.RWMutex
	max     int
	signals []strategy.Signal
	results []backtest.Summary
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 5000
	}
	return &Memory{max: limit}
}

func (m *Memory) StoreSignal(_ context.Context, sig strategy.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	if over := len(m.signals) - m.max; over > 0 {
		m.signals = append([]strategy.Signal(nil), m.signals[over:]...)
	}
	return nil
}

func (m *Memory) StoreBacktestResult(_ context.Context, res *backtest.Result) error {
	if res == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res.Summary())
	if over := len(m.results) - m.max; over > 0 {
		m.results = append([]backtest.Summary(nil), m.results[over:]...)
	}
	return nil
}

func (m *Memory) ListSignals(_ context.Context, q SignalQuery) ([]strategy.Signal, error) {
	sym := strings.ToUpper(strings.TrimSpace(q.Symbol))
	m.mu.RLock()
	var out []strategy.Signal
	for i := len(m.signals) - 1; i >= 0; i-- {
		s := m.signals[i]
		if sym != "" && s.Symbol != sym {
			continue
		}
		if q.StrategyID != "" && s.StrategyID != q.StrategyID {
			continue
		}
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > q.Size() {
		out = out[:q.Size()]
	}
	return out, nil
}

func (m *Memory) ListBacktestResults(_ context.Context, limit int) ([]backtest.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]backtest.Summary, 0, limit)
	for i := len(m.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.results[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
