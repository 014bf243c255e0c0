package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradepulse/internal/market"
)

// Memory is an in-process Adapter over preloaded candles.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]market.Candle
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]market.Candle)}
}

func memoryKey(symbol, timeframe string) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + "@" + strings.ToLower(strings.TrimSpace(timeframe))
}

// Put replaces the series for symbol@timeframe.
func (m *Memory) Put(symbol, timeframe string, candles []market.Candle) {
	cp := append([]market.Candle(nil), candles...)
	m.mu.Lock()
	m.data[memoryKey(symbol, timeframe)] = cp
	m.mu.Unlock()
}

func (m *Memory) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	series := m.data[memoryKey(symbol, timeframe)]
	m.mu.RUnlock()
	from, to := start.UnixMilli(), end.UnixMilli()
	var out []market.Candle
	for _, c := range series {
		if c.OpenTime >= from && c.OpenTime <= to {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, unavailable("history.memory", symbol, fmt.Errorf("no %s candles in range", timeframe))
	}
	if err := ValidateSeries(out); err != nil {
		return nil, unavailable("history.memory", symbol, err)
	}
	return out, nil
}
