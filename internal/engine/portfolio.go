package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"tradepulse/internal/apperr"
	"tradepulse/internal/market"
	"tradepulse/internal/performance"
	"tradepulse/internal/strategy"
	"tradepulse/internal/strategy/exit"

	"github.com/google/uuid"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is a paper position. Prices are quote currency; times unix ms.
type Position struct {
	ID            string         `json:"id"`
	SignalID      string         `json:"signal_id"`
	StrategyID    string         `json:"strategy_id"`
	Symbol        string         `json:"symbol"`
	Side          market.Side    `json:"side"`
	Status        PositionStatus `json:"status"`
	Quantity      float64        `json:"quantity"`
	EntryPrice    float64        `json:"entry_price"`
	EntryTime     int64          `json:"entry_time"`
	CurrentPrice  float64        `json:"current_price"`
	StopLoss      float64        `json:"stop_loss,omitempty"`
	TakeProfit    float64        `json:"take_profit,omitempty"`
	UnrealizedPnL float64        `json:"unrealized_pnl"`
	RealizedPnL   float64        `json:"realized_pnl"`
	ExitPrice     float64        `json:"exit_price,omitempty"`
	ExitTime      int64          `json:"exit_time,omitempty"`
	ExitReason    exit.Reason    `json:"exit_reason,omitempty"`
}

func (p *Position) pnlAt(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * p.Side.Direction()
}

func (p *Position) levels() exit.Levels {
	return exit.Levels{StopLoss: p.StopLoss, TakeProfit: p.TakeProfit}
}

type PortfolioStats struct {
	TotalValue      float64 `json:"total_value"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalPnLPct     float64 `json:"total_pnl_pct"`
	DayPnL          float64 `json:"day_pnl"`
	DayPnLPct       float64 `json:"day_pnl_pct"`
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	WinRate         float64 `json:"win_rate"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	Sharpe          float64 `json:"sharpe"`
	MaxDrawdown     float64 `json:"max_drawdown"`
}

// Portfolio is the in-memory paper book.
type Portfolio struct {
	mu      sync.RWMutex
	capital float64
	open    map[string]*Position
	closed  []Position
	perf    performance.Options
}

func NewPortfolio(capital float64, perf performance.Options) *Portfolio {
	return &Portfolio{capital: capital, open: make(map[string]*Position), perf: perf}
}

// Open books a position from sig. Only one position per symbol+strategy may
// be open at a time.
func (p *Portfolio) Open(sig strategy.Signal, qty float64) (Position, error) {
	const op = "portfolio.open"
	if !sig.Side.Tradable() {
		return Position{}, apperr.Invalid(op, "signal side %s is not tradable", sig.Side).WithSymbol(sig.Symbol).WithStrategy(sig.StrategyID)
	}
	if !(qty > 0) || !(sig.Price > 0) {
		return Position{}, apperr.Invalid(op, "quantity and price must be > 0").WithSymbol(sig.Symbol).WithStrategy(sig.StrategyID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pos := range p.open {
		if pos.Symbol == sig.Symbol && pos.StrategyID == sig.StrategyID {
			return Position{}, apperr.Invalid(op, "position %s already open", pos.ID).WithSymbol(sig.Symbol).WithStrategy(sig.StrategyID)
		}
	}
	pos := &Position{
		ID:           uuid.NewString(),
		SignalID:     sig.ID,
		StrategyID:   sig.StrategyID,
		Symbol:       sig.Symbol,
		Side:         sig.Side,
		Status:       PositionOpen,
		Quantity:     qty,
		EntryPrice:   sig.Price,
		EntryTime:    sig.Timestamp,
		CurrentPrice: sig.Price,
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TakeProfit,
	}
	p.open[pos.ID] = pos
	return *pos, nil
}

// Close settles an open position at price. A non-positive price settles at
// the last marked price.
func (p *Portfolio) Close(id string, price float64, at int64, reason exit.Reason) (Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.open[id]
	if !ok {
		return Position{}, apperr.New(apperr.ErrNotFound, "portfolio.close", fmt.Errorf("position %q", id))
	}
	if !(price > 0) {
		price = pos.CurrentPrice
	}
	return p.settle(pos, price, at, reason), nil
}

func (p *Portfolio) settle(pos *Position, price float64, at int64, reason exit.Reason) Position {
	pos.CurrentPrice = price
	pos.ExitPrice = price
	pos.ExitTime = at
	pos.ExitReason = reason
	pos.RealizedPnL = pos.pnlAt(price)
	pos.UnrealizedPnL = 0
	pos.Status = PositionClosed
	delete(p.open, pos.ID)
	p.closed = append(p.closed, *pos)
	return *pos
}

// Mark revalues open positions on symbol and closes those whose stop or
// target was crossed. The closed positions are returned.
func (p *Portfolio) Mark(symbol string, price float64, at int64) []Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	var closed []Position
	for _, id := range p.sortedOpenIDs() {
		pos := p.open[id]
		if pos.Symbol != symbol {
			continue
		}
		pos.CurrentPrice = price
		pos.UnrealizedPnL = pos.pnlAt(price)
		if reason, _, hit := pos.levels().Hit(pos.Side, price, price); hit {
			closed = append(closed, p.settle(pos, price, at, reason))
		}
	}
	return closed
}

func (p *Portfolio) sortedOpenIDs() []string {
	ids := make([]string, 0, len(p.open))
	for id := range p.open {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := p.open[ids[i]], p.open[ids[j]]
		if a.EntryTime != b.EntryTime {
			return a.EntryTime < b.EntryTime
		}
		return a.ID < b.ID
	})
	return ids
}

// Positions returns open positions, oldest first.
func (p *Portfolio) Positions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Position, 0, len(p.open))
	for _, id := range p.sortedOpenIDs() {
		out = append(out, *p.open[id])
	}
	return out
}

func (p *Portfolio) Closed() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Position(nil), p.closed...)
}

// Stats summarises the book as of now. Sharpe and drawdown come from the
// closed positions only.
func (p *Portfolio) Stats(now time.Time) PortfolioStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var realized, unrealized, today float64
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).UnixMilli()
	for _, pos := range p.open {
		unrealized += pos.UnrealizedPnL
	}
	trades := make([]performance.Trade, 0, len(p.closed))
	start := now
	var wins, losses int
	var winSum, lossSum float64
	for _, pos := range p.closed {
		realized += pos.RealizedPnL
		if pos.ExitTime >= dayStart {
			today += pos.RealizedPnL
		}
		switch {
		case pos.RealizedPnL > 0:
			wins++
			winSum += pos.RealizedPnL
		case pos.RealizedPnL < 0:
			losses++
			lossSum += pos.RealizedPnL
		}
		if t := time.UnixMilli(pos.EntryTime); t.Before(start) {
			start = t
		}
		notional := pos.EntryPrice * pos.Quantity
		var pct float64
		if notional > 0 {
			pct = pos.RealizedPnL / notional
		}
		trades = append(trades, performance.Trade{
			EntryTime:  pos.EntryTime,
			ExitTime:   pos.ExitTime,
			EntryPrice: pos.EntryPrice,
			Quantity:   pos.Quantity,
			PnL:        pos.RealizedPnL,
			PnLPercent: pct,
		})
	}
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].ExitTime < trades[j].ExitTime })

	total := realized + unrealized
	out := PortfolioStats{
		TotalValue:      p.capital + total,
		TotalPnL:        total,
		DayPnL:          today + unrealized,
		OpenPositions:   len(p.open),
		ClosedPositions: len(p.closed),
	}
	if p.capital > 0 {
		out.TotalPnLPct = total / p.capital
		out.DayPnLPct = out.DayPnL / p.capital
	}
	if len(p.closed) > 0 {
		out.WinRate = float64(wins) / float64(len(p.closed))
	}
	if wins > 0 {
		out.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		out.AvgLoss = lossSum / float64(losses)
	}
	if len(trades) > 0 {
		rep := performance.Calculate(trades, p.capital, start, now, p.perf)
		out.Sharpe = rep.Metrics.Sharpe
		out.MaxDrawdown = rep.Metrics.MaxDrawdown
	}
	return out
}
