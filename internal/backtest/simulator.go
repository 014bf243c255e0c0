package backtest

import (
	"context"
	"fmt"

	"tradepulse/internal/indicator"
	"tradepulse/internal/market"
	"tradepulse/internal/performance"
	"tradepulse/internal/strategy"
	"tradepulse/internal/strategy/exit"
)

// Trade is one simulated round trip. Times are unix ms. ID is the run id
// plus a sequence number, so two runs of the same config produce the same
// trades except for their IDs.
type Trade struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        market.Side `json:"side"`
	EntryTime   int64       `json:"entry_time"`
	EntryPrice  float64     `json:"entry_price"`
	Quantity    float64     `json:"quantity"`
	ExitTime    int64       `json:"exit_time,omitempty"`
	ExitPrice   float64     `json:"exit_price,omitempty"`
	PnL         float64     `json:"pnl"`
	PnLPercent  float64     `json:"pnl_percent"`
	Commission  float64     `json:"commission"`
	Slippage    float64     `json:"slippage"`
	DurationMs  int64       `json:"duration_ms"`
	ExitReason  exit.Reason `json:"exit_reason,omitempty"`
	StopLoss    float64     `json:"stop_loss,omitempty"`
	TakeProfit  float64     `json:"take_profit,omitempty"`
	Confidence  float64     `json:"confidence"`
	EntryReason []string    `json:"entry_reasons,omitempty"`
}

func (t Trade) perf() performance.Trade {
	return performance.Trade{
		EntryTime:  t.EntryTime,
		ExitTime:   t.ExitTime,
		EntryPrice: t.EntryPrice,
		Quantity:   t.Quantity,
		PnL:        t.PnL,
		PnLPercent: t.PnLPercent,
	}
}

type position struct {
	trade    Trade
	levels   exit.Levels
	openedAt int
}

// simulation is the per-run state. It is never shared between runs.
type simulation struct {
	cfg      Config
	strategy strategy.Strategy
	rule     exit.Rule
	opts     indicator.Options
	runID    string

	capital   float64
	open      []*position
	closed    []Trade
	seq       int
	lastClose int64
	hasClosed bool
}

func newSimulation(runID string, cfg Config, s strategy.Strategy, rule exit.Rule, opts indicator.Options) *simulation {
	return &simulation{cfg: cfg, strategy: s, rule: rule, opts: opts, runID: runID, capital: cfg.InitialCapital}
}

func barTime(c market.Candle) int64 {
	if c.CloseTime > c.OpenTime {
		return c.CloseTime
	}
	return c.OpenTime
}

// run walks the candles bar by bar: exits first, then at most one entry per
// bar. Positions still open after the last bar close at its close.
func (sim *simulation) run(ctx context.Context, candles []market.Candle) ([]Trade, error) {
	warm := sim.cfg.WarmupBars
	last := len(candles) - 1
	cooldownMs := int64(sim.strategy.Risk.CooldownMinutes) * 60_000

	for i := warm; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cancelled at bar %d: %w", i, err)
		}
		bar := candles[i]
		snap := indicator.Compute(candles[i-warm:i+1], sim.opts)
		ev := strategy.Evaluate(sim.strategy, snap, sim.cfg.Threshold)

		if len(sim.open) > 0 {
			var exitHit bool
			if !ev.Triggered {
				exitHit, _ = strategy.EvaluateExit(sim.strategy, snap)
			}
			kept := sim.open[:0]
			for _, pos := range sim.open {
				if pos.openedAt == i {
					kept = append(kept, pos)
					continue
				}
				if reason, px, ok := pos.levels.Hit(pos.trade.Side, bar.High, bar.Low); ok {
					sim.closeAt(pos, gapFill(pos.trade.Side, reason, px, bar.Open), barTime(bar), reason)
					continue
				}
				if exitHit {
					sim.closeAt(pos, bar.Close, barTime(bar), exit.ReasonSignal)
					continue
				}
				kept = append(kept, pos)
			}
			sim.open = kept
		}

		if i == last || !ev.Triggered || !ev.Side.Tradable() {
			continue
		}
		if len(sim.open) >= sim.cfg.MaxPositions {
			continue
		}
		if sim.hasClosed && barTime(bar)-sim.lastClose < cooldownMs {
			continue
		}
		sim.enter(i, bar, ev, snap.ATR)
	}

	if end, ok := market.Last(candles); ok {
		for _, pos := range sim.open {
			sim.closeAt(pos, end.Close, barTime(end), exit.ReasonEndOfData)
		}
		sim.open = nil
	}
	return sim.closed, nil
}

// slipped moves price against the trader: up when buying, down when selling.
func (sim *simulation) slipped(price float64, side market.Side, entering bool) float64 {
	dir := side.Direction()
	if !entering {
		dir = -dir
	}
	return price * (1 + dir*sim.cfg.Slippage)
}

// gapFill moves a stop or target fill to the bar open when the bar opened
// already beyond the level.
func gapFill(side market.Side, reason exit.Reason, level, open float64) float64 {
	if open <= 0 {
		return level
	}
	// beyond is the direction price travelled to reach the level
	beyond := side.Direction()
	if reason == exit.ReasonStopLoss {
		beyond = -beyond
	}
	if (open-level)*beyond > 0 {
		return open
	}
	return level
}

// committed is the entry notional tied up in open positions.
func (sim *simulation) committed() float64 {
	var sum float64
	for _, pos := range sim.open {
		sum += pos.trade.EntryPrice * pos.trade.Quantity
	}
	return sum
}

// enter sizes the position from capital not already committed to open
// positions.
func (sim *simulation) enter(i int, bar market.Candle, ev strategy.Evaluation, atr float64) {
	free := sim.capital - sim.committed()
	if free <= 0 {
		return
	}
	entry := sim.slipped(bar.Close, ev.Side, true)
	if entry <= 0 {
		return
	}
	qty := free * sim.cfg.RiskPerTrade / entry
	levels := sim.rule.Levels(exit.Input{Side: ev.Side, Entry: entry, ATR: atr})
	sim.seq++
	sim.open = append(sim.open, &position{
		openedAt: i,
		levels:   levels,
		trade: Trade{
			ID:          fmt.Sprintf("%s-%04d", sim.runID, sim.seq),
			Symbol:      sim.cfg.Symbol,
			Side:        ev.Side,
			EntryTime:   barTime(bar),
			EntryPrice:  entry,
			Quantity:    qty,
			Commission:  qty * entry * sim.cfg.Commission,
			Slippage:    qty * bar.Close * sim.cfg.Slippage,
			StopLoss:    levels.StopLoss,
			TakeProfit:  levels.TakeProfit,
			Confidence:  ev.Confidence,
			EntryReason: append([]string(nil), ev.Reasons...),
		},
	})
}

// closeAt closes pos at the raw price moved against the trader by slippage.
func (sim *simulation) closeAt(pos *position, raw float64, at int64, reason exit.Reason) {
	sim.settle(pos, sim.slipped(raw, pos.trade.Side, false), at, reason, pos.trade.Quantity*raw*sim.cfg.Slippage)
}

// settle closes pos at price and books the pnl into capital.
func (sim *simulation) settle(pos *position, price float64, at int64, reason exit.Reason, slipCost float64) {
	t := settleTrade(pos.trade, price, at, reason, sim.cfg.Commission)
	t.Slippage += slipCost
	sim.capital += t.PnL
	sim.closed = append(sim.closed, t)
	sim.lastClose = at
	sim.hasClosed = true
}

// settleTrade computes the closing fields of t. Commission on both legs is
// deducted from pnl.
func settleTrade(t Trade, exitPrice float64, at int64, reason exit.Reason, commissionRate float64) Trade {
	exitCommission := t.Quantity * exitPrice * commissionRate
	t.Commission += exitCommission
	t.ExitPrice = exitPrice
	t.ExitTime = at
	t.ExitReason = reason
	t.DurationMs = at - t.EntryTime
	t.PnL = (exitPrice-t.EntryPrice)*t.Quantity*t.Side.Direction() - t.Commission
	if notional := t.EntryPrice * t.Quantity; notional > 0 {
		t.PnLPercent = t.PnL / notional
	}
	return t
}
