// Package exit turns a position's side, entry and volatility into stop-loss
// and take-profit levels. Rules are picked per strategy through a Spec.
package exit

import (
	"fmt"
	"math"

	"tradepulse/internal/market"
)

// Reason tags why a position was closed.
type Reason string

const (
	ReasonStopLoss   Reason = "stop_loss"
	ReasonTakeProfit Reason = "take_profit"
	ReasonSignal     Reason = "exit_signal"
	ReasonEndOfData  Reason = "end_of_data"
	ReasonManual     Reason = "manual"
)

// Input is what a rule needs to place levels.
type Input struct {
	Side  market.Side
	Entry float64
	ATR   float64
}

// Levels holds absolute prices. A zero level is disabled.
type Levels struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// Hit checks a bar range against the levels. The stop is checked first so a
// bar that spans both resolves to the adverse outcome.
func (l Levels) Hit(side market.Side, high, low float64) (Reason, float64, bool) {
	if !side.Tradable() {
		return "", 0, false
	}
	adverse, favourable := low, high
	if side == market.SideShort {
		adverse, favourable = high, low
	}
	if hitStopLoss(side, adverse, l.StopLoss) {
		return ReasonStopLoss, l.StopLoss, true
	}
	if hitTakeProfit(side, favourable, l.TakeProfit) {
		return ReasonTakeProfit, l.TakeProfit, true
	}
	return "", 0, false
}

// Rule computes levels for a new position.
type Rule interface {
	Kind() string
	Levels(in Input) Levels
}

// FixedPercent places levels a fixed fraction away from entry.
type FixedPercent struct {
	StopPct float64
	TakePct float64
}

func (FixedPercent) Kind() string { return KindFixedPercent }

func (r FixedPercent) Levels(in Input) Levels {
	var out Levels
	if r.StopPct > 0 {
		out.StopLoss = relativeStop(in.Entry, r.StopPct, in.Side)
	}
	if r.TakePct > 0 {
		out.TakeProfit = relativeTarget(in.Entry, r.TakePct, in.Side)
	}
	return out
}

// ATRMultiple places levels at multiples of ATR. ATR <= 0 disables both.
type ATRMultiple struct {
	StopATR float64
	TakeATR float64
}

func (ATRMultiple) Kind() string { return KindATRMultiple }

func (r ATRMultiple) Levels(in Input) Levels {
	if in.ATR <= 0 || in.Entry <= 0 || !in.Side.Tradable() {
		return Levels{}
	}
	var out Levels
	if r.StopATR > 0 {
		out.StopLoss = positive(offsetPrice(in.Entry, -in.ATR*r.StopATR, in.Side))
	}
	if r.TakeATR > 0 {
		out.TakeProfit = positive(offsetPrice(in.Entry, in.ATR*r.TakeATR, in.Side))
	}
	return out
}

// RiskReward puts the stop StopATR*ATR away and the target RR times that
// distance on the other side.
type RiskReward struct {
	StopATR float64
	RR      float64
}

func (RiskReward) Kind() string { return KindRiskReward }

func (r RiskReward) Levels(in Input) Levels {
	if in.ATR <= 0 || in.Entry <= 0 || r.StopATR <= 0 || !in.Side.Tradable() {
		return Levels{}
	}
	stop := offsetPrice(in.Entry, -in.ATR*r.StopATR, in.Side)
	out := Levels{StopLoss: positive(stop)}
	if r.RR > 0 {
		risk := math.Abs(in.Entry - stop)
		out.TakeProfit = positive(offsetPrice(in.Entry, risk*r.RR, in.Side))
	}
	return out
}

func positive(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (l Levels) String() string {
	return fmt.Sprintf("sl=%.4f tp=%.4f", l.StopLoss, l.TakeProfit)
}
