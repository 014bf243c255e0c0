package strategy

import (
	"tradepulse/internal/indicator"
	"tradepulse/internal/market"
)

// Evaluation is the scored outcome of one strategy against one snapshot.
type Evaluation struct {
	StrategyID  string      `json:"strategy_id"`
	Confidence  float64     `json:"confidence"`
	Side        market.Side `json:"side"`
	Triggered   bool        `json:"triggered"`
	Reasons     []string    `json:"reasons"`
	Unsupported []string    `json:"unsupported,omitempty"`
}

// Evaluate scores the strategy's entry conditions. Confidence is the met
// weight over the total weight, 0 when there is nothing to weigh.
// threshold <= 0 uses DefaultThreshold.
func Evaluate(s Strategy, snap indicator.Snapshot, threshold float64) Evaluation {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	ev := Evaluation{StrategyID: s.ID, Side: market.SideFlat, Reasons: []string{}}
	var met, total float64
	for _, c := range s.Conditions {
		if c.Weight <= 0 {
			continue
		}
		total += c.Weight
		out := evalCondition(c, snap)
		if out.unsupported {
			ev.Unsupported = append(ev.Unsupported, out.detail)
			continue
		}
		if out.met {
			met += c.Weight
			ev.Reasons = append(ev.Reasons, out.detail)
		}
	}
	if total > 0 {
		ev.Confidence = clamp01(met / total)
	}
	ev.Triggered = total > 0 && ev.Confidence >= threshold
	if ev.Triggered {
		ev.Side = SideFor(s.Type, snap)
	}
	return ev
}

// EvaluateExit reports whether any exit condition holds, with the reasons
// of those that do.
func EvaluateExit(s Strategy, snap indicator.Snapshot) (bool, []string) {
	var reasons []string
	for _, c := range s.ExitConditions {
		if out := evalCondition(c, snap); out.met {
			reasons = append(reasons, out.detail)
		}
	}
	return len(reasons) > 0, reasons
}

// SideFor picks a direction: mean reversion always buys, everything else
// follows the fast/slow EMA ordering.
func SideFor(t Type, snap indicator.Snapshot) market.Side {
	if t == TypeMeanReversion {
		return market.SideLong
	}
	if snap.EMA9 > snap.EMA21 {
		return market.SideLong
	}
	return market.SideShort
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
