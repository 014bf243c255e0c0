package exit

import (
	"math"

	"tradepulse/internal/market"

	"github.com/shopspring/decimal"
)

var (
	decOne      = decimal.NewFromInt(1)
	decimalZero = decimal.Zero
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func decimalLTE(a, b float64) bool { return decimalCompare(a, b) <= 0 }
func decimalGTE(a, b float64) bool { return decimalCompare(a, b) >= 0 }

// relativeTarget moves entry by pct in the favourable direction for side.
func relativeTarget(entry, pct float64, side market.Side) float64 {
	if entry <= 0 || !side.Tradable() {
		return 0
	}
	factor := decOne.Add(decFromFloat(pct))
	if side == market.SideShort {
		factor = decOne.Sub(decFromFloat(pct))
	}
	return decToFloat(decFromFloat(entry).Mul(factor))
}

// relativeStop moves entry by pct against side.
func relativeStop(entry, pct float64, side market.Side) float64 {
	if entry <= 0 || !side.Tradable() {
		return 0
	}
	factor := decOne.Sub(decFromFloat(pct))
	if side == market.SideShort {
		factor = decOne.Add(decFromFloat(pct))
	}
	return decToFloat(decFromFloat(entry).Mul(factor))
}

// offsetPrice returns entry + dir*distance, where dir follows side.
func offsetPrice(entry, distance float64, side market.Side) float64 {
	base := decFromFloat(entry)
	dist := decFromFloat(distance)
	if side == market.SideShort {
		return decToFloat(base.Sub(dist))
	}
	return decToFloat(base.Add(dist))
}

func hitStopLoss(side market.Side, adverse, stop float64) bool {
	if stop <= 0 || adverse <= 0 {
		return false
	}
	if side == market.SideShort {
		return decimalGTE(adverse, stop)
	}
	return decimalLTE(adverse, stop)
}

func hitTakeProfit(side market.Side, favourable, target float64) bool {
	if target <= 0 || favourable <= 0 {
		return false
	}
	if side == market.SideShort {
		return decimalLTE(favourable, target)
	}
	return decimalGTE(favourable, target)
}
