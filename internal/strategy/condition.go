package strategy

import (
	"fmt"
	"math"
	"strings"

	"tradepulse/internal/indicator"
)

const equalsTolerance = 1e-9

var (
	comparisonOps = []Operator{OpGreaterThan, OpLessThan, OpEquals, OpRising, OpFalling, OpCrossover, OpCrossesUnder}
	directionOps  = []Operator{OpGreaterThan, OpLessThan, OpEquals, OpRising, OpFalling}

	// supportedOps is the explicit indicator x operator table. Anything not
	// listed here is rejected when a strategy is added and reported as
	// unsupported during evaluation.
	supportedOps = buildSupportTable()
)

func buildSupportTable() map[string]map[Operator]bool {
	table := make(map[string]map[Operator]bool, len(indicator.Names))
	for _, name := range indicator.Names {
		ops := comparisonOps
		if name == "supertrend.direction" {
			ops = directionOps
		}
		set := make(map[Operator]bool, len(ops))
		for _, op := range ops {
			set[op] = true
		}
		table[name] = set
	}
	return table
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Supported reports whether the condition's indicator, operator and reference
// form a combination the evaluator understands.
func Supported(c Condition) error {
	ops, ok := supportedOps[normalizeName(c.Indicator)]
	if !ok {
		return fmt.Errorf("unknown indicator %q", c.Indicator)
	}
	if !ops[c.Operator] {
		return fmt.Errorf("operator %q not supported for %s", c.Operator, c.Indicator)
	}
	if c.Ref != "" {
		if _, ok := supportedOps[normalizeName(c.Ref)]; !ok {
			return fmt.Errorf("unknown reference indicator %q", c.Ref)
		}
	}
	return nil
}

// outcome is a single condition result.
type outcome struct {
	met         bool
	unsupported bool
	detail      string
}

// comparand resolves the right-hand side of c against snap.
func comparand(c Condition, snap indicator.Snapshot) (float64, bool) {
	if c.Ref != "" {
		return snap.Lookup(c.Ref)
	}
	if normalizeName(c.Indicator) == "volume" {
		if snap.AvgVolume <= 0 {
			return 0, false
		}
		return c.Value * snap.AvgVolume, true
	}
	return c.Value, true
}

func evalCondition(c Condition, snap indicator.Snapshot) outcome {
	if err := Supported(c); err != nil {
		return outcome{unsupported: true, detail: err.Error()}
	}
	v, _ := snap.Lookup(c.Indicator)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return outcome{detail: c.Indicator + " unavailable"}
	}

	switch c.Operator {
	case OpRising, OpFalling:
		if snap.Prev == nil {
			return outcome{detail: c.Indicator + " has no previous value"}
		}
		pv, _ := snap.Prev.Lookup(c.Indicator)
		met := v > pv
		if c.Operator == OpFalling {
			met = v < pv
		}
		return outcome{met: met, detail: fmt.Sprintf("%s (%.4f -> %.4f)", c, pv, v)}
	}

	cmp, ok := comparand(c, snap)
	if !ok {
		return outcome{detail: c.String() + " comparand unavailable"}
	}

	switch c.Operator {
	case OpGreaterThan:
		return outcome{met: v > cmp, detail: fmt.Sprintf("%s (%.4f vs %.4f)", c, v, cmp)}
	case OpLessThan:
		return outcome{met: v < cmp, detail: fmt.Sprintf("%s (%.4f vs %.4f)", c, v, cmp)}
	case OpEquals:
		tol := equalsTolerance * math.Max(1, math.Abs(cmp))
		return outcome{met: math.Abs(v-cmp) <= tol, detail: fmt.Sprintf("%s (%.4f)", c, v)}
	case OpCrossover, OpCrossesUnder:
		if snap.Prev == nil {
			return outcome{detail: c.Indicator + " has no previous value"}
		}
		pv, _ := snap.Prev.Lookup(c.Indicator)
		pc, ok := comparand(c, *snap.Prev)
		if !ok {
			return outcome{detail: c.String() + " previous comparand unavailable"}
		}
		met := pv <= pc && v > cmp
		if c.Operator == OpCrossesUnder {
			met = pv >= pc && v < cmp
		}
		return outcome{met: met, detail: fmt.Sprintf("%s (%.4f/%.4f -> %.4f/%.4f)", c, pv, pc, v, cmp)}
	}
	return outcome{unsupported: true, detail: fmt.Sprintf("operator %q", c.Operator)}
}
