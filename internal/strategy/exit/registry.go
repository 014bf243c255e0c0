package exit

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	KindFixedPercent = "fixed_pct"
	KindATRMultiple  = "atr"
	KindRiskReward   = "risk_reward"
)

// Spec selects a rule and its parameters, as written in config or a
// strategy definition.
type Spec struct {
	Kind   string             `json:"kind" yaml:"kind" mapstructure:"kind"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params" mapstructure:"params"`
}

func (s Spec) IsZero() bool {
	return strings.TrimSpace(s.Kind) == ""
}

func (s Spec) param(key string) float64 {
	if s.Params == nil {
		return 0
	}
	return s.Params[key]
}

// DefaultSpec is the 5% stop / 10% target band.
func DefaultSpec() Spec {
	return Spec{Kind: KindFixedPercent, Params: map[string]float64{"stop_pct": 0.05, "take_pct": 0.10}}
}

// RiskRewardSpec builds a risk_reward spec from ATR multiple and ratio.
func RiskRewardSpec(stopATR, rr float64) Spec {
	return Spec{Kind: KindRiskReward, Params: map[string]float64{"stop_atr": stopATR, "rr": rr}}
}

// Factory turns a spec into a rule, validating its params.
type Factory func(Spec) (Rule, error)

var (
	registryMu sync.RWMutex
	factories  = map[string]Factory{
		KindFixedPercent: buildFixedPercent,
		KindATRMultiple:  buildATRMultiple,
		KindRiskReward:   buildRiskReward,
	}
)

// Register adds or replaces a factory for kind.
func Register(kind string, f Factory) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" || f == nil {
		return
	}
	registryMu.Lock()
	factories[kind] = f
	registryMu.Unlock()
}

// Kinds lists registered rule kinds.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build resolves a spec. A zero spec yields DefaultSpec's rule.
func Build(spec Spec) (Rule, error) {
	if spec.IsZero() {
		spec = DefaultSpec()
	}
	kind := strings.ToLower(strings.TrimSpace(spec.Kind))
	registryMu.RLock()
	f, ok := factories[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown exit rule kind %q", spec.Kind)
	}
	return f(spec)
}

func buildFixedPercent(spec Spec) (Rule, error) {
	stop, take := spec.param("stop_pct"), spec.param("take_pct")
	if stop < 0 || stop >= 1 || take < 0 {
		return nil, fmt.Errorf("fixed_pct requires 0 <= stop_pct < 1 and take_pct >= 0")
	}
	if stop == 0 && take == 0 {
		return nil, fmt.Errorf("fixed_pct needs stop_pct or take_pct")
	}
	return FixedPercent{StopPct: stop, TakePct: take}, nil
}

func buildATRMultiple(spec Spec) (Rule, error) {
	stop, take := spec.param("stop_atr"), spec.param("take_atr")
	if stop < 0 || take < 0 || (stop == 0 && take == 0) {
		return nil, fmt.Errorf("atr requires stop_atr or take_atr > 0")
	}
	return ATRMultiple{StopATR: stop, TakeATR: take}, nil
}

func buildRiskReward(spec Spec) (Rule, error) {
	stop, rr := spec.param("stop_atr"), spec.param("rr")
	if stop <= 0 {
		return nil, fmt.Errorf("risk_reward requires stop_atr > 0")
	}
	if rr < 0 {
		return nil, fmt.Errorf("risk_reward requires rr >= 0")
	}
	return RiskReward{StopATR: stop, RR: rr}, nil
}
