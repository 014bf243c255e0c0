package engine

import (
	"math"
	"sync"
)

// PriceValidation records a tick whose price strayed from the reference by
// more than the validation threshold.
type PriceValidation struct {
	Symbol         string  `json:"symbol"`
	ExpectedPrice  float64 `json:"expected_price"`
	ActualPrice    float64 `json:"actual_price"`
	CorrectedPrice float64 `json:"corrected_price"`
	Discrepancy    float64 `json:"discrepancy"`
	Timestamp      int64   `json:"timestamp"`
	Source         string  `json:"source"`
}

type DiscrepancyStats struct {
	TotalValidations int            `json:"total_validations"`
	AvgDiscrepancy   float64        `json:"avg_discrepancy"`
	MaxDiscrepancy   float64        `json:"max_discrepancy"`
	BySymbol         map[string]int `json:"by_symbol"`
}

func discrepancy(price, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	return math.Abs(price-ref) / ref
}

// correct blends price toward ref. The result always lies between the two.
func correct(price, ref, disc float64) float64 {
	switch {
	case disc > heavyCorrection:
		return 0.3*price + 0.7*ref
	case disc > validationThreshold:
		return 0.7*price + 0.3*ref
	default:
		return price
	}
}

// validationLog is a bounded append-only log.
type validationLog struct {
	mu      sync.RWMutex
	cap     int
	entries []PriceValidation
}

func (l *validationLog) add(v PriceValidation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, v)
	if over := len(l.entries) - l.cap; over > 0 {
		l.entries = append([]PriceValidation(nil), l.entries[over:]...)
	}
}

// recent returns up to limit entries, oldest first.
func (l *validationLog) recent(limit int) []PriceValidation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if limit > 0 && len(l.entries) > limit {
		start = len(l.entries) - limit
	}
	return append([]PriceValidation(nil), l.entries[start:]...)
}

func (l *validationLog) stats() DiscrepancyStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := DiscrepancyStats{BySymbol: map[string]int{}}
	if len(l.entries) == 0 {
		return out
	}
	var sum float64
	for _, v := range l.entries {
		sum += v.Discrepancy
		out.MaxDiscrepancy = math.Max(out.MaxDiscrepancy, v.Discrepancy)
		out.BySymbol[v.Symbol]++
	}
	out.TotalValidations = len(l.entries)
	out.AvgDiscrepancy = sum / float64(len(l.entries))
	return out
}
