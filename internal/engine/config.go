package engine

import (
	"strings"

	"tradepulse/internal/indicator"
	"tradepulse/internal/strategy"
)

const (
	defaultWindowSize    = 100
	defaultMinHistory    = 21
	defaultHistoryCap    = 1000
	defaultHistoryTrim   = 500
	defaultValidationCap = 1000
	defaultPaperCapital  = 10_000
	defaultTimeframe     = "1m"

	// Discrepancy above which a tick is logged and blended toward the
	// reference, and above which the heavier blend applies.
	validationThreshold = 0.05
	heavyCorrection     = 0.10
)

type Config struct {
	Threshold       float64
	WindowSize      int
	MinHistory      int
	HistoryCap      int
	HistoryTrim     int
	ValidationCap   int
	AutoTrade       bool
	PaperCapital    float64
	Timeframe       string
	ReferencePrices map[string]float64
	Indicators      indicator.Options
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = strategy.DefaultThreshold
	}
	if c.WindowSize <= 0 {
		c.WindowSize = defaultWindowSize
	}
	if c.MinHistory <= 0 {
		c.MinHistory = defaultMinHistory
	}
	if c.MinHistory > c.WindowSize {
		c.MinHistory = c.WindowSize
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = defaultHistoryCap
	}
	if c.HistoryTrim <= 0 || c.HistoryTrim > c.HistoryCap {
		c.HistoryTrim = defaultHistoryTrim
		if c.HistoryTrim > c.HistoryCap {
			c.HistoryTrim = c.HistoryCap
		}
	}
	if c.ValidationCap <= 0 {
		c.ValidationCap = defaultValidationCap
	}
	if c.PaperCapital <= 0 {
		c.PaperCapital = defaultPaperCapital
	}
	if strings.TrimSpace(c.Timeframe) == "" {
		c.Timeframe = defaultTimeframe
	}
	return c
}
