package app

import (
	"fmt"
	"io"
	"strings"

	"tradepulse/internal/alert"
	"tradepulse/internal/config"
	"tradepulse/internal/logger"
	"tradepulse/internal/strategy"
)

type StartupSummary struct {
	Market     MarketSummary
	Engine     EngineSummary
	Strategies []StrategySummary
	Alerts     []string
}

type MarketSummary struct {
	Source    string
	Symbols   []string
	Timeframe string
	CacheDir  string
	Stream    bool
}

type EngineSummary struct {
	Threshold  float64
	WindowSize int
	MinHistory int
	AutoTrade  bool
	Store      string
	HTTPAddr   string
}

type StrategySummary struct {
	ID       string
	Type     strategy.Type
	Exit     string
	Disabled bool
}

func newStartupSummary(cfg *config.Config, symbols []string, source string, strategies []strategy.Strategy, rules []alert.Rule) *StartupSummary {
	s := &StartupSummary{
		Market: MarketSummary{
			Source:    source,
			Symbols:   symbols,
			Timeframe: cfg.Market.Timeframe,
			CacheDir:  cfg.Market.CacheDir,
			Stream:    !cfg.Market.DisableLiveStream,
		},
		Engine: EngineSummary{
			Threshold:  cfg.Engine.Threshold,
			WindowSize: cfg.Engine.WindowSize,
			MinHistory: cfg.Engine.MinHistory,
			AutoTrade:  cfg.Engine.AutoTrade,
			Store:      cfg.Store.Path,
			HTTPAddr:   cfg.App.HTTPAddr,
		},
	}
	for _, st := range strategies {
		s.Strategies = append(s.Strategies, StrategySummary{
			ID:       st.ID,
			Type:     st.Type,
			Exit:     st.ExitSpec().Kind,
			Disabled: st.Disabled,
		})
	}
	for _, r := range rules {
		s.Alerts = append(s.Alerts, r.Name)
	}
	return s
}

// Print writes the summary through the logger so it also lands in the log
// file.
func (s *StartupSummary) Print() {
	var b strings.Builder
	s.Fprint(&b)
	logger.InfoBlock(strings.TrimRight(b.String(), "\n"))
}

func (s *StartupSummary) Fprint(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[MARKET]")
	fmt.Fprintf(w, "  source:    %s\n", s.Market.Source)
	fmt.Fprintf(w, "  symbols:   %s\n", formatList(s.Market.Symbols))
	fmt.Fprintf(w, "  timeframe: %s\n", s.Market.Timeframe)
	fmt.Fprintf(w, "  cache:     %s\n", orDash(s.Market.CacheDir))
	fmt.Fprintf(w, "  stream:    %t\n", s.Market.Stream)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[ENGINE]")
	fmt.Fprintf(w, "  threshold=%.2f window=%d min_history=%d auto_trade=%t\n",
		s.Engine.Threshold, s.Engine.WindowSize, s.Engine.MinHistory, s.Engine.AutoTrade)
	fmt.Fprintf(w, "  store:     %s\n", orDash(s.Engine.Store))
	fmt.Fprintf(w, "  http:      %s\n", s.Engine.HTTPAddr)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[STRATEGIES]")
	if len(s.Strategies) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, st := range s.Strategies {
		state := ""
		if st.Disabled {
			state = " (disabled)"
		}
		fmt.Fprintf(w, "  - %s [%s] exit=%s%s\n", st.ID, st.Type, orDash(st.Exit), state)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[ALERTS]")
	fmt.Fprintf(w, "  %s\n", formatList(s.Alerts))
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
