// Package performance turns closed trades into return, risk and drawdown
// statistics. Every function is pure and returns finite numbers.
package performance

import (
	"math"
	"sort"
	"time"
)

// SortinoNoDownside is reported when there are positive excess returns but
// not a single losing return to measure downside deviation against.
const SortinoNoDownside = 100.0

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// Trade is the subset of a closed position the calculator needs. Times are
// unix milliseconds; a zero ExitTime marks the trade as still open.
type Trade struct {
	EntryTime  int64   `json:"entry_time"`
	ExitTime   int64   `json:"exit_time"`
	EntryPrice float64 `json:"entry_price"`
	Quantity   float64 `json:"quantity"`
	PnL        float64 `json:"pnl"`
	PnLPercent float64 `json:"pnl_percent"`
}

func (t Trade) closed() bool { return t.ExitTime > 0 }

// Options tunes the ratios. PeriodsPerYear 0 means 252.
type Options struct {
	RiskFreeRate   float64
	PeriodsPerYear float64
}

// DefaultOptions uses a 2% risk-free rate over 252 periods.
func DefaultOptions() Options {
	return Options{RiskFreeRate: 0.02, PeriodsPerYear: 252}
}

func (o Options) periods() float64 {
	if o.PeriodsPerYear <= 0 {
		return 252
	}
	return o.PeriodsPerYear
}

type Metrics struct {
	TotalReturn           float64 `json:"total_return"`
	AnnualizedReturn      float64 `json:"annualized_return"`
	TotalPnL              float64 `json:"total_pnl"`
	TotalTrades           int     `json:"total_trades"`
	WinningTrades         int     `json:"winning_trades"`
	LosingTrades          int     `json:"losing_trades"`
	BreakEvenTrades       int     `json:"break_even_trades"`
	WinRate               float64 `json:"win_rate"`
	AvgWin                float64 `json:"avg_win"`
	AvgLoss               float64 `json:"avg_loss"`
	LargestWin            float64 `json:"largest_win"`
	LargestLoss           float64 `json:"largest_loss"`
	GrossProfit           float64 `json:"gross_profit"`
	GrossLoss             float64 `json:"gross_loss"`
	ProfitFactor          float64 `json:"profit_factor"`
	Expectancy            float64 `json:"expectancy"`
	Sharpe                float64 `json:"sharpe"`
	Sortino               float64 `json:"sortino"`
	Calmar                float64 `json:"calmar"`
	MaxDrawdown           float64 `json:"max_drawdown"`
	MaxDrawdownDurationMs int64   `json:"max_drawdown_duration_ms"`
	RecoveryFactor        float64 `json:"recovery_factor"`
	PayoffRatio           float64 `json:"payoff_ratio"`
	ExposureTime          float64 `json:"exposure_time"`
}

type EquityPoint struct {
	Timestamp        int64   `json:"timestamp"`
	Equity           float64 `json:"equity"`
	Drawdown         float64 `json:"drawdown"`
	CumulativeReturn float64 `json:"cumulative_return"`
}

type DrawdownPoint struct {
	Timestamp  int64   `json:"timestamp"`
	Drawdown   float64 `json:"drawdown"`
	DurationMs int64   `json:"duration_ms"`
	Active     bool    `json:"active"`
}

type MonthlyReturn struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Return float64 `json:"return"`
	Trades int     `json:"trades"`
}

type RiskMetrics struct {
	VaR95             float64 `json:"var95"`
	VaR99             float64 `json:"var99"`
	CVaR95            float64 `json:"cvar95"`
	DownsideDeviation float64 `json:"downside_deviation"`
	UpsideDeviation   float64 `json:"upside_deviation"`
}

type TradeAnalysis struct {
	AvgDurationMs     int64         `json:"avg_duration_ms"`
	MedianDurationMs  int64         `json:"median_duration_ms"`
	LongestMs         int64         `json:"longest_ms"`
	ShortestMs        int64         `json:"shortest_ms"`
	ConsecutiveWins   int           `json:"consecutive_wins"`
	ConsecutiveLosses int           `json:"consecutive_losses"`
	TradesPerMonth    float64       `json:"trades_per_month"`
	BestMonth         MonthlyReturn `json:"best_month"`
	WorstMonth        MonthlyReturn `json:"worst_month"`
}

// Report bundles everything Calculate derives from one trade list.
type Report struct {
	Metrics  Metrics         `json:"metrics"`
	Equity   []EquityPoint   `json:"equity"`
	Drawdown []DrawdownPoint `json:"drawdown"`
	Monthly  []MonthlyReturn `json:"monthly"`
	Risk     RiskMetrics     `json:"risk"`
	Analysis TradeAnalysis   `json:"analysis"`
}

// Calculate derives the full report for trades over [start, end]. Open
// trades are ignored. With no closed trades every figure is zero and the
// equity curve holds only the starting point.
func Calculate(trades []Trade, initialCapital float64, start, end time.Time, opts Options) Report {
	closed := closedByExit(trades)
	from, to := start.UnixMilli(), end.UnixMilli()

	equity := EquityCurve(closed, initialCapital, from)
	rep := Report{
		Equity:   equity,
		Drawdown: DrawdownCurve(equity),
		Monthly:  MonthlyReturns(closed),
	}
	if len(closed) == 0 {
		rep.Monthly = []MonthlyReturn{}
		return rep
	}

	m := tally(closed)
	if initialCapital > 0 {
		m.TotalReturn = m.TotalPnL / initialCapital
	}
	m.AnnualizedReturn = annualize(m.TotalReturn, to-from)

	returns := make([]float64, len(closed))
	for i, t := range closed {
		returns[i] = t.PnLPercent
	}
	m.Sharpe = Sharpe(returns, opts)
	m.Sortino = Sortino(returns, opts)

	values := make([]float64, len(equity))
	stamps := make([]int64, len(equity))
	for i, p := range equity {
		values[i], stamps[i] = p.Equity, p.Timestamp
	}
	m.MaxDrawdown, m.MaxDrawdownDurationMs = MaxDrawdown(values, stamps)
	if m.MaxDrawdown > 0 {
		m.Calmar = finite(m.AnnualizedReturn / m.MaxDrawdown)
		m.RecoveryFactor = finite(m.TotalReturn / m.MaxDrawdown)
	}
	m.ExposureTime = exposure(closed, from, to)

	rep.Metrics = m
	rep.Risk = Risk(stepReturns(equity))
	rep.Analysis = analyze(closed, rep.Monthly, to-from)
	return rep
}

func closedByExit(trades []Trade) []Trade {
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.closed() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExitTime < out[j].ExitTime })
	return out
}

func tally(closed []Trade) Metrics {
	var m Metrics
	m.TotalTrades = len(closed)
	for i, t := range closed {
		m.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			m.GrossProfit += t.PnL
		case t.PnL < 0:
			m.LosingTrades++
			m.GrossLoss += -t.PnL
		default:
			m.BreakEvenTrades++
		}
		if i == 0 || t.PnL > m.LargestWin {
			m.LargestWin = t.PnL
		}
		if i == 0 || t.PnL < m.LargestLoss {
			m.LargestLoss = t.PnL
		}
	}
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AvgWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = m.GrossLoss / float64(m.LosingTrades)
	}
	if m.GrossLoss > 0 {
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	}
	if m.AvgLoss > 0 {
		m.PayoffRatio = m.AvgWin / m.AvgLoss
	}
	m.Expectancy = m.TotalPnL / float64(m.TotalTrades)
	return m
}

// annualize compounds totalReturn over the span. Spans under a day are not
// extrapolated.
func annualize(totalReturn float64, spanMs int64) float64 {
	if spanMs <= 0 {
		return 0
	}
	if 1+totalReturn <= 0 {
		return -1
	}
	if spanMs < dayMillis {
		return totalReturn
	}
	days := float64(spanMs) / float64(dayMillis)
	return finite(math.Pow(1+totalReturn, 365/days) - 1)
}

// Sharpe annualises mean per-trade return against population deviation.
// Fewer than two returns or zero deviation yield 0.
func Sharpe(returns []float64, opts Options) float64 {
	if len(returns) < 2 {
		return 0
	}
	p := opts.periods()
	mean := meanOf(returns)
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	vol := math.Sqrt(variance * p)
	if vol == 0 || math.IsNaN(vol) {
		return 0
	}
	return finite((mean*p - opts.RiskFreeRate) / vol)
}

// Sortino uses only losing returns in the deviation. No returns gives 0; no
// losing returns gives SortinoNoDownside when the excess return is positive.
func Sortino(returns []float64, opts Options) float64 {
	if len(returns) == 0 {
		return 0
	}
	p := opts.periods()
	excess := meanOf(returns)*p - opts.RiskFreeRate
	var sumSq float64
	var downside int
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
			downside++
		}
	}
	if downside == 0 {
		if excess > 0 {
			return SortinoNoDownside
		}
		return 0
	}
	dev := math.Sqrt(sumSq / float64(len(returns)) * p)
	if dev == 0 {
		return 0
	}
	return finite(excess / dev)
}

// MaxDrawdown returns the worst peak-to-trough fraction in [0,1] and the
// longest time from a peak until equity regained it (or the last point).
func MaxDrawdown(values []float64, stamps []int64) (float64, int64) {
	if len(values) == 0 {
		return 0, 0
	}
	peak, peakAt := values[0], stampAt(stamps, 0)
	var maxDD float64
	var longest int64
	for i := 1; i < len(values); i++ {
		v, ts := values[i], stampAt(stamps, i)
		if v >= peak {
			if values[i-1] < peak {
				longest = max(longest, ts-peakAt)
			}
			peak, peakAt = v, ts
			continue
		}
		if dd := drawdownFrom(peak, v); dd > maxDD {
			maxDD = dd
		}
	}
	if last := values[len(values)-1]; last < peak {
		if d := stampAt(stamps, len(values)-1) - peakAt; d > longest {
			longest = d
		}
	}
	return maxDD, longest
}

func stampAt(stamps []int64, i int) int64 {
	if i < len(stamps) {
		return stamps[i]
	}
	return int64(i)
}

func drawdownFrom(peak, v float64) float64 {
	if peak <= 0 {
		return 0
	}
	dd := (peak - v) / peak
	switch {
	case dd < 0:
		return 0
	case dd > 1:
		return 1
	}
	return dd
}

// EquityCurve starts at initialCapital and adds a point per closed trade in
// exit order.
func EquityCurve(closed []Trade, initialCapital float64, start int64) []EquityPoint {
	out := make([]EquityPoint, 0, len(closed)+1)
	out = append(out, EquityPoint{Timestamp: start, Equity: initialCapital})
	equity, peak := initialCapital, initialCapital
	for _, t := range closed {
		equity += t.PnL
		peak = math.Max(peak, equity)
		point := EquityPoint{Timestamp: t.ExitTime, Equity: equity, Drawdown: drawdownFrom(peak, equity)}
		if initialCapital > 0 {
			point.CumulativeReturn = (equity - initialCapital) / initialCapital
		}
		out = append(out, point)
	}
	return out
}

// DrawdownCurve annotates each equity point with time spent under water.
func DrawdownCurve(equity []EquityPoint) []DrawdownPoint {
	out := make([]DrawdownPoint, len(equity))
	var underSince int64
	for i, p := range equity {
		dp := DrawdownPoint{Timestamp: p.Timestamp, Drawdown: p.Drawdown, Active: p.Drawdown > 0}
		if dp.Active {
			if i > 0 && !out[i-1].Active {
				underSince = equity[i-1].Timestamp
			}
			dp.DurationMs = p.Timestamp - underSince
		}
		out[i] = dp
	}
	return out
}

// MonthlyReturns sums pnl percent by UTC exit month, oldest first.
func MonthlyReturns(closed []Trade) []MonthlyReturn {
	buckets := make(map[[2]int]*MonthlyReturn)
	for _, t := range closed {
		if !t.closed() {
			continue
		}
		at := time.UnixMilli(t.ExitTime).UTC()
		key := [2]int{at.Year(), int(at.Month())}
		b, ok := buckets[key]
		if !ok {
			b = &MonthlyReturn{Year: key[0], Month: key[1]}
			buckets[key] = b
		}
		b.Return += t.PnLPercent
		b.Trades++
	}
	out := make([]MonthlyReturn, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

func stepReturns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev > 0 {
			out = append(out, (equity[i].Equity-prev)/prev)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// VaR is the historical-simulation value at risk at the given confidence.
func VaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return math.Abs(sorted[idx])
}

// Risk computes tail and deviation metrics over per-step equity returns.
func Risk(returns []float64) RiskMetrics {
	if len(returns) == 0 {
		return RiskMetrics{}
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	cut := sorted[clampIndex(int(math.Floor(0.05*float64(len(sorted)))), len(sorted))]
	var tail []float64
	for _, r := range sorted {
		if r <= cut {
			tail = append(tail, r)
		}
	}
	var down, up float64
	for _, r := range returns {
		if r < 0 {
			down += r * r
		} else if r > 0 {
			up += r * r
		}
	}
	n := float64(len(returns))
	return RiskMetrics{
		VaR95:             VaR(returns, 0.95),
		VaR99:             VaR(returns, 0.99),
		CVaR95:            math.Abs(meanOf(tail)),
		DownsideDeviation: math.Sqrt(down / n),
		UpsideDeviation:   math.Sqrt(up / n),
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func analyze(closed []Trade, monthly []MonthlyReturn, spanMs int64) TradeAnalysis {
	var a TradeAnalysis
	if len(closed) == 0 {
		return a
	}
	durations := make([]int64, len(closed))
	var total int64
	for i, t := range closed {
		d := t.ExitTime - t.EntryTime
		if d < 0 {
			d = 0
		}
		durations[i] = d
		total += d
	}
	sorted := append([]int64(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	a.AvgDurationMs = total / int64(len(durations))
	a.MedianDurationMs = sorted[len(sorted)/2]
	a.ShortestMs = sorted[0]
	a.LongestMs = sorted[len(sorted)-1]

	var wins, losses int
	for _, t := range closed {
		switch {
		case t.PnL > 0:
			wins++
			losses = 0
		case t.PnL < 0:
			losses++
			wins = 0
		default:
			wins, losses = 0, 0
		}
		a.ConsecutiveWins = max(a.ConsecutiveWins, wins)
		a.ConsecutiveLosses = max(a.ConsecutiveLosses, losses)
	}

	months := float64(spanMs) / float64(dayMillis) / 30.4375
	if months < 1 {
		months = 1
	}
	a.TradesPerMonth = float64(len(closed)) / months

	for i, m := range monthly {
		if i == 0 || m.Return > a.BestMonth.Return {
			a.BestMonth = m
		}
		if i == 0 || m.Return < a.WorstMonth.Return {
			a.WorstMonth = m
		}
	}
	return a
}

// exposure is the fraction of [from, to] covered by at least one position.
func exposure(closed []Trade, from, to int64) float64 {
	span := to - from
	if span <= 0 {
		return 0
	}
	type interval struct{ a, b int64 }
	ivs := make([]interval, 0, len(closed))
	for _, t := range closed {
		a, b := max(t.EntryTime, from), min(t.ExitTime, to)
		if b > a {
			ivs = append(ivs, interval{a, b})
		}
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].a < ivs[j].a })
	var covered int64
	var curA, curB int64 = -1, -1
	for _, iv := range ivs {
		if curB < 0 || iv.a > curB {
			if curB >= 0 {
				covered += curB - curA
			}
			curA, curB = iv.a, iv.b
			continue
		}
		curB = max(curB, iv.b)
	}
	if curB >= 0 {
		covered += curB - curA
	}
	return math.Min(float64(covered)/float64(span), 1)
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}
