// Package indicator holds the technical indicators shared by the backtest
// simulator and the live signal engine. Every function is pure and falls back
// to a documented neutral value when the input is shorter than its window.
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// SignalLine selects how MACD signal and stochastic %D are smoothed.
type SignalLine string

const (
	// SignalEMA smooths MACD with a 9-period EMA and %D with an SMA of %K.
	SignalEMA SignalLine = "ema"
	// SignalLegacy reproduces the older x0.8 approximation for both lines.
	SignalLegacy SignalLine = "legacy"

	legacySignalFactor = 0.8
)

// ParseSignalLine maps a config value to a SignalLine, defaulting to SignalEMA.
func ParseSignalLine(raw string) SignalLine {
	if SignalLine(raw) == SignalLegacy {
		return SignalLegacy
	}
	return SignalEMA
}

type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type BollingerValue struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

type StochasticValue struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// TrendDirection is the supertrend regime.
type TrendDirection string

const (
	TrendUp   TrendDirection = "UP"
	TrendDown TrendDirection = "DOWN"
)

type SupertrendValue struct {
	Value     float64        `json:"value"`
	Direction TrendDirection `json:"direction"`
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// EMASeries returns the EMA series seeded with the SMA of the first period
// values; entries before period-1 are zero. Returns nil when len < period.
func EMASeries(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	return talib.Ema(prices, period)
}

// EMA returns the latest EMA value, or the last price when len < period.
func EMA(prices []float64, period int) float64 {
	series := EMASeries(prices, period)
	if series == nil {
		return last(prices)
	}
	return finite(last(series))
}

// SMA is the mean of the last period values; shorter input averages what exists.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period <= 0 || period > len(prices) {
		period = len(prices)
	}
	return finite(last(talib.Sma(prices[len(prices)-period:], period)))
}

// RSI uses simple averages of gains and losses over the last period deltas.
func RSI(prices []float64, period int) float64 {
	if period <= 0 {
		period = 14
	}
	if len(prices) <= period {
		return 50
	}
	gains, losses := 0.0, 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	return finite(100 - 100/(1+avgGain/avgLoss))
}

// MACD computes the 12/26 line with a 9-period signal. Fewer than 26 prices
// yields zeros.
func MACD(prices []float64, mode SignalLine) MACDValue {
	const fast, slow, signalPeriod = 12, 26, 9
	if len(prices) < slow {
		return MACDValue{}
	}
	fastSeries := EMASeries(prices, fast)
	slowSeries := EMASeries(prices, slow)
	line := make([]float64, 0, len(prices)-slow+1)
	for i := slow - 1; i < len(prices); i++ {
		line = append(line, fastSeries[i]-slowSeries[i])
	}
	macd := finite(last(line))
	var signal float64
	if mode == SignalLegacy {
		signal = macd * legacySignalFactor
	} else {
		signal = EMA(line, signalPeriod)
	}
	return MACDValue{MACD: macd, Signal: signal, Histogram: macd - signal}
}

// VWAP falls back to the last price when total volume is zero and to 0 on
// empty or mismatched input.
func VWAP(prices, volumes []float64) float64 {
	if len(prices) == 0 || len(prices) != len(volumes) {
		return 0
	}
	pv, vol := 0.0, 0.0
	for i := range prices {
		pv += prices[i] * volumes[i]
		vol += volumes[i]
	}
	if vol == 0 {
		return last(prices)
	}
	return finite(pv / vol)
}

func trueRanges(highs, lows, closes []float64) []float64 {
	n := minLen(highs, lows, closes)
	if n < 2 {
		return nil
	}
	out := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out = append(out, math.Max(hl, math.Max(hc, lc)))
	}
	return out
}

// ATR is the simple mean of the last period true ranges. Under two bars it is 0.
func ATR(highs, lows, closes []float64, period int) float64 {
	if period <= 0 {
		period = 14
	}
	tr := trueRanges(highs, lows, closes)
	if len(tr) == 0 {
		return 0
	}
	if period > len(tr) {
		period = len(tr)
	}
	sum := 0.0
	for _, v := range tr[len(tr)-period:] {
		sum += v
	}
	return finite(sum / float64(period))
}

// Bollinger returns SMA bands at k population standard deviations. Short
// input collapses all three bands onto the last price.
func Bollinger(prices []float64, period int, k float64) BollingerValue {
	if period <= 1 {
		period = 20
	}
	if k <= 0 {
		k = 2
	}
	if len(prices) < period {
		p := last(prices)
		return BollingerValue{Upper: p, Middle: p, Lower: p}
	}
	upper, middle, lower := talib.BBands(prices, period, k, k, talib.SMA)
	return BollingerValue{Upper: finite(last(upper)), Middle: finite(last(middle)), Lower: finite(last(lower))}
}

// rangeSeries returns the rolling highest high and lowest low over period.
func rangeSeries(highs, lows []float64, period int) (hh, ll []float64) {
	if period < 2 {
		return highs, lows
	}
	return talib.Max(highs, period), talib.Min(lows, period)
}

// stochKSeries is the fast %K for every full window, flat windows pinned to 50.
func stochKSeries(highs, lows, closes []float64, period int) []float64 {
	k, _ := talib.Stoch(highs, lows, closes, period, 1, talib.SMA, 1, talib.SMA)
	hh, ll := rangeSeries(highs, lows, period)
	for i := period - 1; i < len(k); i++ {
		if hh[i] == ll[i] {
			k[i] = 50
		}
	}
	return k[period-1:]
}

// Stochastic returns %K over kPeriod and %D over the last dPeriod %K values.
// Short input returns K=D=50.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int, mode SignalLine) StochasticValue {
	if kPeriod <= 0 {
		kPeriod = 14
	}
	if dPeriod <= 0 {
		dPeriod = 3
	}
	n := minLen(highs, lows, closes)
	if n < kPeriod {
		return StochasticValue{K: 50, D: 50}
	}
	ks := stochKSeries(highs[:n], lows[:n], closes[:n], kPeriod)
	k := finite(last(ks))
	if mode == SignalLegacy {
		return StochasticValue{K: k, D: k * legacySignalFactor}
	}
	if dPeriod > len(ks) {
		dPeriod = len(ks)
	}
	return StochasticValue{K: k, D: SMA(ks, dPeriod)}
}

// WilliamsR returns -50 on short input or a flat range.
func WilliamsR(highs, lows, closes []float64, period int) float64 {
	if period <= 0 {
		period = 14
	}
	n := minLen(highs, lows, closes)
	if n < period {
		return -50
	}
	highs, lows, closes = highs[n-period:n], lows[n-period:n], closes[n-period:n]
	hh, ll := rangeSeries(highs, lows, period)
	if last(hh) == last(ll) {
		return -50
	}
	return finite(last(talib.WillR(highs, lows, closes, period)))
}

// CCI uses the 0.015 Lambert constant. Short input yields 0.
func CCI(highs, lows, closes []float64, period int) float64 {
	if period <= 0 {
		period = 20
	}
	n := minLen(highs, lows, closes)
	if n < period {
		return 0
	}
	return finite(last(talib.Cci(highs[:n], lows[:n], closes[:n], period)))
}

// Supertrend walks the window carrying final bands and direction. Short input
// returns the last close in an UP regime.
func Supertrend(highs, lows, closes []float64, period int, multiplier float64) SupertrendValue {
	if period <= 0 {
		period = 10
	}
	if multiplier <= 0 {
		multiplier = 3
	}
	n := minLen(highs, lows, closes)
	if n <= period {
		return SupertrendValue{Value: last(closes), Direction: TrendUp}
	}
	var finalUpper, finalLower float64
	dir := TrendUp
	for i := period; i < n; i++ {
		atr := ATR(highs[:i+1], lows[:i+1], closes[:i+1], period)
		hl2 := (highs[i] + lows[i]) / 2
		basicUpper := hl2 + multiplier*atr
		basicLower := hl2 - multiplier*atr
		if i == period {
			finalUpper, finalLower = basicUpper, basicLower
			if closes[i] < hl2 {
				dir = TrendDown
			}
			continue
		}
		if basicUpper < finalUpper || closes[i-1] > finalUpper {
			finalUpper = basicUpper
		}
		if basicLower > finalLower || closes[i-1] < finalLower {
			finalLower = basicLower
		}
		switch {
		case dir == TrendDown && closes[i] > finalUpper:
			dir = TrendUp
		case dir == TrendUp && closes[i] < finalLower:
			dir = TrendDown
		}
	}
	if dir == TrendUp {
		return SupertrendValue{Value: finite(finalLower), Direction: TrendUp}
	}
	return SupertrendValue{Value: finite(finalUpper), Direction: TrendDown}
}

// Volatility is the RMS of the last n simple returns; 0.02 with under two prices.
func Volatility(prices []float64, n int) float64 {
	if n <= 0 {
		n = 20
	}
	if len(prices) < 2 {
		return 0.02
	}
	start := len(prices) - n - 1
	if start < 0 {
		start = 0
	}
	sum, count := 0.0, 0
	for i := start + 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		r := (prices[i] - prices[i-1]) / prices[i-1]
		sum += r * r
		count++
	}
	if count == 0 {
		return 0.02
	}
	return finite(math.Sqrt(sum / float64(count)))
}

// AverageVolume is the mean of the last n volumes, or 0 with fewer than n.
func AverageVolume(volumes []float64, n int) float64 {
	if n <= 0 {
		n = 20
	}
	if len(volumes) < n {
		return 0
	}
	return SMA(volumes, n)
}

// SupportResistance returns the lowest low and highest high of the n bars
// before the last one.
func SupportResistance(highs, lows []float64, n int) (support, resistance float64) {
	if n <= 0 {
		n = 20
	}
	size := len(highs)
	if len(lows) < size {
		size = len(lows)
	}
	if size < 2 {
		if size == 1 {
			return lows[0], highs[0]
		}
		return 0, 0
	}
	end := size - 1
	start := end - n
	if start < 0 {
		start = 0
	}
	support, resistance = lows[start], highs[start]
	for i := start; i < end; i++ {
		support = math.Min(support, lows[i])
		resistance = math.Max(resistance, highs[i])
	}
	return support, resistance
}

func minLen(series ...[]float64) int {
	if len(series) == 0 {
		return 0
	}
	n := len(series[0])
	for _, s := range series[1:] {
		if len(s) < n {
			n = len(s)
		}
	}
	return n
}
