package indicator

import (
	"math"
	"testing"

	"tradepulse/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestEMA(t *testing.T) {
	assert.InDelta(t, 4.0, EMA([]float64{1, 2, 3, 4, 5}, 3), 1e-12)
	assert.Equal(t, 2.0, EMA([]float64{1, 2}, 3), "short input falls back to last price")
	assert.Equal(t, 0.0, EMA(nil, 9))
}

func TestSMA(t *testing.T) {
	assert.Equal(t, 3.5, SMA([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, 2.5, SMA([]float64{1, 2, 3, 4}, 10))
	assert.Equal(t, 0.0, SMA(nil, 5))
}

func TestRSI(t *testing.T) {
	assert.InDelta(t, 75.0, RSI([]float64{10, 11, 12, 11, 12}, 4), 1e-9)
	assert.Equal(t, 100.0, RSI(linear(30, 1, 1), 14))
	assert.Equal(t, 50.0, RSI(linear(14, 1, 1), 14), "needs more than period prices")
}

func TestMACDSignalModes(t *testing.T) {
	prices := linear(60, 100, 1)

	smoothed := MACD(prices, SignalEMA)
	assert.InDelta(t, 7.0, smoothed.MACD, 1e-9)
	assert.InDelta(t, 7.0, smoothed.Signal, 1e-9)
	assert.InDelta(t, 0.0, smoothed.Histogram, 1e-9)

	legacy := MACD(prices, SignalLegacy)
	assert.InDelta(t, 7.0*0.8, legacy.Signal, 1e-9)
	assert.InDelta(t, 7.0*0.2, legacy.Histogram, 1e-9)

	assert.Equal(t, MACDValue{}, MACD(linear(25, 1, 1), SignalEMA))
}

func TestVWAP(t *testing.T) {
	assert.Equal(t, 17.5, VWAP([]float64{10, 20}, []float64{1, 3}))
	assert.Equal(t, 20.0, VWAP([]float64{10, 20}, []float64{0, 0}))
	assert.Equal(t, 0.0, VWAP([]float64{10, 20}, []float64{1}))
}

func TestATR(t *testing.T) {
	highs := []float64{10, 12, 13}
	lows := []float64{8, 9, 11}
	closes := []float64{9, 11, 12}
	assert.InDelta(t, 2.5, ATR(highs, lows, closes, 14), 1e-12)
	assert.Equal(t, 0.0, ATR([]float64{1}, []float64{1}, []float64{1}, 14))
}

func TestBollinger(t *testing.T) {
	flat := Bollinger(constant(25, 5), 20, 2)
	assert.InDelta(t, 5.0, flat.Upper, 1e-9)
	assert.InDelta(t, 5.0, flat.Lower, 1e-9)

	bands := Bollinger(linear(20, 1, 1), 20, 2)
	sd := math.Sqrt(399.0 / 12.0)
	assert.InDelta(t, 10.5, bands.Middle, 1e-9)
	assert.InDelta(t, 10.5+2*sd, bands.Upper, 1e-6)
	assert.InDelta(t, 10.5-2*sd, bands.Lower, 1e-6)

	short := Bollinger([]float64{3, 4}, 20, 2)
	assert.Equal(t, BollingerValue{Upper: 4, Middle: 4, Lower: 4}, short)
}

func TestStochasticAndWilliams(t *testing.T) {
	highs := linear(14, 1, 1)
	lows := linear(14, 0, 1)
	closes := linear(14, 0.5, 1)

	st := Stochastic(highs, lows, closes, 14, 3, SignalLegacy)
	assert.InDelta(t, 13.5/14*100, st.K, 1e-9)
	assert.InDelta(t, st.K*0.8, st.D, 1e-9)

	smoothed := Stochastic(highs, lows, closes, 14, 3, SignalEMA)
	assert.InDelta(t, st.K, smoothed.D, 1e-9, "only one full window so %D equals %K")

	assert.InDelta(t, -0.5/14*100, WilliamsR(highs, lows, closes, 14), 1e-9)

	assert.Equal(t, StochasticValue{K: 50, D: 50}, Stochastic(highs[:5], lows[:5], closes[:5], 14, 3, SignalEMA))
	assert.Equal(t, -50.0, WilliamsR(highs[:5], lows[:5], closes[:5], 14))

	flat := constant(20, 10)
	assert.Equal(t, 50.0, Stochastic(flat, flat, flat, 14, 3, SignalEMA).K)
	assert.Equal(t, -50.0, WilliamsR(flat, flat, flat, 14))
}

func rangeAt(highs, lows, closes []float64, end, period int) (hh, ll, c float64) {
	hh, ll = highs[end-period], lows[end-period]
	for i := end - period; i < end; i++ {
		hh = math.Max(hh, highs[i])
		ll = math.Min(ll, lows[i])
	}
	return hh, ll, closes[end-1]
}

func TestStochasticSmoothsOverWindows(t *testing.T) {
	n := 60
	highs, lows, closes := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		mid := 100 + 10*math.Sin(float64(i)/5) + float64(i)*0.3
		highs[i], lows[i] = mid+2, mid-2
		closes[i] = mid + math.Cos(float64(i))
	}

	var ks []float64
	for end := n - 2; end <= n; end++ {
		hh, ll, c := rangeAt(highs, lows, closes, end, 14)
		ks = append(ks, (c-ll)/(hh-ll)*100)
	}
	st := Stochastic(highs, lows, closes, 14, 3, SignalEMA)
	assert.InDelta(t, ks[2], st.K, 1e-9)
	assert.InDelta(t, (ks[0]+ks[1]+ks[2])/3, st.D, 1e-9)

	hh, ll, c := rangeAt(highs, lows, closes, n, 14)
	assert.InDelta(t, (hh-c)/(hh-ll)*-100, WilliamsR(highs, lows, closes, 14), 1e-9)

	// a flat window inside the %D span counts as 50
	flatTail := append(append([]float64(nil), closes[:20]...), constant(16, 90)...)
	fh := append(append([]float64(nil), highs[:20]...), constant(16, 90)...)
	fl := append(append([]float64(nil), lows[:20]...), constant(16, 90)...)
	flat := Stochastic(fh, fl, flatTail, 14, 3, SignalEMA)
	assert.Equal(t, 50.0, flat.K)
	assert.InDelta(t, 50.0, flat.D, 1e-9, "the last three windows are all flat")
}

func TestCCI(t *testing.T) {
	flat := constant(30, 10)
	assert.Equal(t, 0.0, CCI(flat, flat, flat, 20))
	assert.Equal(t, 0.0, CCI(flat[:5], flat[:5], flat[:5], 20))

	rising := linear(30, 10, 1)
	assert.Greater(t, CCI(rising, rising, rising, 20), 100.0)
}

func TestSupertrend(t *testing.T) {
	closes := linear(40, 100, 1)
	highs := linear(40, 100.5, 1)
	lows := linear(40, 99.5, 1)
	up := Supertrend(highs, lows, closes, 10, 3)
	assert.Equal(t, TrendUp, up.Direction)
	assert.Less(t, up.Value, closes[len(closes)-1])

	fc := linear(40, 200, -1)
	fh := linear(40, 200.5, -1)
	fl := linear(40, 199.5, -1)
	down := Supertrend(fh, fl, fc, 10, 3)
	assert.Equal(t, TrendDown, down.Direction)
	assert.Greater(t, down.Value, fc[len(fc)-1])

	short := Supertrend([]float64{1, 2}, []float64{1, 2}, []float64{1, 2}, 10, 3)
	assert.Equal(t, SupertrendValue{Value: 2, Direction: TrendUp}, short)
}

func TestVolatilityAndVolume(t *testing.T) {
	assert.Equal(t, 0.02, Volatility([]float64{5}, 20))
	assert.Equal(t, 0.0, Volatility(constant(30, 5), 20))
	assert.InDelta(t, 0.1, Volatility([]float64{100, 110}, 20), 1e-12)

	assert.Equal(t, 0.0, AverageVolume(constant(5, 10), 20))
	assert.Equal(t, 10.0, AverageVolume(constant(25, 10), 20))
}

func TestShortInputsNeverNaN(t *testing.T) {
	for n := 0; n <= 5; n++ {
		p := linear(n, 1, 1)
		values := []float64{
			EMA(p, 9), SMA(p, 20), RSI(p, 14), VWAP(p, p), ATR(p, p, p, 14),
			WilliamsR(p, p, p, 14), CCI(p, p, p, 20), Volatility(p, 20), AverageVolume(p, 20),
		}
		m := MACD(p, SignalEMA)
		b := Bollinger(p, 20, 2)
		st := Stochastic(p, p, p, 14, 3, SignalEMA)
		values = append(values, m.MACD, m.Signal, m.Histogram, b.Upper, b.Lower, st.K, st.D)
		for i, v := range values {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "n=%d value#%d", n, i)
		}
	}
}

func TestComputeSnapshot(t *testing.T) {
	closes := linear(60, 100, 1)
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{OpenTime: int64(i) * 60_000, Open: c - 0.5, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000}
	}
	snap := Compute(candles, Options{})
	require.NotNil(t, snap.Prev)
	assert.Equal(t, 159.0, snap.Price)
	assert.Greater(t, snap.EMA9, snap.EMA21)
	assert.Equal(t, 100.0, snap.RSI)
	assert.Greater(t, snap.Price, snap.VWAP)
	assert.Equal(t, 158.0, snap.Prev.Price)

	v, ok := snap.Lookup("Bollinger.Lower")
	assert.True(t, ok)
	assert.Equal(t, snap.Bollinger.Lower, v)

	ratio, ok := snap.Lookup("volume_ratio")
	assert.True(t, ok)
	assert.InDelta(t, 1.0, ratio, 1e-12)

	_, ok = snap.Lookup("unknown")
	assert.False(t, ok)

	for _, name := range Names {
		_, ok := snap.Lookup(name)
		assert.True(t, ok, name)
	}
	assert.Equal(t, Snapshot{}, Compute(nil, Options{}))
}
