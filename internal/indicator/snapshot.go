package indicator

import (
	"strings"

	"tradepulse/internal/market"
)

// Options tunes snapshot computation. Zero values use the defaults.
type Options struct {
	SignalLine SignalLine
	RSIPeriod  int
	ATRPeriod  int
	VolumeAvg  int
}

func (o Options) withDefaults() Options {
	if o.SignalLine == "" {
		o.SignalLine = SignalEMA
	}
	if o.RSIPeriod <= 0 {
		o.RSIPeriod = 14
	}
	if o.ATRPeriod <= 0 {
		o.ATRPeriod = 14
	}
	if o.VolumeAvg <= 0 {
		o.VolumeAvg = 20
	}
	return o
}

// Snapshot is the indicator state at the last bar of a window. Prev holds the
// state one bar earlier, used by rising/falling/crossover conditions.
type Snapshot struct {
	Timestamp  int64           `json:"timestamp"`
	Price      float64         `json:"price"`
	Volume     float64         `json:"volume"`
	AvgVolume  float64         `json:"avg_volume"`
	EMA9       float64         `json:"ema9"`
	EMA21      float64         `json:"ema21"`
	EMA50      float64         `json:"ema50"`
	SMA20      float64         `json:"sma20"`
	RSI        float64         `json:"rsi"`
	MACD       MACDValue       `json:"macd"`
	VWAP       float64         `json:"vwap"`
	ATR        float64         `json:"atr"`
	Bollinger  BollingerValue  `json:"bollinger"`
	Stochastic StochasticValue `json:"stochastic"`
	WilliamsR  float64         `json:"williams_r"`
	CCI        float64         `json:"cci"`
	Supertrend SupertrendValue `json:"supertrend"`
	Volatility float64         `json:"volatility"`
	Support    float64         `json:"support"`
	Resistance float64         `json:"resistance"`

	Prev *Snapshot `json:"-"`
}

// Compute builds the snapshot for the last candle of the window, plus its
// predecessor. An empty window returns the zero snapshot.
func Compute(candles []market.Candle, opts Options) Snapshot {
	if len(candles) == 0 {
		return Snapshot{}
	}
	opts = opts.withDefaults()
	snap := computeOne(candles, opts)
	if len(candles) > 1 {
		prev := computeOne(candles[:len(candles)-1], opts)
		snap.Prev = &prev
	}
	return snap
}

func computeOne(candles []market.Candle, opts Options) Snapshot {
	s := market.SplitSeries(candles)
	lastBar := candles[len(candles)-1]
	support, resistance := SupportResistance(s.Highs, s.Lows, 20)
	return Snapshot{
		Timestamp:  lastBar.OpenTime,
		Price:      lastBar.Close,
		Volume:     lastBar.Volume,
		AvgVolume:  AverageVolume(s.Volumes, opts.VolumeAvg),
		EMA9:       EMA(s.Closes, 9),
		EMA21:      EMA(s.Closes, 21),
		EMA50:      EMA(s.Closes, 50),
		SMA20:      SMA(s.Closes, 20),
		RSI:        RSI(s.Closes, opts.RSIPeriod),
		MACD:       MACD(s.Closes, opts.SignalLine),
		VWAP:       VWAP(s.Closes, s.Volumes),
		ATR:        ATR(s.Highs, s.Lows, s.Closes, opts.ATRPeriod),
		Bollinger:  Bollinger(s.Closes, 20, 2),
		Stochastic: Stochastic(s.Highs, s.Lows, s.Closes, 14, 3, opts.SignalLine),
		WilliamsR:  WilliamsR(s.Highs, s.Lows, s.Closes, 14),
		CCI:        CCI(s.Highs, s.Lows, s.Closes, 20),
		Supertrend: Supertrend(s.Highs, s.Lows, s.Closes, 10, 3),
		Volatility: Volatility(s.Closes, 20),
		Support:    support,
		Resistance: resistance,
	}
}

// Names lists every name Lookup resolves.
var Names = []string{
	"price", "close", "volume", "avg_volume", "volume_ratio",
	"ema9", "ema21", "ema50", "sma20", "rsi",
	"macd", "macd.macd", "macd.signal", "macd.histogram",
	"vwap", "atr", "atr_pct",
	"bollinger.upper", "bollinger.middle", "bollinger.lower",
	"stochastic", "stochastic.k", "stochastic.d",
	"williams_r", "cci",
	"supertrend", "supertrend.value", "supertrend.direction",
	"volatility", "support", "resistance",
}

// Lookup resolves a (possibly dotted) indicator name. supertrend.direction is
// +1 for UP and -1 for DOWN.
func (s Snapshot) Lookup(name string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "price", "close":
		return s.Price, true
	case "volume":
		return s.Volume, true
	case "avg_volume":
		return s.AvgVolume, true
	case "volume_ratio":
		if s.AvgVolume == 0 {
			return 0, true
		}
		return s.Volume / s.AvgVolume, true
	case "ema9":
		return s.EMA9, true
	case "ema21":
		return s.EMA21, true
	case "ema50":
		return s.EMA50, true
	case "sma20":
		return s.SMA20, true
	case "rsi":
		return s.RSI, true
	case "macd", "macd.macd":
		return s.MACD.MACD, true
	case "macd.signal":
		return s.MACD.Signal, true
	case "macd.histogram":
		return s.MACD.Histogram, true
	case "vwap":
		return s.VWAP, true
	case "atr":
		return s.ATR, true
	case "atr_pct":
		if s.Price == 0 {
			return 0, true
		}
		return s.ATR / s.Price * 100, true
	case "bollinger.upper":
		return s.Bollinger.Upper, true
	case "bollinger.middle":
		return s.Bollinger.Middle, true
	case "bollinger.lower":
		return s.Bollinger.Lower, true
	case "stochastic", "stochastic.k":
		return s.Stochastic.K, true
	case "stochastic.d":
		return s.Stochastic.D, true
	case "williams_r":
		return s.WilliamsR, true
	case "cci":
		return s.CCI, true
	case "supertrend", "supertrend.value":
		return s.Supertrend.Value, true
	case "supertrend.direction":
		if s.Supertrend.Direction == TrendDown {
			return -1, true
		}
		return 1, true
	case "volatility":
		return s.Volatility, true
	case "support":
		return s.Support, true
	case "resistance":
		return s.Resistance, true
	}
	return 0, false
}

// TicksToCandles turns a tick window into single-print candles so the live
// engine can share Compute with the backtest.
func TicksToCandles(ticks []market.Tick) []market.Candle {
	out := make([]market.Candle, len(ticks))
	for i, t := range ticks {
		out[i] = market.Candle{
			OpenTime:  t.Timestamp,
			CloseTime: t.Timestamp,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
			Volume:    t.Volume,
			Trades:    1,
		}
	}
	return out
}
