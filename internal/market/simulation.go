package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"tradepulse/internal/logger"
)

// WalkParams drives the deterministic random walk used in simulation mode.
type WalkParams struct {
	Seed       int64
	StartPrice float64
	// Drift and Volatility are per-step fractions.
	Drift      float64
	Volatility float64
	BaseVolume float64
}

func (p WalkParams) withDefaults() WalkParams {
	if p.StartPrice <= 0 {
		p.StartPrice = 100
	}
	if p.Volatility <= 0 {
		p.Volatility = 0.01
	}
	if p.BaseVolume <= 0 {
		p.BaseVolume = 1000
	}
	return p
}

// SeedFor derives a stable per-symbol seed so every symbol gets its own path.
func SeedFor(symbol string, base int64) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToUpper(strings.TrimSpace(symbol))))
	return base ^ int64(h.Sum64()&math.MaxInt64)
}

// RandomWalk builds n candles starting at start, one every step.
func RandomWalk(params WalkParams, start time.Time, step time.Duration, n int) []Candle {
	if n <= 0 || step <= 0 {
		return nil
	}
	p := params.withDefaults()
	rng := rand.New(rand.NewSource(p.Seed))
	out := make([]Candle, 0, n)
	price := p.StartPrice
	ts := start.UTC().UnixMilli()
	stepMs := step.Milliseconds()
	for i := 0; i < n; i++ {
		open := price
		change := p.Drift + rng.NormFloat64()*p.Volatility
		closePrice := math.Max(open*(1+change), 0.0001)
		wick := math.Abs(rng.NormFloat64()) * p.Volatility * open * 0.5
		high := math.Max(open, closePrice) + wick
		low := math.Max(math.Min(open, closePrice)-wick, 0.00005)
		volume := p.BaseVolume * (0.5 + rng.Float64())
		out = append(out, Candle{
			OpenTime:  ts,
			CloseTime: ts + stepMs - 1,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			Trades:    int64(20 + rng.Intn(200)),
		})
		price = closePrice
		ts += stepMs
	}
	return out
}

// SimulationFeed emits random-walk ticks. It is only used when the market
// mode is explicitly "simulation".
type SimulationFeed struct {
	interval time.Duration
	seed     int64
	prices   map[string]float64

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSimulationFeed(interval time.Duration, seed int64, startPrices map[string]float64) *SimulationFeed {
	if interval <= 0 {
		interval = time.Second
	}
	prices := make(map[string]float64, len(startPrices))
	for sym, px := range startPrices {
		prices[strings.ToUpper(strings.TrimSpace(sym))] = px
	}
	return &SimulationFeed{interval: interval, seed: seed, prices: prices}
}

func (f *SimulationFeed) SubscribeTrades(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan Tick, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbols are required for simulation feed")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	out := make(chan Tick, buffer)
	subCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.cancel = cancel
	f.mu.Unlock()

	type walker struct {
		symbol string
		price  float64
		rng    *rand.Rand
	}
	walkers := make([]*walker, 0, len(symbols))
	for _, sym := range symbols {
		key := strings.ToUpper(strings.TrimSpace(sym))
		start := f.prices[key]
		if start <= 0 {
			start = 100
		}
		walkers = append(walkers, &walker{symbol: sym, price: start, rng: rand.New(rand.NewSource(SeedFor(sym, f.seed)))})
	}
	if opts.OnConnect != nil {
		opts.OnConnect()
	}
	go func() {
		defer close(out)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case now := <-ticker.C:
				for _, w := range walkers {
					w.price = math.Max(w.price*(1+w.rng.NormFloat64()*0.002), 0.0001)
					tick := Tick{
						Symbol:    w.symbol,
						Price:     w.price,
						Volume:    10 + w.rng.Float64()*90,
						Timestamp: now.UnixMilli(),
					}
					select {
					case out <- tick:
					default:
						logger.Warnf("[simulation] tick channel full, drop %s", w.symbol)
					}
				}
			}
		}
	}()
	return out, nil
}

func (f *SimulationFeed) Stats() SourceStats { return SourceStats{} }

func (f *SimulationFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	return nil
}
