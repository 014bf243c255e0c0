// Package engine turns live ticks into strategy signals and keeps a paper
// portfolio of the signals it acts on.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tradepulse/internal/apperr"
	"tradepulse/internal/history"
	"tradepulse/internal/indicator"
	"tradepulse/internal/logger"
	"tradepulse/internal/market"
	"tradepulse/internal/performance"
	"tradepulse/internal/pkg/symbol"
	"tradepulse/internal/strategy"
	"tradepulse/internal/strategy/exit"

	"github.com/google/uuid"
)

// Strategies is the registry surface the engine needs.
type Strategies interface {
	Get(id string) (strategy.Strategy, error)
	List() []strategy.Strategy
	Enabled() []strategy.Strategy
	Add(s strategy.Strategy) error
	Remove(id string) error
}

// SignalRecorder persists signals. RecordSignal must not block.
type SignalRecorder interface {
	RecordSignal(sig strategy.Signal)
}

// SignalHook observes every published signal. Hooks run on the ingesting
// goroutine and must return quickly.
type SignalHook func(sig strategy.Signal)

// UpdateHook observes every accepted tick, under the same rules as SignalHook.
type UpdateHook func(upd Update)

type Deps struct {
	Strategies Strategies
	Recorder   SignalRecorder
	History    history.Adapter
	Hooks      []SignalHook
	Now        func() time.Time
}

// EnhancedTick is an accepted tick plus the derived market quality fields.
type EnhancedTick struct {
	market.Tick
	RawPrice   float64 `json:"raw_price"`
	Spread     float64 `json:"spread"`
	MidPrice   float64 `json:"mid_price"`
	Liquidity  float64 `json:"liquidity"`
	Volatility float64 `json:"volatility"`
	Validated  bool    `json:"validated"`
}

// Update is the outcome of one ingested tick.
type Update struct {
	Tick       EnhancedTick        `json:"tick"`
	Validation *PriceValidation    `json:"validation,omitempty"`
	Signals    []strategy.Signal   `json:"signals,omitempty"`
	Opened     []Position          `json:"opened,omitempty"`
	Closed     []Position          `json:"closed,omitempty"`
	Indicators *indicator.Snapshot `json:"-"` // nil until the window reaches MinHistory
}

type Stats struct {
	Ticks       int64 `json:"ticks"`
	StaleTicks  int64 `json:"stale_ticks"`
	Corrections int64 `json:"corrections"`
	Signals     int64 `json:"signals"`
	Symbols     int   `json:"symbols"`
}

type symbolState struct {
	mu         sync.Mutex
	window     []EnhancedTick
	lastTs     int64
	reference  float64
	lastSignal map[string]int64
}

type Engine struct {
	cfg        Config
	strategies Strategies
	recorder   SignalRecorder
	history    history.Adapter
	now        func() time.Time

	portfolio   *Portfolio
	validations *validationLog

	symbolsMu sync.Mutex
	symbols   map[string]*symbolState

	signalsMu sync.RWMutex
	active    map[string]strategy.Signal
	activeBy  map[string]string // symbol|strategy -> signal id
	recent    []strategy.Signal

	hooksMu     sync.RWMutex
	hooks       []SignalHook
	updateHooks []UpdateHook

	ticks, stale, corrections, published atomic.Int64
}

func New(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:         cfg,
		strategies:  deps.Strategies,
		recorder:    deps.Recorder,
		history:     deps.History,
		now:         now,
		portfolio:   NewPortfolio(cfg.PaperCapital, performance.DefaultOptions()),
		validations: &validationLog{cap: cfg.ValidationCap},
		symbols:     make(map[string]*symbolState),
		active:      make(map[string]strategy.Signal),
		activeBy:    make(map[string]string),
		hooks:       append([]SignalHook(nil), deps.Hooks...),
	}
}

// Subscribe registers an extra signal hook.
func (e *Engine) Subscribe(h SignalHook) {
	if h == nil {
		return
	}
	e.hooksMu.Lock()
	e.hooks = append(e.hooks, h)
	e.hooksMu.Unlock()
}

// Observe registers a hook called after each accepted tick.
func (e *Engine) Observe(h UpdateHook) {
	if h == nil {
		return
	}
	e.hooksMu.Lock()
	e.updateHooks = append(e.updateHooks, h)
	e.hooksMu.Unlock()
}

func (e *Engine) state(sym string) *symbolState {
	e.symbolsMu.Lock()
	defer e.symbolsMu.Unlock()
	st, ok := e.symbols[sym]
	if !ok {
		st = &symbolState{lastSignal: make(map[string]int64)}
		if ref := e.cfg.ReferencePrices[sym]; ref > 0 {
			st.reference = ref
		}
		e.symbols[sym] = st
	}
	return st
}

// Ingest validates one tick, appends it to the symbol window and evaluates
// every enabled strategy once the window is long enough. Ticks at or before
// the last accepted timestamp are rejected with ErrStaleTick.
func (e *Engine) Ingest(ctx context.Context, tick market.Tick) (*Update, error) {
	const op = "engine.ingest"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sym := symbol.Normalize(tick.Symbol)
	if sym == "" || !(tick.Price > 0) || math.IsInf(tick.Price, 0) || tick.Volume < 0 {
		return nil, apperr.Invalid(op, "tick needs a symbol, a positive price and non-negative volume").WithSymbol(sym)
	}
	tick.Symbol = sym
	if tick.Timestamp <= 0 {
		tick.Timestamp = e.now().UnixMilli()
	}

	st := e.state(sym)
	st.mu.Lock()
	if tick.Timestamp <= st.lastTs {
		last := st.lastTs
		st.mu.Unlock()
		e.stale.Add(1)
		return nil, apperr.New(apperr.ErrStaleTick, op, fmt.Errorf("timestamp %d not after %d", tick.Timestamp, last)).WithSymbol(sym)
	}

	upd := &Update{}
	raw := tick.Price
	ref := st.reference
	if ref <= 0 {
		ref = raw
	}
	disc := discrepancy(raw, ref)
	if disc > validationThreshold {
		tick.Price = correct(raw, ref, disc)
		v := PriceValidation{
			Symbol:         sym,
			ExpectedPrice:  ref,
			ActualPrice:    raw,
			CorrectedPrice: tick.Price,
			Discrepancy:    disc,
			Timestamp:      tick.Timestamp,
			Source:         "reference",
		}
		e.validations.add(v)
		e.corrections.Add(1)
		upd.Validation = &v
		logger.Warnf("[engine] %s price %.8g off reference %.8g by %.2f%%, corrected to %.8g", sym, raw, ref, disc*100, tick.Price)
	}

	enhanced := EnhancedTick{
		Tick:      tick,
		RawPrice:  raw,
		Spread:    tick.Price * symbol.SpreadRate(sym),
		MidPrice:  tick.Price,
		Validated: disc <= validationThreshold,
	}
	st.window = append(st.window, enhanced)
	if over := len(st.window) - e.cfg.WindowSize; over > 0 {
		st.window = append([]EnhancedTick(nil), st.window[over:]...)
	}
	last := &st.window[len(st.window)-1]
	last.Liquidity = liquidity(st.window)
	last.Volatility = volatility(st.window)
	upd.Tick = *last

	st.lastTs = tick.Timestamp
	st.reference = tick.Price
	if len(st.window) >= e.cfg.MinHistory {
		snap := e.snapshot(st)
		upd.Indicators = &snap
		upd.Signals = e.evaluate(st, snap, sym, true)
	}
	st.mu.Unlock()
	e.ticks.Add(1)

	for _, sig := range upd.Signals {
		e.publish(sig)
	}
	upd.Closed = e.portfolio.Mark(sym, tick.Price, tick.Timestamp)
	e.retire(upd.Closed...)
	for _, pos := range upd.Closed {
		logger.Infof("[engine] paper %s %s closed by %s pnl=%.4f", pos.Symbol, pos.Side, pos.ExitReason, pos.RealizedPnL)
	}
	if e.cfg.AutoTrade {
		for _, sig := range upd.Signals {
			pos, err := e.portfolio.Open(sig, e.quantityFor(sig))
			if err != nil {
				logger.Debugf("[engine] auto trade skipped: %v", err)
				continue
			}
			upd.Opened = append(upd.Opened, pos)
		}
	}
	e.hooksMu.RLock()
	observers := append([]UpdateHook(nil), e.updateHooks...)
	e.hooksMu.RUnlock()
	for _, h := range observers {
		h(*upd)
	}
	return upd, nil
}

// snapshot computes indicators over the window. Caller holds st.mu.
func (e *Engine) snapshot(st *symbolState) indicator.Snapshot {
	ticks := make([]market.Tick, len(st.window))
	for i, t := range st.window {
		ticks[i] = t.Tick
	}
	return indicator.Compute(indicator.TicksToCandles(ticks), e.cfg.Indicators)
}

// evaluate scores all enabled strategies on snap. With cooldown set it skips
// strategies that fired on this symbol too recently and stamps the ones that
// fire. Caller holds st.mu.
func (e *Engine) evaluate(st *symbolState, snap indicator.Snapshot, sym string, cooldown bool) []strategy.Signal {
	if e.strategies == nil || len(st.window) == 0 {
		return nil
	}
	at := st.window[len(st.window)-1].Timestamp

	var out []strategy.Signal
	for _, s := range e.strategies.Enabled() {
		if cooldown && coolingDown(st, s, at) {
			continue
		}
		ev := strategy.Evaluate(s, snap, e.cfg.Threshold)
		if !ev.Triggered || !ev.Side.Tradable() {
			continue
		}
		sig, err := e.buildSignal(s, ev, sym, snap, at)
		if err != nil {
			logger.Warnf("[engine] %s on %s: %v", s.ID, sym, err)
			continue
		}
		if cooldown {
			st.lastSignal[s.ID] = at
		}
		out = append(out, sig)
	}
	return out
}

// coolingDown reports whether s fired on this symbol at or after at, or less
// than its cooldown ago. Caller holds st.mu.
func coolingDown(st *symbolState, s strategy.Strategy, at int64) bool {
	prev, ok := st.lastSignal[s.ID]
	if !ok {
		return false
	}
	return at <= prev || at-prev < int64(s.Risk.CooldownMinutes)*60_000
}

func (e *Engine) buildSignal(s strategy.Strategy, ev strategy.Evaluation, sym string, snap indicator.Snapshot, at int64) (strategy.Signal, error) {
	rule, err := exit.Build(s.ExitSpec())
	if err != nil {
		return strategy.Signal{}, err
	}
	levels := rule.Levels(exit.Input{Side: ev.Side, Entry: snap.Price, ATR: snap.ATR})
	tf := e.cfg.Timeframe
	if len(s.Timeframes) > 0 {
		tf = s.Timeframes[0]
	}
	return strategy.Signal{
		ID:         uuid.NewString(),
		Symbol:     sym,
		Side:       ev.Side,
		Confidence: ev.Confidence,
		Price:      snap.Price,
		Timestamp:  at,
		StopLoss:   levels.StopLoss,
		TakeProfit: levels.TakeProfit,
		Reasons:    ev.Reasons,
		StrategyID: s.ID,
		Timeframe:  tf,
	}, nil
}

func activeKey(sym, strategyID string) string { return sym + "|" + strategyID }

// publish makes sig the active signal for its symbol and strategy, prepends
// it to the history and hands it to the recorder and hooks. Signals trimmed
// out of the history stop being active.
func (e *Engine) publish(sig strategy.Signal) {
	e.signalsMu.Lock()
	key := activeKey(sig.Symbol, sig.StrategyID)
	if prev, ok := e.activeBy[key]; ok {
		delete(e.active, prev)
	}
	e.active[sig.ID] = sig
	e.activeBy[key] = sig.ID
	e.recent = append([]strategy.Signal{sig}, e.recent...)
	if len(e.recent) > e.cfg.HistoryCap {
		for _, old := range e.recent[e.cfg.HistoryTrim:] {
			e.retireLocked(old.ID)
		}
		e.recent = append([]strategy.Signal(nil), e.recent[:e.cfg.HistoryTrim]...)
	}
	e.signalsMu.Unlock()
	e.published.Add(1)

	logger.Infof("[engine] signal %s %s %s conf=%.2f price=%.8g sl=%.8g tp=%.8g",
		sig.StrategyID, sig.Symbol, sig.Side, sig.Confidence, sig.Price, sig.StopLoss, sig.TakeProfit)
	if e.recorder != nil {
		e.recorder.RecordSignal(sig)
	}
	e.hooksMu.RLock()
	hooks := append([]SignalHook(nil), e.hooks...)
	e.hooksMu.RUnlock()
	for _, h := range hooks {
		h(sig)
	}
}

// retireLocked drops id from the active set. Caller holds signalsMu.
func (e *Engine) retireLocked(id string) {
	sig, ok := e.active[id]
	if !ok {
		return
	}
	delete(e.active, id)
	key := activeKey(sig.Symbol, sig.StrategyID)
	if e.activeBy[key] == id {
		delete(e.activeBy, key)
	}
}

func (e *Engine) retire(positions ...Position) {
	if len(positions) == 0 {
		return
	}
	e.signalsMu.Lock()
	for _, pos := range positions {
		e.retireLocked(pos.SignalID)
	}
	e.signalsMu.Unlock()
}

func (e *Engine) activeFor(sym, strategyID string) (strategy.Signal, bool) {
	e.signalsMu.RLock()
	defer e.signalsMu.RUnlock()
	sig, ok := e.active[e.activeBy[activeKey(sym, strategyID)]]
	return sig, ok
}

// quantityFor sizes a paper position as capital·MaxRisk/price.
func (e *Engine) quantityFor(sig strategy.Signal) float64 {
	risk := 0.02
	if e.strategies != nil {
		if s, err := e.strategies.Get(sig.StrategyID); err == nil && s.Risk.MaxRisk > 0 {
			risk = s.Risk.MaxRisk
		}
	}
	if !(sig.Price > 0) {
		return 0
	}
	return e.cfg.PaperCapital * risk / sig.Price
}

// GenerateSignal returns the most confident signal for symbol, or nil when
// no strategy clears the threshold. A short window is warmed up from the
// history adapter with one fetch. While the winning strategy is cooling down
// on this symbol its active signal is returned and nothing is published.
func (e *Engine) GenerateSignal(ctx context.Context, sym string) (*strategy.Signal, error) {
	const op = "engine.generate_signal"
	sym = symbol.Normalize(sym)
	if sym == "" {
		return nil, apperr.Invalid(op, "symbol is required")
	}
	st := e.state(sym)

	st.mu.Lock()
	short := len(st.window) < e.cfg.MinHistory
	st.mu.Unlock()
	if short && e.history != nil {
		if err := e.warmup(ctx, st, sym); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			logger.Warnf("[engine] warmup %s: %v", sym, err)
		}
	}

	st.mu.Lock()
	if len(st.window) == 0 {
		st.mu.Unlock()
		return nil, apperr.New(apperr.ErrDataUnavailable, op, errors.New("no ticks or history")).WithSymbol(sym)
	}
	var sigs []strategy.Signal
	if len(st.window) >= e.cfg.MinHistory {
		sigs = e.evaluate(st, e.snapshot(st), sym, false)
	}
	if len(sigs) == 0 {
		st.mu.Unlock()
		return nil, nil
	}
	sort.SliceStable(sigs, func(i, j int) bool { return sigs[i].Confidence > sigs[j].Confidence })
	best := sigs[0]
	s, err := e.strategies.Get(best.StrategyID)
	if err == nil && coolingDown(st, s, best.Timestamp) {
		st.mu.Unlock()
		if prev, ok := e.activeFor(sym, best.StrategyID); ok {
			return &prev, nil
		}
		return &best, nil
	}
	st.lastSignal[best.StrategyID] = best.Timestamp
	st.mu.Unlock()

	e.publish(best)
	return &best, nil
}

// warmup prepends recent candles to the window as synthetic ticks.
func (e *Engine) warmup(ctx context.Context, st *symbolState, sym string) error {
	tf, err := history.ParseTimeframe(e.cfg.Timeframe)
	if err != nil {
		return err
	}
	end := e.now()
	start := end.Add(-time.Duration(e.cfg.WindowSize) * tf.Duration)
	candles, err := e.history.FetchCandles(ctx, sym, tf.Key, start, end)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	cutoff := int64(math.MaxInt64)
	if len(st.window) > 0 {
		cutoff = st.window[0].Timestamp
	}
	var seeded []EnhancedTick
	for _, c := range candles {
		if c.OpenTime >= cutoff {
			break
		}
		seeded = append(seeded, EnhancedTick{
			Tick:      market.Tick{Symbol: sym, Price: c.Close, Volume: c.Volume, Timestamp: c.OpenTime},
			RawPrice:  c.Close,
			Spread:    c.Close * symbol.SpreadRate(sym),
			MidPrice:  c.Close,
			Validated: true,
		})
	}
	st.window = append(seeded, st.window...)
	if over := len(st.window) - e.cfg.WindowSize; over > 0 {
		st.window = append([]EnhancedTick(nil), st.window[over:]...)
	}
	if n := len(st.window); n > 0 {
		if ts := st.window[n-1].Timestamp; ts > st.lastTs {
			st.lastTs = ts
		}
		if st.reference <= 0 {
			st.reference = st.window[n-1].Price
		}
	}
	logger.Infof("[engine] warmed %s with %d candles", sym, len(seeded))
	return nil
}

// Run ingests ticks until ctx ends or the channel closes.
func (e *Engine) Run(ctx context.Context, ticks <-chan market.Tick) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			if _, err := e.Ingest(ctx, tick); err != nil {
				if errors.Is(err, apperr.ErrStaleTick) {
					logger.Debugf("[engine] %v", err)
					continue
				}
				logger.Warnf("[engine] ingest: %v", err)
			}
		}
	}
}

// HandleTick adapts Ingest to market.TickHandler.
func (e *Engine) HandleTick(ctx context.Context, tick market.Tick) error {
	_, err := e.Ingest(ctx, tick)
	if errors.Is(err, apperr.ErrStaleTick) {
		return nil
	}
	return err
}

// ActiveSignals returns the live signal of each symbol and strategy pair,
// newest first. A signal leaves the set when a newer one replaces it, when it
// is trimmed from the history or when its paper position closes.
func (e *Engine) ActiveSignals() []strategy.Signal {
	e.signalsMu.RLock()
	out := make([]strategy.Signal, 0, len(e.active))
	for _, s := range e.active {
		out = append(out, s)
	}
	e.signalsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SignalHistory returns the newest signals first. limit <= 0 means 50.
func (e *Engine) SignalHistory(limit int) []strategy.Signal {
	if limit <= 0 {
		limit = 50
	}
	e.signalsMu.RLock()
	defer e.signalsMu.RUnlock()
	if limit > len(e.recent) {
		limit = len(e.recent)
	}
	return append([]strategy.Signal(nil), e.recent[:limit]...)
}

// PriceValidations returns the most recent validations, oldest first.
// limit <= 0 means 50.
func (e *Engine) PriceValidations(limit int) []PriceValidation {
	if limit <= 0 {
		limit = 50
	}
	return e.validations.recent(limit)
}

func (e *Engine) DiscrepancyStats() DiscrepancyStats {
	return e.validations.stats()
}

func (e *Engine) Positions() []Position { return e.portfolio.Positions() }

func (e *Engine) PortfolioStats() PortfolioStats {
	return e.portfolio.Stats(e.now())
}

// OpenPosition opens a paper position from an active signal. qty <= 0 sizes
// it from the strategy risk.
func (e *Engine) OpenPosition(signalID string, qty float64) (Position, error) {
	e.signalsMu.RLock()
	sig, ok := e.active[signalID]
	e.signalsMu.RUnlock()
	if !ok {
		return Position{}, apperr.New(apperr.ErrNotFound, "engine.open_position", fmt.Errorf("signal %q", signalID))
	}
	if qty <= 0 {
		qty = e.quantityFor(sig)
	}
	return e.portfolio.Open(sig, qty)
}

// ClosePosition closes a paper position. price <= 0 uses the last mark.
func (e *Engine) ClosePosition(id string, price float64) (Position, error) {
	pos, err := e.portfolio.Close(id, price, e.now().UnixMilli(), exit.ReasonManual)
	if err != nil {
		return Position{}, err
	}
	e.retire(pos)
	return pos, nil
}

func (e *Engine) Stats() Stats {
	e.symbolsMu.Lock()
	n := len(e.symbols)
	e.symbolsMu.Unlock()
	return Stats{
		Ticks:       e.ticks.Load(),
		StaleTicks:  e.stale.Load(),
		Corrections: e.corrections.Load(),
		Signals:     e.published.Load(),
		Symbols:     n,
	}
}

func (e *Engine) Strategies() []strategy.Strategy {
	if e.strategies == nil {
		return nil
	}
	return e.strategies.List()
}

func (e *Engine) AddStrategy(s strategy.Strategy) error {
	if e.strategies == nil {
		return apperr.Invalid("engine.add_strategy", "no strategy registry")
	}
	return e.strategies.Add(s)
}

func (e *Engine) RemoveStrategy(id string) error {
	if e.strategies == nil {
		return apperr.New(apperr.ErrUnknownStrategy, "engine.remove_strategy", nil).WithStrategy(id)
	}
	return e.strategies.Remove(id)
}

// liquidity is the mean notional traded per tick over the window.
func liquidity(window []EnhancedTick) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, t := range window {
		sum += t.Price * t.Volume
	}
	return sum / float64(len(window))
}

// volatility is the root mean square of the last 20 simple returns. Under 20
// ticks it reports 0.02.
func volatility(window []EnhancedTick) float64 {
	const n = 20
	if len(window) < n {
		return 0.02
	}
	tail := window[len(window)-n:]
	var sum float64
	count := 0
	for i := 1; i < len(tail); i++ {
		prev := tail[i-1].Price
		if prev <= 0 {
			continue
		}
		r := (tail[i].Price - prev) / prev
		sum += r * r
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}
