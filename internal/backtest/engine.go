// Package backtest replays historical candles through a strategy and scores
// the resulting trades.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tradepulse/internal/apperr"
	"tradepulse/internal/history"
	"tradepulse/internal/indicator"
	"tradepulse/internal/logger"
	"tradepulse/internal/performance"
	"tradepulse/internal/strategy"
	"tradepulse/internal/strategy/exit"

	"github.com/google/uuid"
)

// Strategies resolves strategy ids.
type Strategies interface {
	Get(id string) (strategy.Strategy, error)
}

// ResultSink receives finished runs. Implementations must not block.
type ResultSink interface {
	RecordBacktest(res *Result)
}

// Result is a finished run.
type Result struct {
	ID           string             `json:"id"`
	Config       Config             `json:"config"`
	StrategyName string             `json:"strategy_name"`
	Trades       []Trade            `json:"trades"`
	Report       performance.Report `json:"report"`
	FinalCapital float64            `json:"final_capital"`
	Bars         int                `json:"bars"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	DurationMs   int64              `json:"duration_ms"`
}

// Summary is the list view of a Result.
type Summary struct {
	ID          string    `json:"id"`
	StrategyID  string    `json:"strategy_id"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	TotalTrades int       `json:"total_trades"`
	TotalReturn float64   `json:"total_return"`
	WinRate     float64   `json:"win_rate"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Sharpe      float64   `json:"sharpe"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (r *Result) Summary() Summary {
	m := r.Report.Metrics
	return Summary{
		ID:          r.ID,
		StrategyID:  r.Config.StrategyID,
		Symbol:      r.Config.Symbol,
		Timeframe:   r.Config.Timeframe,
		TotalTrades: m.TotalTrades,
		TotalReturn: m.TotalReturn,
		WinRate:     m.WinRate,
		MaxDrawdown: m.MaxDrawdown,
		Sharpe:      m.Sharpe,
		FinishedAt:  r.FinishedAt,
	}
}

type EngineConfig struct {
	MaxConcurrent int
	ResultsCap    int
	Indicators    indicator.Options
	Performance   performance.Options
}

// Engine runs backtests. Runs are independent; the semaphore bounds how many
// execute at once.
type Engine struct {
	strategies Strategies
	history    history.Adapter
	sink       ResultSink
	opts       indicator.Options
	perf       performance.Options
	sem        chan struct{}
	cap        int

	mu      sync.RWMutex
	results map[string]*Result
	order   []string
}

func NewEngine(cfg EngineConfig, strategies Strategies, adapter history.Adapter, sink ResultSink) *Engine {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	capacity := cfg.ResultsCap
	if capacity <= 0 {
		capacity = 100
	}
	perf := cfg.Performance
	if perf.PeriodsPerYear == 0 && perf.RiskFreeRate == 0 {
		perf = performance.DefaultOptions()
	}
	return &Engine{
		strategies: strategies,
		history:    adapter,
		sink:       sink,
		opts:       cfg.Indicators,
		perf:       perf,
		sem:        make(chan struct{}, maxConcurrent),
		cap:        capacity,
		results:    make(map[string]*Result),
	}
}

// Run executes one backtest synchronously. Any failure discards the partial
// run.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	const op = "backtest.run"
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	strat, err := e.strategies.Get(cfg.StrategyID)
	if err != nil {
		if errors.Is(err, apperr.ErrUnknownStrategy) {
			return nil, apperr.New(apperr.ErrUnknownStrategy, op, err).WithSymbol(cfg.Symbol).WithStrategy(cfg.StrategyID)
		}
		return nil, err
	}
	spec := strat.ExitSpec()
	if cfg.Exit != nil {
		spec = *cfg.Exit
	}
	rule, err := exit.Build(spec)
	if err != nil {
		return nil, apperr.New(apperr.ErrInvalidConfig, op, err).WithSymbol(cfg.Symbol).WithStrategy(cfg.StrategyID)
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: waiting for slot: %w", op, ctx.Err())
	}
	defer func() { <-e.sem }()

	started := time.Now()
	tf, _ := history.ParseTimeframe(cfg.Timeframe)
	fetchFrom := cfg.Start.Add(-time.Duration(cfg.WarmupBars) * tf.Duration)
	candles, err := e.history.FetchCandles(ctx, cfg.Symbol, cfg.Timeframe, fetchFrom, cfg.End)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, apperr.New(apperr.ErrDataUnavailable, op, err).WithSymbol(cfg.Symbol).WithStrategy(cfg.StrategyID)
	}
	if err := history.ValidateSeries(candles); err != nil {
		return nil, apperr.New(apperr.ErrDataUnavailable, op, err).WithSymbol(cfg.Symbol).WithStrategy(cfg.StrategyID)
	}
	if len(candles) <= cfg.WarmupBars {
		return nil, apperr.New(apperr.ErrDataUnavailable, op,
			fmt.Errorf("%d candles, need more than %d warmup bars", len(candles), cfg.WarmupBars)).
			WithSymbol(cfg.Symbol).WithStrategy(cfg.StrategyID)
	}

	runID := uuid.NewString()
	logger.Infof("[backtest] run %s: %s %s %s bars=%d", runID, cfg.StrategyID, cfg.Symbol, cfg.Timeframe, len(candles))
	sim := newSimulation(runID, cfg, strat, rule, e.opts)
	trades, err := sim.run(ctx, candles)
	if err != nil {
		logger.Warnf("[backtest] run %s aborted: %v", runID, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &Result{
		ID:           runID,
		Config:       cfg,
		StrategyName: strat.Name,
		Trades:       trades,
		Report:       performance.Calculate(perfTrades(trades), cfg.InitialCapital, cfg.Start, cfg.End, e.perf),
		FinalCapital: sim.capital,
		Bars:         len(candles) - cfg.WarmupBars,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	res.DurationMs = res.FinishedAt.Sub(started).Milliseconds()
	e.remember(res)
	if e.sink != nil {
		e.sink.RecordBacktest(res)
	}
	m := res.Report.Metrics
	logger.Infof("[backtest] run %s done: trades=%d return=%.4f winrate=%.2f maxdd=%.4f",
		runID, m.TotalTrades, m.TotalReturn, m.WinRate, m.MaxDrawdown)
	return res, nil
}

func perfTrades(trades []Trade) []performance.Trade {
	out := make([]performance.Trade, len(trades))
	for i, t := range trades {
		out[i] = t.perf()
	}
	return out
}

func (e *Engine) remember(res *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[res.ID] = res
	e.order = append(e.order, res.ID)
	for len(e.order) > e.cap {
		delete(e.results, e.order[0])
		e.order = e.order[1:]
	}
}

// Get returns a kept result by id.
func (e *Engine) Get(id string) (*Result, error) {
	e.mu.RLock()
	res, ok := e.results[id]
	e.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "backtest.get", fmt.Errorf("run %q", id))
	}
	return res, nil
}

// List returns summaries of kept runs, newest first.
func (e *Engine) List() []Summary {
	e.mu.RLock()
	out := make([]Summary, 0, len(e.results))
	for _, res := range e.results {
		out = append(out, res.Summary())
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	return out
}
