package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"tradepulse/internal/apperr"
	"tradepulse/internal/backtest"
	"tradepulse/internal/logger"
	"tradepulse/internal/pkg/circuit"
	"tradepulse/internal/strategy"
)

type RecorderConfig struct {
	QueueSize        int
	WriteTimeout     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c RecorderConfig) withDefaults() RecorderConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = time.Minute
	}
	return c
}

type RecorderStats struct {
	Queued  int    `json:"queued"`
	Written int64  `json:"written"`
	Failed  int64  `json:"failed"`
	Dropped int64  `json:"dropped"`
	Skipped int64  `json:"skipped"`
	Breaker string `json:"breaker"`
}

type job struct {
	signal *strategy.Signal
	result *backtest.Result
}

// Recorder queues writes for a single worker. Record calls never block: a
// full queue drops the write, and an open breaker skips it.
type Recorder struct {
	store   Store
	cfg     RecorderConfig
	jobs    chan job
	breaker *circuit.Breaker

	written, failed, dropped, skipped atomic.Int64
}

func NewRecorder(s Store, cfg RecorderConfig) *Recorder {
	cfg = cfg.withDefaults()
	return &Recorder{
		store:   s,
		cfg:     cfg,
		jobs:    make(chan job, cfg.QueueSize),
		breaker: circuit.New("store", cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
}

func (r *Recorder) RecordSignal(sig strategy.Signal) {
	r.enqueue(job{signal: &sig}, "signal "+sig.ID)
}

func (r *Recorder) RecordBacktest(res *backtest.Result) {
	if res == nil {
		return
	}
	r.enqueue(job{result: res}, "backtest "+res.ID)
}

func (r *Recorder) enqueue(j job, what string) {
	select {
	case r.jobs <- j:
	default:
		r.dropped.Add(1)
		logger.Warnf("[store] queue full, dropped %s", what)
	}
}

// Run writes queued jobs until ctx ends, then drains what is already queued.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case j := <-r.jobs:
			r.write(j)
		case <-ctx.Done():
			for {
				select {
				case j := <-r.jobs:
					r.write(j)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(j job) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()
	err := r.breaker.Do(func() error {
		if j.signal != nil {
			return r.store.StoreSignal(ctx, *j.signal)
		}
		return r.store.StoreBacktestResult(ctx, j.result)
	})
	switch {
	case err == nil:
		r.written.Add(1)
	case errors.Is(err, circuit.ErrOpen):
		r.skipped.Add(1)
		logger.Debugf("[store] breaker open, skipped write")
	default:
		r.failed.Add(1)
		logger.Warnf("[store] %v", apperr.New(apperr.ErrPersistence, "store.write", fmt.Errorf("%s: %w", describe(j), err)))
	}
}

func describe(j job) string {
	if j.signal != nil {
		return "signal " + j.signal.ID
	}
	return "backtest " + j.result.ID
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Queued:  len(r.jobs),
		Written: r.written.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
		Skipped: r.skipped.Load(),
		Breaker: r.breaker.State().String(),
	}
}
