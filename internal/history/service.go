package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradepulse/internal/logger"
	"tradepulse/internal/market"

	"golang.org/x/time/rate"
)

// ServiceConfig wires a Service. Cache is optional.
type ServiceConfig struct {
	Source          Source
	Cache           *Cache
	RateLimitPerMin int
	MaxBatch        int
}

// Service implements Adapter: it fills cache gaps from the source under a
// rate limit, then serves the requested range.
type Service struct {
	source   Source
	cache    *Cache
	limiter  *rate.Limiter
	maxBatch int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("history service requires a source")
	}
	perSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		perSec = 8
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 || maxBatch > 1500 {
		maxBatch = 1000
	}
	return &Service{
		source:   cfg.Source,
		cache:    cfg.Cache,
		limiter:  rate.NewLimiter(perSec, 4),
		maxBatch: maxBatch,
	}, nil
}

func (s *Service) SourceName() string { return s.source.Name() }

// FetchCandles returns the candles whose open time lies in [start, end].
// Empty results and source failures surface as ErrDataUnavailable.
func (s *Service) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Candle, error) {
	const op = "history.fetch"
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	from, to := tf.AlignRange(start.UnixMilli(), end.UnixMilli())

	var candles []market.Candle
	if s.cache != nil {
		candles, err = s.fromCache(ctx, symbol, tf, from, to)
	} else {
		candles, err = s.fetchRange(ctx, symbol, tf, from, to, nil)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, unavailable(op, symbol, err)
	}
	candles = clip(candles, from, to)
	if len(candles) == 0 {
		return nil, unavailable(op, symbol, fmt.Errorf("no %s candles between %s and %s",
			tf.Key, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)))
	}
	if err := ValidateSeries(candles); err != nil {
		return nil, unavailable(op, symbol, err)
	}
	return candles, nil
}

// Recent returns up to n closed bars ending now.
func (s *Service) Recent(ctx context.Context, symbol, timeframe string, n int) ([]market.Candle, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 100
	}
	end := time.Now()
	return s.FetchCandles(ctx, symbol, tf.Key, end.Add(-time.Duration(n)*tf.Duration), end)
}

func (s *Service) fromCache(ctx context.Context, symbol string, tf Timeframe, from, to int64) ([]market.Candle, error) {
	present, err := s.cache.OpenTimes(ctx, symbol, tf.Key, from, to)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	gaps := tf.FindGaps(present, from, to)
	if len(gaps) > 0 {
		logger.Debugf("[history] %s %s: %d cached, %d gaps", symbol, tf.Key, len(present), len(gaps))
	}
	for _, gap := range gaps {
		if _, err := s.fetchRange(ctx, symbol, tf, gap.From, gap.To, func(batch []market.Candle) error {
			_, err := s.cache.Insert(ctx, symbol, tf.Key, batch)
			return err
		}); err != nil {
			return nil, err
		}
	}
	return s.cache.Range(ctx, symbol, tf.Key, from, to)
}

// fetchRange pages through [from, to] in maxBatch chunks. sink, when set,
// receives every batch.
func (s *Service) fetchRange(ctx context.Context, symbol string, tf Timeframe, from, to int64, sink func([]market.Candle) error) ([]market.Candle, error) {
	step := tf.millis()
	var out []market.Candle
	cursor := from
	for cursor <= to {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		remaining := int((to-cursor)/step) + 1
		if remaining > s.maxBatch {
			remaining = s.maxBatch
		}
		batch, err := s.source.Fetch(ctx, FetchRequest{
			Symbol:   symbol,
			Interval: tf.SourceInterval,
			Start:    cursor,
			End:      to + step - 1,
			Limit:    remaining,
		})
		if err != nil {
			return nil, fmt.Errorf("%s fetch: %w", s.source.Name(), err)
		}
		if len(batch) == 0 {
			break
		}
		if sink != nil {
			if err := sink(batch); err != nil {
				return nil, fmt.Errorf("cache write: %w", err)
			}
		}
		out = append(out, batch...)
		last := batch[len(batch)-1].OpenTime
		if last < cursor {
			break
		}
		cursor = last + step
	}
	return out, nil
}

func clip(candles []market.Candle, from, to int64) []market.Candle {
	out := candles[:0]
	for _, c := range candles {
		if c.OpenTime >= from && c.OpenTime <= to {
			out = append(out, c)
		}
	}
	return out
}
