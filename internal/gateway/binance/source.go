// Package binance adapts the Binance futures API to the history.Source and
// market.Feed interfaces.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradepulse/internal/history"
	"tradepulse/internal/logger"
	"tradepulse/internal/market"
	"tradepulse/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

const maxKlineLimit = 1500

type Source struct {
	cfg    Config
	client *futures.Client
	now    func() time.Time

	mu          sync.Mutex
	tradeCancel context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

var (
	_ history.Source = (*Source)(nil)
	_ market.Feed    = (*Source)(nil)
)

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	if final.ProxyEnabled {
		wsProxy := final.WSProxyURL
		if wsProxy == "" {
			wsProxy = final.RESTProxyURL
		}
		if wsProxy != "" {
			futures.SetWsProxyUrl(wsProxy)
		}
	}
	return &Source{cfg: final, client: client, now: time.Now}, nil
}

func (s *Source) Name() string { return "binance" }

// Fetch pulls one page of klines. Candles that have not closed yet are
// dropped so the backtester never sees a moving bar.
func (s *Source) Fetch(ctx context.Context, req history.FetchRequest) ([]market.Candle, error) {
	sym := symbol.Normalize(req.Symbol)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	limit := req.Limit
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	svc := s.client.NewKlinesService().Symbol(sym).Interval(interval).Limit(limit)
	if req.Start > 0 {
		svc = svc.StartTime(req.Start)
	}
	if req.End > 0 {
		svc = svc.EndTime(req.End)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return dropUnclosed(out, s.now().UnixMilli()), nil
}

func dropUnclosed(candles []market.Candle, nowMs int64) []market.Candle {
	for len(candles) > 0 && candles[len(candles)-1].CloseTime >= nowMs {
		candles = candles[:len(candles)-1]
	}
	return candles
}

// SubscribeTrades streams aggregate trades as ticks. The stream reconnects
// with exponential backoff until ctx ends; the channel closes afterwards.
func (s *Source) SubscribeTrades(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.Tick, error) {
	clean := symbol.NormalizeList(symbols)
	if len(clean) == 0 {
		return nil, fmt.Errorf("no valid symbols for trade subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	out := make(chan market.Tick, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.tradeCancel != nil {
		s.tradeCancel()
	}
	s.tradeCancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.runTradeLoop(subCtx, clean, out, opts)
	}()
	return out, nil
}

func (s *Source) runTradeLoop(ctx context.Context, symbols []string, out chan<- market.Tick, opts market.SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		handler := func(event *futures.WsAggTradeEvent) {
			tick, ok := convertAggTrade(event)
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
			case out <- tick:
			default:
				logger.Warnf("[binance] aggTrade channel full, drop %s", tick.Symbol)
			}
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := futures.WsCombinedAggTradeServe(symbols, handler, errHandler)
		if err != nil {
			s.recordSubscribeError(err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			logger.Warnf("[binance] aggTrade subscribe failed, retry in %s: %v", delay, err)
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay, s.cfg.MaxBackoff)
			continue
		}
		delay = time.Second
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		logger.Infof("[binance] aggTrade stream connected: %s", strings.Join(symbols, ","))
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.recordReconnect(errCopy)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(errCopy)
		}
		logger.Warnf("[binance] aggTrade stream closed, reconnect in %s: %v", delay, errCopy)
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay, s.cfg.MaxBackoff)
	}
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tradeCancel != nil {
		s.tradeCancel()
		s.tradeCancel = nil
	}
	return nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

// convertAggTrade maps an aggTrade event to a tick stamped with the trade
// time.
func convertAggTrade(ev *futures.WsAggTradeEvent) (market.Tick, bool) {
	if ev == nil {
		return market.Tick{}, false
	}
	price := parseFloat(ev.Price)
	if price <= 0 {
		return market.Tick{}, false
	}
	sym := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if sym == "" {
		return market.Tick{}, false
	}
	ts := ev.TradeTime
	if ts <= 0 {
		ts = ev.Time
	}
	return market.Tick{
		Symbol:    sym,
		Price:     price,
		Volume:    parseFloat(ev.Quantity),
		Timestamp: ts,
	}, true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextDelay doubles current up to limit.
func nextDelay(current, limit time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if limit > 0 && next > limit {
		next = limit
	}
	return next
}

func (s *Source) recordSubscribeError(err error) {
	if err == nil {
		return
	}
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil && err.Error() != "" {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}
