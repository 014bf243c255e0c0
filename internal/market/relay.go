package market

import (
	"context"
	"fmt"
	"sync"

	"tradepulse/internal/logger"
)

// TickHandler consumes a tick from the relay. Errors are logged, not fatal.
type TickHandler func(ctx context.Context, tick Tick) error

// Relay subscribes to a Feed and forwards every tick to a handler.
type Relay struct {
	Feed    Feed
	Handler TickHandler

	OnConnected    func()
	OnDisconnected func(error)

	startOnce sync.Once
}

type RelayOption func(*Relay)

func WithRelayCallbacks(onConnect func(), onDisconnect func(error)) RelayOption {
	return func(r *Relay) {
		r.OnConnected = onConnect
		r.OnDisconnected = onDisconnect
	}
}

func NewRelay(feed Feed, handler TickHandler, opts ...RelayOption) *Relay {
	r := &Relay{Feed: feed, Handler: handler}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run subscribes and blocks until ctx ends or the feed closes its channel.
func (r *Relay) Run(ctx context.Context, symbols []string) error {
	if r.Feed == nil {
		return fmt.Errorf("relay missing feed")
	}
	if r.Handler == nil {
		return fmt.Errorf("relay missing handler")
	}
	if len(symbols) == 0 {
		return fmt.Errorf("relay requires symbols")
	}
	ticks, err := r.Feed.SubscribeTrades(ctx, symbols, SubscribeOptions{
		OnConnect:    r.OnConnected,
		OnDisconnect: r.OnDisconnected,
	})
	if err != nil {
		return err
	}
	logger.Infof("[feed] subscribed symbols=%v", symbols)
	var runErr error
	r.startOnce.Do(func() {
		runErr = r.consume(ctx, ticks)
	})
	return runErr
}

func (r *Relay) consume(ctx context.Context, ticks <-chan Tick) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			if err := r.Handler(ctx, tick); err != nil {
				logger.Debugf("[feed] tick %s@%d rejected: %v", tick.Symbol, tick.Timestamp, err)
			}
		}
	}
}

func (r *Relay) Stats() SourceStats {
	if r.Feed == nil {
		return SourceStats{}
	}
	return r.Feed.Stats()
}

func (r *Relay) Close() {
	if r.Feed != nil {
		if err := r.Feed.Close(); err != nil {
			logger.Warnf("[feed] close error: %v", err)
		}
	}
}
