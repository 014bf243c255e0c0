package market

import "context"

type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

type SourceStats struct {
	Reconnects      int
	SubscribeErrors int
	LastError       string
}

// Feed pushes live trade ticks. Reconnect and backoff belong to the
// implementation, not to consumers.
type Feed interface {
	SubscribeTrades(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan Tick, error)
	Stats() SourceStats
	Close() error
}
