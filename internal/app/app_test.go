package app

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradepulse/internal/config"
	"tradepulse/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureNotifier) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

func simulationConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{LogLevel: "error", HTTPAddr: "127.0.0.1:0"},
		Market: config.MarketConfig{
			Mode:            config.MarketModeSimulation,
			Symbols:         []string{"btc/usdt", "ETHUSDT"},
			Timeframe:       "1m",
			ReferencePrices: map[string]float64{"BTCUSDT": 60000, "ETHUSDT": 3000},
			Seed:            42,
			TickIntervalMs:  10,
		},
		Alerts: config.AlertsConfig{Rules: []config.AlertRule{{
			Name: "btc alive",
			Conditions: []config.AlertCondition{
				{Type: "price", Symbol: "BTCUSDT", Operator: "above", Value: 1},
			},
		}}},
	}
}

func TestBuildAndRunSimulation(t *testing.T) {
	n := &captureNotifier{}
	a, err := NewAppBuilder(simulationConfig(), WithNotifier(n)).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, a.symbols)
	assert.Len(t, a.Alerts().Rules(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Engine().Stats().Ticks >= 4 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return n.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, a.Engine().Stats().Symbols)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, 1, n.count(), "cooldown keeps the rule quiet")
}

func TestBuildRejectsBadAlertRule(t *testing.T) {
	cfg := simulationConfig()
	cfg.Alerts.Rules[0].Conditions[0].Operator = "equals"
	_, err := NewAppBuilder(cfg).Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts.rules[0]")
}

func TestBuildPropagatesMarketError(t *testing.T) {
	boom := errors.New("no market")
	_, err := NewAppBuilder(simulationConfig(), WithMarketStack(func(config.MarketConfig) (*MarketStack, error) {
		return nil, boom
	})).Build(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestStartupSummary(t *testing.T) {
	a, err := NewAppBuilder(simulationConfig(),
		WithNotifier(&captureNotifier{}),
		WithStore(func(config.StoreConfig) (store.Store, error) { return store.NewMemory(10), nil }),
	).Build(context.Background())
	require.NoError(t, err)
	defer a.Close()

	var buf bytes.Buffer
	a.Summary.Fprint(&buf)
	out := buf.String()
	assert.Contains(t, out, "source:    simulation")
	assert.Contains(t, out, "BTCUSDT, ETHUSDT")
	assert.Contains(t, out, "momentum-scalper")
	assert.Contains(t, out, "btc alive")
}
