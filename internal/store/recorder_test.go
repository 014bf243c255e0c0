package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradepulse/internal/backtest"
	"tradepulse/internal/market"
	"tradepulse/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) StoreSignal(ctx context.Context, sig strategy.Signal) error {
	return m.Called(ctx, sig).Error(0)
}

func (m *mockStore) StoreBacktestResult(ctx context.Context, res *backtest.Result) error {
	return m.Called(ctx, res).Error(0)
}

func (m *mockStore) ListSignals(ctx context.Context, q SignalQuery) ([]strategy.Signal, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]strategy.Signal), args.Error(1)
}

func (m *mockStore) ListBacktestResults(ctx context.Context, limit int) ([]backtest.Summary, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]backtest.Summary), args.Error(1)
}

func (m *mockStore) Close() error { return m.Called().Error(0) }

// drain runs the worker over whatever is queued and returns.
func drain(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
}

func TestRecorderWritesQueuedJobs(t *testing.T) {
	ms := &mockStore{}
	sig := strategy.Signal{ID: "s1", Symbol: "BTCUSDT", Side: market.SideLong}
	res := &backtest.Result{ID: "run-1"}
	ms.On("StoreSignal", mock.Anything, sig).Return(nil).Once()
	ms.On("StoreBacktestResult", mock.Anything, res).Return(nil).Once()

	r := NewRecorder(ms, RecorderConfig{QueueSize: 4})
	r.RecordSignal(sig)
	r.RecordBacktest(res)
	r.RecordBacktest(nil)
	drain(t, r)

	ms.AssertExpectations(t)
	st := r.Stats()
	assert.Equal(t, int64(2), st.Written)
	assert.Zero(t, st.Queued)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	ms := &mockStore{}
	ms.On("StoreSignal", mock.Anything, mock.Anything).Return(nil)

	r := NewRecorder(ms, RecorderConfig{QueueSize: 1})
	r.RecordSignal(strategy.Signal{ID: "a"})
	r.RecordSignal(strategy.Signal{ID: "b"})
	assert.Equal(t, int64(1), r.Stats().Dropped)

	drain(t, r)
	ms.AssertNumberOfCalls(t, "StoreSignal", 1)
}

func TestRecorderBreakerSkipsAfterFailures(t *testing.T) {
	ms := &mockStore{}
	ms.On("StoreSignal", mock.Anything, mock.Anything).Return(errors.New("disk full")).Times(2)

	r := NewRecorder(ms, RecorderConfig{QueueSize: 8, BreakerThreshold: 2, BreakerCooldown: time.Hour})
	for _, id := range []string{"a", "b", "c", "d"} {
		r.RecordSignal(strategy.Signal{ID: id})
	}
	drain(t, r)

	ms.AssertExpectations(t)
	st := r.Stats()
	assert.Equal(t, int64(2), st.Failed)
	assert.Equal(t, int64(2), st.Skipped)
	assert.Equal(t, "OPEN", st.Breaker)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)
	for i, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT", "BTCUSDT"} {
		require.NoError(t, m.StoreSignal(ctx, strategy.Signal{ID: string(rune('a' + i)), Symbol: sym, Timestamp: int64(i)}))
	}
	all, err := m.ListSignals(ctx, SignalQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3, "capped")
	assert.Equal(t, "d", all[0].ID)

	btc, err := m.ListSignals(ctx, SignalQuery{Symbol: "btcusdt", Limit: 1})
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, "d", btc[0].ID)

	require.NoError(t, m.StoreBacktestResult(ctx, &backtest.Result{ID: "r1"}))
	require.NoError(t, m.StoreBacktestResult(ctx, &backtest.Result{ID: "r2"}))
	sums, err := m.ListBacktestResults(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "r2", sums[0].ID)
}
