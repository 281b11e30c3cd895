package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/notifier"
)

type mockNotifier struct {
	name        string
	received    []*backtest.Result
	batchCalled int
	fail        bool
}

func (m *mockNotifier) Name() string                   { return m.name }
func (m *mockNotifier) Init(cfg notifier.Config) error { return nil }
func (m *mockNotifier) Send(ctx context.Context, res *backtest.Result) error {
	m.received = append(m.received, res)
	if m.fail {
		return errors.New("send failed")
	}
	return nil
}
func (m *mockNotifier) SendBatch(ctx context.Context, results []*backtest.Result) error {
	m.batchCalled++
	m.received = append(m.received, results...)
	if m.fail {
		return errors.New("batch failed")
	}
	return nil
}

func result(strategy, symbol string, pass bool, trades int) *backtest.Result {
	return &backtest.Result{
		Strategy: strategy,
		Symbol:   symbol,
		Stats: backtest.Stats{
			ClosedTrades:  trades,
			MeetsCriteria: pass,
		},
	}
}

func newRouter(cfg Config) (*Router, *mockNotifier, *time.Time) {
	registry := notifier.NewRegistry()
	mock := &mockNotifier{name: "mock"}
	registry.Register(mock)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := New(cfg, registry, nil)
	r.now = func() time.Time { return now }
	return r, mock, &now
}

func TestRouter_Route_Passing(t *testing.T) {
	r, mock, _ := newRouter(DefaultConfig())

	require.NoError(t, r.Route(context.Background(), result("cci_adx", "BTCUSDT", true, 3)))
	assert.Len(t, mock.received, 1)
}

func TestRouter_Route_FiltersFailing(t *testing.T) {
	r, mock, _ := newRouter(DefaultConfig())

	require.NoError(t, r.Route(context.Background(), result("cci_adx", "BTCUSDT", false, 3)))
	assert.Empty(t, mock.received)
}

func TestRouter_Route_AllResultsWhenNotOnlyPassing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OnlyPassing = false
	r, mock, _ := newRouter(cfg)

	require.NoError(t, r.Route(context.Background(), result("cci_adx", "BTCUSDT", false, 3)))
	assert.Len(t, mock.received, 1)
}

func TestRouter_Route_MinTrades(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinTrades = 5
	r, mock, _ := newRouter(cfg)

	r.Route(context.Background(), result("cci_adx", "BTCUSDT", true, 4))
	assert.Empty(t, mock.received)

	r.Route(context.Background(), result("cci_adx", "BTCUSDT", true, 5))
	assert.Len(t, mock.received, 1)
}

func TestRouter_Route_Cooldown(t *testing.T) {
	r, mock, now := newRouter(Config{OnlyPassing: true, Cooldown: time.Hour})
	ctx := context.Background()

	r.Route(ctx, result("cci_adx", "BTCUSDT", true, 1))
	r.Route(ctx, result("cci_adx", "BTCUSDT", true, 1))
	assert.Len(t, mock.received, 1, "second result inside cooldown should be dropped")

	// a different strategy on the same symbol has its own cooldown
	r.Route(ctx, result("confluence", "BTCUSDT", true, 1))
	assert.Len(t, mock.received, 2)

	*now = now.Add(time.Hour)
	r.Route(ctx, result("cci_adx", "BTCUSDT", true, 1))
	assert.Len(t, mock.received, 3)
}

func TestRouter_Route_NotifierFailureIsNotReturned(t *testing.T) {
	r, mock, _ := newRouter(DefaultConfig())
	mock.fail = true

	assert.NoError(t, r.Route(context.Background(), result("cci_adx", "BTCUSDT", true, 1)))
}

func TestRouter_Route_NilRegistry(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	assert.NoError(t, r.Route(context.Background(), result("cci_adx", "BTCUSDT", true, 1)))
}

func TestRouter_RouteBatch(t *testing.T) {
	r, mock, _ := newRouter(DefaultConfig())

	n := r.RouteBatch(context.Background(), []*backtest.Result{
		result("cci_adx", "BTCUSDT", true, 2),
		result("cci_adx", "ETHUSDT", false, 2),
		result("confluence", "BTCUSDT", true, 0),
		nil,
	})

	assert.Equal(t, 1, n)
	assert.Equal(t, 1, mock.batchCalled)
	require.Len(t, mock.received, 1)
	assert.Equal(t, "BTCUSDT", mock.received[0].Symbol)
}

func TestRouter_RouteBatch_NothingPasses(t *testing.T) {
	r, mock, _ := newRouter(DefaultConfig())

	n := r.RouteBatch(context.Background(), []*backtest.Result{result("cci_adx", "BTCUSDT", false, 2)})

	assert.Zero(t, n)
	assert.Zero(t, mock.batchCalled)
}

func TestRouter_ClearCooldown(t *testing.T) {
	r, mock, _ := newRouter(Config{Cooldown: time.Hour})
	ctx := context.Background()

	r.Route(ctx, result("cci_adx", "BTCUSDT", true, 1))
	r.ClearCooldown("cci_adx", "BTCUSDT")
	r.Route(ctx, result("cci_adx", "BTCUSDT", true, 1))
	assert.Len(t, mock.received, 2)

	r.ClearAllCooldowns()
	assert.Equal(t, 0, r.GetStats()["cooldowns_active"])
}

func TestRouter_CleanupExpiredCooldowns(t *testing.T) {
	r, _, now := newRouter(Config{Cooldown: time.Hour})
	ctx := context.Background()

	r.Route(ctx, result("cci_adx", "BTCUSDT", true, 1))
	*now = now.Add(90 * time.Minute)
	r.Route(ctx, result("cci_adx", "ETHUSDT", true, 1))

	assert.Zero(t, r.CleanupExpiredCooldowns(), "nothing is older than 2h yet")

	*now = now.Add(45 * time.Minute)
	assert.Equal(t, 1, r.CleanupExpiredCooldowns())
	assert.Equal(t, 1, r.GetStats()["cooldowns_active"])
}

func TestRouter_StartCleanupRoutine(t *testing.T) {
	r, _, now := newRouter(Config{Cooldown: time.Millisecond})
	r.Route(context.Background(), result("cci_adx", "BTCUSDT", true, 1))
	*now = now.Add(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartCleanupRoutine(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return r.GetStats()["cooldowns_active"] == 0
	}, time.Second, 5*time.Millisecond)
}
