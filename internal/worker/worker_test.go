package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/service/servicetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep() int {
	s.calls.Add(1)
	return 1
}

func TestSessionWorker_SweepsUntilCancelled(t *testing.T) {
	sweeper := &countingSweeper{}
	w := NewSessionWorker(sweeper, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNewSessionWorker_DefaultInterval(t *testing.T) {
	w := NewSessionWorker(&countingSweeper{}, 0)
	assert.Equal(t, time.Minute, w.interval)
}

// queuedSource hands its messages to the handler, then waits for cancellation
type queuedSource struct {
	messages []kafka.Message
	handled  chan error
	closed   atomic.Bool
}

func (q *queuedSource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range q.messages {
		q.handled <- handler(ctx, msg)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (q *queuedSource) Close() error {
	q.closed.Store(true)
	return nil
}

func configEvent(t *testing.T, ruleCount int) kafka.Message {
	t.Helper()
	value, err := json.Marshal(models.ShippingConfigUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeShippingConfigUpdated,
			Timestamp: time.Now(),
		},
		RuleCount: ruleCount,
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte("shipping-config"), Value: value}
}

func TestConfigWorker_DropsSnapshotOnEvent(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	ms := servicetest.NewMemStore()
	ms.Rules = models.ShippingConfig{Rules: []models.ShippingRule{
		{ID: "bog", Target: models.City{Name: "Bogotá"}, Cost: decimal.NewFromInt(5000), IsActive: true},
		{ID: "ant", Target: models.Department{Name: "Antioquia"}, Cost: decimal.NewFromInt(9000), IsActive: true},
	}}
	configSvc := service.NewShippingConfigService(ms, rc, &servicetest.Publisher{}, time.Minute)

	cfg, err := configSvc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 2)

	// another instance replaced the rules and cleared the shared cache
	require.NoError(t, ms.ReplaceShippingRules(ctx, ms.Rules.Rules[:1], time.Now()))
	require.NoError(t, rc.DeleteShippingConfig(ctx))

	source := &queuedSource{messages: []kafka.Message{configEvent(t, 1)}, handled: make(chan error, 1)}
	w := NewConfigWorker(source, configSvc)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Start(workerCtx) }()

	select {
	case err := <-source.handled:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("event not handled")
	}

	cfg, err = configSvc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "bog", cfg.Rules[0].ID)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, w.Stop())
	assert.True(t, source.closed.Load())
}
