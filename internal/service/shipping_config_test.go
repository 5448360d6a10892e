package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/service/servicetest"
	"storefront/internal/shipping"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRules() []models.ShippingRule {
	return []models.ShippingRule{
		{
			ID:           "bog",
			Target:       models.City{Name: "Bogotá"},
			Cost:         decimal.NewFromInt(5000),
			DeliveryDays: models.DeliveryDays{Min: 1, Max: 2},
			AllowCOD:     true,
			IsActive:     true,
		},
		{
			ID:           "ant",
			Target:       models.Department{Name: "Antioquia"},
			Cost:         decimal.NewFromInt(9000),
			DeliveryDays: models.DeliveryDays{Min: 2, Max: 4},
			IsActive:     true,
		},
	}
}

func newConfigFixture(t *testing.T) (*ShippingConfigService, *servicetest.MemStore, *servicetest.Publisher) {
	t.Helper()
	ms := servicetest.NewMemStore()
	ms.Rules = models.ShippingConfig{Rules: sampleRules()}
	rc, _ := newTestRedis(t)
	pub := &servicetest.Publisher{}
	return NewShippingConfigService(ms, rc, pub, 0), ms, pub
}

func TestSnapshot_LoadsOnce(t *testing.T) {
	svc, ms, _ := newConfigFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg, err := svc.Snapshot(ctx)
			assert.NoError(t, err)
			assert.Len(t, cfg.Rules, 2)
		}()
	}
	wg.Wait()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, ms.Loads(), 1)
}

func TestSnapshot_UsesRedisCache(t *testing.T) {
	svc, ms, _ := newConfigFixture(t)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, ms.Loads())

	// a second instance sharing Redis does not hit the database
	other := NewShippingConfigService(ms, svc.redis, &servicetest.Publisher{}, 0)
	cfg, err := other.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, cfg.Rules, 2)
	assert.Equal(t, 1, ms.Loads())
}

func TestReplace_RejectsInvalidRules(t *testing.T) {
	svc, ms, pub := newConfigFixture(t)

	dup := []models.ShippingRule{
		{Target: models.City{Name: "Cali"}, Cost: decimal.NewFromInt(1), IsActive: true},
		{Target: models.City{Name: "cali "}, Cost: decimal.NewFromInt(2), IsActive: true},
	}
	_, err := svc.Replace(context.Background(), dup)
	assert.ErrorIs(t, err, shipping.ErrInvalidRule)

	assert.Len(t, ms.Rules.Rules, 2, "stored rules untouched")
	assert.Empty(t, pub.Config)
}

func TestReplace_SwapsSnapshotAndPublishes(t *testing.T) {
	svc, ms, pub := newConfigFixture(t)
	ctx := context.Background()

	before, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	next := []models.ShippingRule{{
		Target:   models.Department{Name: "Valle del Cauca"},
		Cost:     decimal.NewFromInt(8000),
		IsActive: true,
	}}
	replaced, err := svc.Replace(ctx, next)
	require.NoError(t, err)
	require.Len(t, replaced.Rules, 1)
	assert.NotEmpty(t, replaced.Rules[0].ID)
	assert.Empty(t, next[0].ID, "caller slice not modified")

	after, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, after.Rules, 1)
	assert.Equal(t, models.Department{Name: "Valle del Cauca"}, after.Rules[0].Target)

	assert.Len(t, before.Rules, 2, "earlier snapshot is unchanged")
	assert.Len(t, ms.Rules.Rules, 1)
	require.Len(t, pub.Config, 1)
	assert.Equal(t, 1, pub.Config[0].RuleCount)
}

func TestHandleConfigUpdated_DropsSnapshot(t *testing.T) {
	svc, ms, _ := newConfigFixture(t)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	// another instance changed the rules and cleared the shared cache
	require.NoError(t, ms.ReplaceShippingRules(ctx, sampleRules()[:1], ms.Rules.UpdatedAt))
	require.NoError(t, svc.redis.DeleteShippingConfig(ctx))

	cfg, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, cfg.Rules, 2, "stale until the event arrives")

	require.NoError(t, svc.HandleConfigUpdated(ctx, &models.ShippingConfigUpdatedEvent{RuleCount: 1}))

	cfg, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, cfg.Rules, 1)
}

// gatedRuleStore holds its first load open after reading the rules
type gatedRuleStore struct {
	*servicetest.MemStore
	calls   atomic.Int32
	started chan struct{}
	gate    chan struct{}
}

func (s *gatedRuleStore) GetShippingConfig(ctx context.Context) (models.ShippingConfig, error) {
	cfg, err := s.MemStore.GetShippingConfig(ctx)
	if s.calls.Add(1) == 1 {
		close(s.started)
		<-s.gate
	}
	return cfg, err
}

func TestReplace_DuringSlowLoadKeepsNewRules(t *testing.T) {
	ms := servicetest.NewMemStore()
	ms.Rules = models.ShippingConfig{Rules: sampleRules()}
	gated := &gatedRuleStore{MemStore: ms, started: make(chan struct{}), gate: make(chan struct{})}
	rc, _ := newTestRedis(t)
	svc := NewShippingConfigService(gated, rc, &servicetest.Publisher{}, time.Minute)
	ctx := context.Background()

	slow := make(chan models.ShippingConfig, 1)
	go func() {
		cfg, err := svc.Snapshot(ctx)
		assert.NoError(t, err)
		slow <- cfg
	}()
	<-gated.started

	next := []models.ShippingRule{{
		ID:       "cali",
		Target:   models.City{Name: "Cali"},
		Cost:     decimal.NewFromInt(4000),
		IsActive: true,
	}}
	_, err := svc.Replace(ctx, next)
	require.NoError(t, err)

	// a caller after the update does not wait for the older load
	cfg, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "cali", cfg.Rules[0].ID)

	close(gated.gate)
	assert.Len(t, (<-slow).Rules, 2)

	cached, found, err := rc.GetShippingConfig(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, cached.Rules, 1)
	assert.Equal(t, "cali", cached.Rules[0].ID)

	cfg, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "cali", cfg.Rules[0].ID)
}

func TestQuote(t *testing.T) {
	svc, _, _ := newConfigFixture(t)
	quotes := NewQuoteService(svc,
		shipping.Fallback{Label: "National", Cost: decimal.NewFromInt(15000)},
		pricing.Policy{TaxRate: decimal.RequireFromString("0.08"), FreeShippingThreshold: decimal.NewFromInt(50000)})

	method, totals, err := quotes.Quote(context.Background(),
		models.Destination{Department: "Antioquia", City: "Medellín"}, decimal.NewFromInt(100000))
	require.NoError(t, err)

	assert.Equal(t, "ant", method.RuleID)
	assert.True(t, decimal.NewFromInt(9000).Equal(method.Cost))
	assert.True(t, totals.FreeShipping)
	assert.True(t, decimal.NewFromInt(8000).Equal(totals.Tax))
	assert.True(t, decimal.NewFromInt(108000).Equal(totals.Total))
}
