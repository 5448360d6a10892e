package redisclient

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestDeductStock(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetStock(ctx, "p1", "", 5))
	require.NoError(t, c.SetStock(ctx, "p2", "red", 2))

	err := c.DeductStock(ctx, []models.StockItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", VariantID: "red", Quantity: 1},
		{ProductID: "p1", Quantity: 1},
	})
	require.NoError(t, err)

	n, err := c.GetStock(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.GetStock(ctx, "p2", "red")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeductStock_AllOrNothing(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetStock(ctx, "p1", "", 5))
	require.NoError(t, c.SetStock(ctx, "p2", "", 1))

	err := c.DeductStock(ctx, []models.StockItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	n, err := c.GetStock(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, 5, n, "no counter changes when one item is short")
}

func TestDeductStock_NotCached(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	err := c.DeductStock(ctx, []models.StockItem{{ProductID: "missing", Quantity: 1}})
	assert.ErrorIs(t, err, ErrStockNotCached)

	_, err = c.GetStock(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrStockNotCached)
}

func TestRestoreStock(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetStock(ctx, "p1", "", 1))
	require.NoError(t, c.RestoreStock(ctx, []models.StockItem{
		{ProductID: "p1", Quantity: 4},
		{ProductID: "uncached", Quantity: 2},
	}))

	n, err := c.GetStock(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.False(t, mr.Exists(StockKey("uncached", "")))
}

func TestShippingConfigCache(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, found, err := c.GetShippingConfig(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	cfg := models.ShippingConfig{
		Rules: []models.ShippingRule{{
			ID:           "r1",
			Target:       models.Department{Name: "Antioquia"},
			Cost:         decimal.NewFromInt(9000),
			DeliveryDays: models.DeliveryDays{Min: 2, Max: 4},
			IsActive:     true,
		}},
		UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.SetShippingConfig(ctx, cfg, time.Minute))

	got, found, err := c.GetShippingConfig(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got.Rules, 1)
	assert.Equal(t, models.Department{Name: "Antioquia"}, got.Rules[0].Target)
	assert.True(t, cfg.Rules[0].Cost.Equal(got.Rules[0].Cost))

	mr.FastForward(2 * time.Minute)
	_, found, err = c.GetShippingConfig(ctx)
	require.NoError(t, err)
	assert.False(t, found, "entry expires after TTL")

	require.NoError(t, c.SetShippingConfig(ctx, cfg, time.Minute))
	require.NoError(t, c.DeleteShippingConfig(ctx))
	_, found, err = c.GetShippingConfig(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIdempotencyKeyAndLock(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, found, err := c.GetIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetIdempotencyKey(ctx, "k1", "order-1", time.Hour))
	value, found, err := c.GetIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "order-1", value)

	ok, err := c.AcquireLock(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "k1"))
	ok, err = c.AcquireLock(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
