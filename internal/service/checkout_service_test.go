package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/service/servicetest"
	"storefront/internal/shipping"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	checkout *CheckoutService
	catalog  *CatalogService
	sessions *SessionManager
	store    *servicetest.MemStore
	pub      *servicetest.Publisher
}

func newCheckoutFixture(t *testing.T) checkoutFixture {
	t.Helper()
	ms := servicetest.NewMemStore()
	ms.Rules = models.ShippingConfig{Rules: sampleRules()}
	ms.AddProduct(models.Product{ID: "lamp", Name: "Lamp", Price: decimal.NewFromInt(30000)}, 3)

	rc, _ := newTestRedis(t)
	pub := &servicetest.Publisher{}
	inventory := NewInventoryClient(ms, rc)
	require.NoError(t, inventory.SyncInventoryToRedis(context.Background()))

	sessions := NewSessionManager(time.Hour)
	svc := NewCheckoutService(
		sessions,
		NewShippingConfigService(ms, rc, pub, time.Minute),
		NewPaymentMethodService(ms),
		inventory,
		NewOrderService(ms, rc, pub, inventory),
		CheckoutSettings{
			Pricing:       pricing.Policy{TaxRate: decimal.RequireFromString("0.08"), FreeShippingThreshold: decimal.NewFromInt(50000)},
			Fallback:      shipping.Fallback{Label: "National", Cost: decimal.NewFromInt(15000)},
			SubmitTimeout: 5 * time.Second,
		},
	)

	return checkoutFixture{
		checkout: svc,
		catalog:  NewCatalogService(ms, inventory),
		sessions: sessions,
		store:    ms,
		pub:      pub,
	}
}

func shippingInfo(city, department string) models.ShippingInfo {
	return models.ShippingInfo{
		FullName:   "Ana Gómez",
		Email:      "ana@example.com",
		Phone:      "3000000000",
		Address:    "Calle 1 # 2-3",
		City:       city,
		Department: department,
	}
}

func TestCheckout_EndToEnd(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	cartID, c := f.sessions.CreateCart()
	_, err := f.catalog.AddToCart(ctx, c, AddItemRequest{ProductID: "lamp", Quantity: 2})
	require.NoError(t, err)

	flow, err := f.checkout.StartCheckout(ctx, cartID)
	require.NoError(t, err)

	require.NoError(t, flow.SetShippingInfo(shippingInfo("Bogota", "Cundinamarca")))
	st, err := f.checkout.Advance(flow.ID())
	require.NoError(t, err)
	assert.Equal(t, "bog", st.Method.RuleID)
	assert.True(t, st.Totals.FreeShipping)

	require.NoError(t, flow.SetPaymentInfo(models.PaymentInfo{Method: models.PaymentMethodCashOnDelivery}))
	_, err = f.checkout.Advance(flow.ID())
	require.NoError(t, err)

	st, err = f.checkout.Submit(ctx, flow.ID())
	require.NoError(t, err)

	assert.Equal(t, checkout.StatusSuccess, st.Status)
	require.NotNil(t, st.Order)
	assert.Equal(t, models.OrderStatusCompleted, st.Order.Status)
	assert.True(t, decimal.NewFromInt(64800).Equal(st.Order.Totals.Total))
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 1, f.store.Available("lamp", ""))
	assert.Len(t, f.pub.Completed, 1)
}

func TestCheckout_DisabledPaymentMethod(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	cartID, c := f.sessions.CreateCart()
	_, err := f.catalog.AddToCart(ctx, c, AddItemRequest{ProductID: "lamp", Quantity: 1})
	require.NoError(t, err)

	flow, err := f.checkout.StartCheckout(ctx, cartID)
	require.NoError(t, err)
	require.NoError(t, flow.SetShippingInfo(shippingInfo("Bogotá", "Cundinamarca")))
	_, err = f.checkout.Advance(flow.ID())
	require.NoError(t, err)

	require.NoError(t, flow.SetPaymentInfo(models.PaymentInfo{Method: models.PaymentMethodCard}))
	_, err = f.checkout.Advance(flow.ID())

	var verr *checkout.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "method")
}

func TestCheckout_StockGoneBeforeSubmit(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	cartID, c := f.sessions.CreateCart()
	_, err := f.catalog.AddToCart(ctx, c, AddItemRequest{ProductID: "lamp", Quantity: 3})
	require.NoError(t, err)

	flow, err := f.checkout.StartCheckout(ctx, cartID)
	require.NoError(t, err)
	require.NoError(t, flow.SetShippingInfo(shippingInfo("Medellín", "Antioquia")))
	_, err = f.checkout.Advance(flow.ID())
	require.NoError(t, err)
	require.NoError(t, flow.SetPaymentInfo(models.PaymentInfo{Method: models.PaymentMethodBankTransfer}))
	_, err = f.checkout.Advance(flow.ID())
	require.NoError(t, err)

	// another customer buys one lamp first
	require.NoError(t, f.checkout.inventoryClient.DeductStock(ctx, []models.StockItem{{ProductID: "lamp", Quantity: 1}}))

	st, err := f.checkout.Submit(ctx, flow.ID())
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, checkout.StatusError, st.Status)
	assert.Equal(t, checkout.StepReview, st.Step)
	assert.Equal(t, 3, c.Count(), "cart kept for retry")
	assert.Empty(t, f.store.OrdersWithStatus(""), "revalidation stops the order before it is stored")
}

func TestCheckout_Errors(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.checkout.StartCheckout(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	cartID, _ := f.sessions.CreateCart()
	_, err = f.checkout.StartCheckout(ctx, cartID)
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)

	_, err = f.checkout.Advance("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.checkout.Submit(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
