package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/service/servicetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderFixture struct {
	svc   *OrderService
	store *servicetest.MemStore
	pub   *servicetest.Publisher
}

func newOrderFixture(t *testing.T, stock int) orderFixture {
	t.Helper()
	ms := servicetest.NewMemStore()
	ms.AddProduct(models.Product{ID: "p1", Name: "Mug", Price: decimal.NewFromInt(25000)}, stock)

	rc, _ := newTestRedis(t)
	ic := NewInventoryClient(ms, rc)
	require.NoError(t, ic.SyncInventoryToRedis(context.Background()))

	pub := &servicetest.Publisher{}
	return orderFixture{svc: NewOrderService(ms, rc, pub, ic), store: ms, pub: pub}
}

func pendingOrder(key string, qty int) models.Order {
	return models.Order{
		IdempotencyKey: key,
		Items: []models.OrderItem{{
			ProductID: "p1",
			Name:      "Mug",
			UnitPrice: decimal.NewFromInt(25000),
			Quantity:  qty,
		}},
		Shipping: models.ShippingInfo{Email: "ana@example.com"},
		Payment:  models.PaymentInfo{Method: models.PaymentMethodBankTransfer},
		Totals: models.Totals{
			Subtotal: decimal.NewFromInt(int64(25000 * qty)),
			Total:    decimal.NewFromInt(int64(25000 * qty)),
		},
		Status:    models.OrderStatusPending,
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSubmitOrder_Completes(t *testing.T) {
	f := newOrderFixture(t, 5)

	order, err := f.svc.SubmitOrder(context.Background(), pendingOrder("key-1", 2))
	require.NoError(t, err)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, 3, f.store.Available("p1", ""))

	stored, err := f.store.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, stored.Status)

	require.Len(t, f.pub.Completed, 1)
	assert.Equal(t, order.ID, f.pub.Completed[0].OrderID)
	assert.Equal(t, "ana@example.com", f.pub.Completed[0].Email)
}

func TestSubmitOrder_IsIdempotent(t *testing.T) {
	f := newOrderFixture(t, 5)
	ctx := context.Background()

	first, err := f.svc.SubmitOrder(ctx, pendingOrder("key-1", 2))
	require.NoError(t, err)

	second, err := f.svc.SubmitOrder(ctx, pendingOrder("key-1", 2))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, f.store.Available("p1", ""), "stock deducted once")
	assert.Len(t, f.store.OrdersWithStatus(""), 1)
	assert.Len(t, f.pub.Completed, 1)
}

func TestSubmitOrder_InsufficientStockThenRetry(t *testing.T) {
	f := newOrderFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.SubmitOrder(ctx, pendingOrder("key-1", 2))
	require.ErrorIs(t, err, ErrInsufficientStock)

	failed := f.store.OrdersWithStatus(models.OrderStatusFailed)
	require.Len(t, failed, 1)
	assert.NotEmpty(t, failed[0].FailureReason)
	require.Len(t, f.pub.Failed, 1)
	assert.Equal(t, failed[0].ID, f.pub.Failed[0].OrderID)
	assert.Equal(t, 1, f.store.Available("p1", ""))

	order, err := f.svc.SubmitOrder(ctx, pendingOrder("key-1", 1))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.NotEqual(t, failed[0].ID, order.ID)
	assert.Equal(t, 0, f.store.Available("p1", ""))
}

func TestSubmitOrder_CompletionFailureRestoresStock(t *testing.T) {
	f := newOrderFixture(t, 5)
	f.store.FailStatusSet = errBoom

	_, err := f.svc.SubmitOrder(context.Background(), pendingOrder("key-1", 2))
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, 5, f.store.Available("p1", ""))
	assert.Len(t, f.pub.Failed, 1)
}

func TestSubmitOrder_ConcurrentKeyIsRejected(t *testing.T) {
	f := newOrderFixture(t, 5)
	ctx := context.Background()

	locked, err := f.svc.redis.AcquireLock(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	_, err = f.svc.SubmitOrder(ctx, pendingOrder("key-1", 1))
	assert.ErrorIs(t, err, ErrOrderInProgress)
	assert.Equal(t, 5, f.store.Available("p1", ""))
}

func TestSubmitOrder_RejectsEmptyOrder(t *testing.T) {
	f := newOrderFixture(t, 5)

	_, err := f.svc.SubmitOrder(context.Background(), models.Order{IdempotencyKey: "k"})
	assert.Error(t, err)
}

func TestOrderLookups(t *testing.T) {
	f := newOrderFixture(t, 5)
	ctx := context.Background()

	order, err := f.svc.SubmitOrder(ctx, pendingOrder("key-1", 1))
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	list, err := f.svc.ListOrders(ctx, models.OrderStatusCompleted, 0, -1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// slowStore blocks stock deduction until the caller gives up and rejects
// writes on a finished context, as database/sql does
type slowStore struct {
	*servicetest.MemStore
	block atomic.Bool
}

func (s *slowStore) DeductStockTx(ctx context.Context, items []models.StockItem) error {
	if s.block.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.MemStore.DeductStockTx(ctx, items)
}

func (s *slowStore) UpdateOrderStatus(ctx context.Context, orderID, status, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemStore.UpdateOrderStatus(ctx, orderID, status, reason)
}

func TestSubmitOrder_TimeoutMarksFailedAndAllowsRetry(t *testing.T) {
	ms := servicetest.NewMemStore()
	ms.AddProduct(models.Product{ID: "p1", Name: "Mug", Price: decimal.NewFromInt(25000)}, 5)
	slow := &slowStore{MemStore: ms}
	slow.block.Store(true)

	rc, _ := newTestRedis(t)
	ic := NewInventoryClient(slow, rc)
	require.NoError(t, ic.SyncInventoryToRedis(context.Background()))
	pub := &servicetest.Publisher{}
	svc := NewOrderService(slow, rc, pub, ic)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.SubmitOrder(ctx, pendingOrder("key-1", 2))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	failed := ms.OrdersWithStatus(models.OrderStatusFailed)
	require.Len(t, failed, 1)
	assert.Empty(t, ms.OrdersWithStatus(models.OrderStatusPending))
	assert.Len(t, pub.Failed, 1)

	cached, err := rc.GetStock(context.Background(), "p1", "")
	require.NoError(t, err)
	assert.Equal(t, 5, cached, "cached stock given back")

	slow.block.Store(false)
	order, err := svc.SubmitOrder(context.Background(), pendingOrder("key-1", 2))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.NotEqual(t, failed[0].ID, order.ID)
	assert.Equal(t, 3, ms.Available("p1", ""))
}
