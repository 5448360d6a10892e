package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	idempotencyTTL = 24 * time.Hour
	submitLockTTL  = 30 * time.Second
	cleanupTimeout = 5 * time.Second
)

// cleanupContext keeps the request's values but not its deadline, so
// compensation still runs after a submission timed out
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

// OrderService persists submitted checkouts. It implements checkout.Submitter.
type OrderService struct {
	store           OrderStore
	redis           *redisclient.Client
	eventPublisher  EventPublisher
	inventoryClient *InventoryClient
	logger          *zap.Logger
	now             func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	redis *redisclient.Client,
	eventPublisher EventPublisher,
	inventoryClient *InventoryClient,
) *OrderService {
	return &OrderService{
		store:           store,
		redis:           redis,
		eventPublisher:  eventPublisher,
		inventoryClient: inventoryClient,
		logger:          util.GetLogger(),
		now:             time.Now,
	}
}

// SubmitOrder stores the order, deducts its stock and marks it COMPLETED.
// Submissions are idempotent on order.IdempotencyKey: a key that already
// produced a completed order returns that order unchanged. When stock cannot
// be deducted the attempt is marked FAILED and the key may be retried.
func (s *OrderService) SubmitOrder(ctx context.Context, order models.Order) (models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SubmitOrder")
	defer span.End()

	util.OrdersSubmittedTotal.Inc()

	if order.IdempotencyKey == "" {
		order.IdempotencyKey = uuid.New().String()
	}
	if len(order.Items) == 0 {
		return models.Order{}, errors.New("order has no items")
	}

	if existing, ok := s.cachedOrder(ctx, order.IdempotencyKey); ok {
		return *existing, nil
	}

	locked, err := s.redis.AcquireLock(ctx, order.IdempotencyKey, submitLockTTL)
	if err != nil {
		// the unique index still guards against duplicates
		s.logger.Warn("Failed to acquire submit lock", zap.Error(err))
	} else if !locked {
		return models.Order{}, ErrOrderInProgress
	} else {
		defer func() {
			if err := s.redis.ReleaseLock(context.Background(), order.IdempotencyKey); err != nil {
				s.logger.Warn("Failed to release submit lock", zap.Error(err))
			}
		}()
	}

	existing, err := s.store.GetOrderByIdempotencyKey(ctx, order.IdempotencyKey)
	if err != nil {
		return models.Order{}, util.RecordError(span, fmt.Errorf("failed to check idempotency: %w", err))
	}
	if existing != nil {
		return s.duplicate(ctx, existing)
	}

	now := s.now().UTC()
	order.ID = uuid.New().String()
	order.Status = models.OrderStatusPending
	order.FailureReason = ""
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	if err := s.store.CreateOrder(ctx, &order); err != nil {
		if errors.Is(err, store.ErrDuplicateOrder) {
			return models.Order{}, ErrOrderInProgress
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return models.Order{}, util.RecordError(span, fmt.Errorf("failed to create order: %w", err))
	}
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("idempotency_key", order.IdempotencyKey))

	items := stockItems(order.Items)
	if err := s.inventoryClient.DeductStock(ctx, items); err != nil {
		reason := "stock_error"
		if errors.Is(err, ErrInsufficientStock) {
			reason = "insufficient_stock"
		}
		s.fail(ctx, &order, reason, err)
		return models.Order{}, fmt.Errorf("stock deduction failed: %w", err)
	}

	if err := s.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCompleted, ""); err != nil {
		cleanupCtx, cancel := cleanupContext(ctx)
		restoreErr := s.inventoryClient.RestoreStock(cleanupCtx, items)
		cancel()
		if restoreErr != nil {
			s.logger.Error("Failed to compensate stock deduction",
				zap.String("order_id", order.ID),
				zap.Error(restoreErr))
		}
		s.fail(ctx, &order, "db_error", err)
		return models.Order{}, util.RecordError(span, fmt.Errorf("failed to complete order: %w", err))
	}
	order.Status = models.OrderStatusCompleted

	if err := s.redis.SetIdempotencyKey(ctx, order.IdempotencyKey, order.ID, idempotencyTTL); err != nil {
		s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
	}

	util.OrdersCompletedTotal.Inc()
	s.publishCompleted(ctx, &order)

	return order, nil
}

// cachedOrder resolves a completed order through the Redis idempotency key
func (s *OrderService) cachedOrder(ctx context.Context, key string) (*models.Order, bool) {
	orderID, found, err := s.redis.GetIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to read idempotency key", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	existing, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil || existing.Status != models.OrderStatusCompleted {
		return nil, false
	}

	util.OrdersDeduplicatedTotal.Inc()
	s.logger.Info("Duplicate order submission detected",
		zap.String("idempotency_key", key),
		zap.String("order_id", existing.ID))
	return existing, true
}

func (s *OrderService) duplicate(ctx context.Context, existing *models.Order) (models.Order, error) {
	if existing.Status != models.OrderStatusCompleted {
		return models.Order{}, ErrOrderInProgress
	}

	util.OrdersDeduplicatedTotal.Inc()
	if err := s.redis.SetIdempotencyKey(ctx, existing.IdempotencyKey, existing.ID, idempotencyTTL); err != nil {
		s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
	}
	s.logger.Info("Duplicate order submission detected",
		zap.String("idempotency_key", existing.IdempotencyKey),
		zap.String("order_id", existing.ID))
	return *existing, nil
}

// fail marks the attempt FAILED so its idempotency key can be retried
func (s *OrderService) fail(ctx context.Context, order *models.Order, reason string, cause error) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()

	util.OrdersFailedTotal.WithLabelValues(reason).Inc()

	order.Status = models.OrderStatusFailed
	order.FailureReason = cause.Error()
	if err := s.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusFailed, order.FailureReason); err != nil {
		s.logger.Error("Failed to mark order as failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	s.logger.Warn("Order failed",
		zap.String("order_id", order.ID),
		zap.String("reason", reason),
		zap.Error(cause))

	event := &models.OrderFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderFailed,
			Timestamp: s.now(),
		},
		OrderID: order.ID,
		Reason:  order.FailureReason,
	}
	if err := s.eventPublisher.PublishOrderFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderFailed event", zap.Error(err))
	}
}

func (s *OrderService) publishCompleted(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	event := &models.OrderCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCompleted,
			Timestamp: s.now(),
		},
		OrderID:       order.ID,
		Email:         order.Shipping.Email,
		PaymentMethod: order.Payment.Method,
		Total:         order.Totals.Total,
		Items:         items,
	}
	if err := s.eventPublisher.PublishOrderCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCompleted event", zap.Error(err))
	}
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

// ListOrders returns recent orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListOrders(ctx, status, limit, offset)
}

func stockItems(items []models.OrderItem) []models.StockItem {
	out := make([]models.StockItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.StockItem())
	}
	return out
}
