package service

import (
	"context"
	"errors"
	"time"

	"storefront/internal/models"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderInProgress   = errors.New("order with this idempotency key is being processed")
	ErrOrderNotFound     = errors.New("order not found")
)

// OrderStore persists orders
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status, reason string) error
	ListOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, error)
}

// InventoryStore is the durable stock ledger
type InventoryStore interface {
	GetInventory(ctx context.Context, productID, variantID string) (*models.Inventory, error)
	ListInventory(ctx context.Context) ([]models.Inventory, error)
	DeductStockTx(ctx context.Context, items []models.StockItem) error
	RestoreStock(ctx context.Context, items []models.StockItem) error
}

// CatalogStore reads products and variants
type CatalogStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID string) (*models.ProductVariant, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
}

// ShippingRuleStore persists the shipping rule set
type ShippingRuleStore interface {
	GetShippingConfig(ctx context.Context) (models.ShippingConfig, error)
	ReplaceShippingRules(ctx context.Context, rules []models.ShippingRule, updatedAt time.Time) error
}

// PaymentMethodStore persists store payment methods
type PaymentMethodStore interface {
	GetPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
	SetPaymentMethodEnabled(ctx context.Context, code string, enabled bool) error
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishShippingConfigUpdated(ctx context.Context, event *models.ShippingConfigUpdatedEvent) error
}
