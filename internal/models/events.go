package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCompleted        = "ORDER_COMPLETED"
	EventTypeOrderFailed           = "ORDER_FAILED"
	EventTypeShippingConfigUpdated = "SHIPPING_CONFIG_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCompletedEvent published when an order is persisted and stock deducted
type OrderCompletedEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	Email         string          `json:"email"`
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	Items         []OrderItemData `json:"items"`
}

// OrderFailedEvent published when a submitted order could not be completed
type OrderFailedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// ShippingConfigUpdatedEvent published after an admin replaces the shipping rules
type ShippingConfigUpdatedEvent struct {
	BaseEvent
	RuleCount int       `json:"rule_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
