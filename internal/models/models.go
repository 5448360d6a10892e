package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID        string          `db:"id" json:"id"`
	SKU       string          `db:"sku" json:"sku"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	IsActive  bool            `db:"is_active" json:"isActive"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// ProductVariant is a purchasable option of a product (size, color...).
// A nil Price means the variant sells at the product price.
type ProductVariant struct {
	ID        string              `db:"id" json:"id"`
	ProductID string              `db:"product_id" json:"productId"`
	Label     string              `db:"label" json:"label"`
	Price     decimal.NullDecimal `db:"price" json:"price"`
}

// Inventory represents stock for a product or one of its variants.
// VariantID is empty for products sold without variants.
type Inventory struct {
	ProductID string    `db:"product_id" json:"productId"`
	VariantID string    `db:"variant_id" json:"variantId"`
	Available int       `db:"available" json:"available"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// StockItem is a quantity of one product or variant
type StockItem struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

// CartLine is one addressable row in a shopping cart
type CartLine struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"productId"`
	VariantID    string          `json:"variantId,omitempty"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	MaxQuantity  int             `json:"maxQuantity"`
	VariantLabel string          `json:"variantLabel,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

// LineTotal returns unitPrice x quantity
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// StockItem returns the stock the line consumes
func (l CartLine) StockItem() StockItem {
	return StockItem{ProductID: l.ProductID, VariantID: l.VariantID, Quantity: l.Quantity}
}

// Destination identifies where an order ships to
type Destination struct {
	Department string `json:"department"`
	City       string `json:"city"`
}

// ShippingInfo is the address block collected by the first checkout step
type ShippingInfo struct {
	FullName   string `json:"fullName" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	Department string `json:"department" validate:"required"`
	Notes      string `json:"notes,omitempty"`
}

// Destination returns the shipping destination of the address
func (s ShippingInfo) Destination() Destination {
	return Destination{Department: s.Department, City: s.City}
}

// PaymentInfo is collected by the payment step
type PaymentInfo struct {
	Method string `json:"method" validate:"required"`
}

// PaymentMethod is a store-configured way of paying
type PaymentMethod struct {
	Code      string `db:"code" json:"code"`
	Label     string `db:"label" json:"label"`
	Enabled   bool   `db:"enabled" json:"enabled"`
	SortOrder int    `db:"sort_order" json:"sortOrder"`
}

// Payment method codes
const (
	PaymentMethodCashOnDelivery = "cash_on_delivery"
	PaymentMethodBankTransfer   = "bank_transfer"
	PaymentMethodCard           = "card"
)

// Totals is the pricing breakdown of a cart
type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	Shipping     decimal.Decimal `json:"shipping"`
	Total        decimal.Decimal `json:"total"`
	FreeShipping bool            `json:"freeShipping"`
}

// Order is the immutable snapshot produced by a checkout submission
type Order struct {
	ID             string         `json:"id"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Items          []OrderItem    `json:"items"`
	Shipping       ShippingInfo   `json:"shipping"`
	Payment        PaymentInfo    `json:"payment"`
	Method         ShippingMethod `json:"shippingMethod"`
	Totals         Totals         `json:"totals"`
	Status         string         `json:"status"`
	FailureReason  string         `json:"failureReason,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// OrderItem captures a cart line at submission time
type OrderItem struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      string          `db:"order_id" json:"orderId"`
	ProductID    string          `db:"product_id" json:"productId"`
	VariantID    string          `db:"variant_id" json:"variantId,omitempty"`
	Name         string          `db:"name" json:"name"`
	VariantLabel string          `db:"variant_label" json:"variantLabel,omitempty"`
	Notes        string          `db:"notes" json:"notes,omitempty"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unitPrice"`
	Quantity     int             `db:"quantity" json:"quantity"`
}

// StockItem returns the stock the item consumes
func (i OrderItem) StockItem() StockItem {
	return StockItem{ProductID: i.ProductID, VariantID: i.VariantID, Quantity: i.Quantity}
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusFailed    = "FAILED"
)

// IsTerminalOrderStatus reports whether an order status can no longer change
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusFailed
}
