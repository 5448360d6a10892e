package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

type orderRow struct {
	ID             string          `db:"id"`
	IdempotencyKey string          `db:"idempotency_key"`
	Status         string          `db:"status"`
	FailureReason  string          `db:"failure_reason"`
	ShippingInfo   types.JSONText  `db:"shipping_info"`
	PaymentMethod  string          `db:"payment_method"`
	ShippingMethod types.JSONText  `db:"shipping_method"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	Tax            decimal.Decimal `db:"tax"`
	ShippingCost   decimal.Decimal `db:"shipping_cost"`
	Total          decimal.Decimal `db:"total"`
	FreeShipping   bool            `db:"free_shipping"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

const orderColumns = `id, idempotency_key, status, failure_reason, shipping_info, payment_method,
	shipping_method, subtotal, tax, shipping_cost, total, free_shipping, created_at, updated_at`

func newOrderRow(order *models.Order) (orderRow, error) {
	shippingInfo, err := json.Marshal(order.Shipping)
	if err != nil {
		return orderRow{}, err
	}
	method, err := json.Marshal(order.Method)
	if err != nil {
		return orderRow{}, err
	}
	return orderRow{
		ID:             order.ID,
		IdempotencyKey: order.IdempotencyKey,
		Status:         order.Status,
		FailureReason:  order.FailureReason,
		ShippingInfo:   shippingInfo,
		PaymentMethod:  order.Payment.Method,
		ShippingMethod: method,
		Subtotal:       order.Totals.Subtotal,
		Tax:            order.Totals.Tax,
		ShippingCost:   order.Totals.Shipping,
		Total:          order.Totals.Total,
		FreeShipping:   order.Totals.FreeShipping,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}, nil
}

func (r orderRow) toModel() (*models.Order, error) {
	order := &models.Order{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		Status:         r.Status,
		FailureReason:  r.FailureReason,
		Payment:        models.PaymentInfo{Method: r.PaymentMethod},
		Totals: models.Totals{
			Subtotal:     r.Subtotal,
			Tax:          r.Tax,
			Shipping:     r.ShippingCost,
			Total:        r.Total,
			FreeShipping: r.FreeShipping,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := r.ShippingInfo.Unmarshal(&order.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping info of order %s: %w", r.ID, err)
	}
	if err := r.ShippingMethod.Unmarshal(&order.Method); err != nil {
		return nil, fmt.Errorf("decode shipping method of order %s: %w", r.ID, err)
	}
	return order, nil
}

// CreateOrder inserts the order and its items in one transaction.
// A second live (not FAILED) order with the same idempotency key returns ErrDuplicateOrder.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	row, err := newOrderRow(order)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (:id, :idempotency_key, :status, :failure_reason, :shipping_info, :payment_method,
			:shipping_method, :subtotal, :tax, :shipping_cost, :total, :free_shipping, :created_at, :updated_at)`,
		row)
	if isUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, product_id, variant_id, name, variant_label, notes, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			item.OrderID, item.ProductID, item.VariantID, item.Name, item.VariantLabel, item.Notes,
			item.UnitPrice, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, row)
}

// GetOrderByIdempotencyKey retrieves the live order for an idempotency key.
// It returns nil, nil when no order exists or every attempt failed.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+orderColumns+" FROM orders WHERE idempotency_key = $1 AND status <> 'FAILED'", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, row)
}

// UpdateOrderStatus updates order status and failure reason
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, status, reason string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3",
		status, reason, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}

// ListOrders retrieves orders newest first, optionally filtered by status.
// Items are not loaded.
func (s *Store) ListOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(rows))
	for _, row := range rows {
		order, err := row.toModel()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, order_id, product_id, variant_id, name, variant_label, notes, unit_price, quantity
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	return items, err
}

func (s *Store) withItems(ctx context.Context, row orderRow) (*models.Order, error) {
	order, err := row.toModel()
	if err != nil {
		return nil, err
	}
	order.Items, err = s.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}
