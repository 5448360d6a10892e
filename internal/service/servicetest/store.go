// Package servicetest provides in-memory collaborators for service and API tests.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
)

// MemStore is an in-memory stand-in for the Postgres store
type MemStore struct {
	mu            sync.Mutex
	products      map[string]models.Product
	variants      map[string]models.ProductVariant
	stock         map[string]int
	orders        map[string]*models.Order
	Rules         models.ShippingConfig
	ruleLoads     int
	methods       []models.PaymentMethod
	FailDeduct    error
	FailStatusSet error
}

// NewMemStore returns a store seeded with the default payment methods
func NewMemStore() *MemStore {
	return &MemStore{
		products: make(map[string]models.Product),
		variants: make(map[string]models.ProductVariant),
		stock:    make(map[string]int),
		orders:   make(map[string]*models.Order),
		methods: []models.PaymentMethod{
			{Code: models.PaymentMethodCashOnDelivery, Label: "Cash on delivery", Enabled: true, SortOrder: 1},
			{Code: models.PaymentMethodBankTransfer, Label: "Bank transfer", Enabled: true, SortOrder: 2},
			{Code: models.PaymentMethodCard, Label: "Card", Enabled: false, SortOrder: 3},
		},
	}
}

// AddProduct registers an active product with stock for its base variant
func (s *MemStore) AddProduct(p models.Product, available int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.IsActive = true
	s.products[p.ID] = p
	s.stock[redisclient.StockKey(p.ID, "")] = available
}

// AddVariant registers a variant with its own stock
func (s *MemStore) AddVariant(v models.ProductVariant, available int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ProductID+"/"+v.ID] = v
	s.stock[redisclient.StockKey(v.ProductID, v.ID)] = available
}

// Available returns the stored stock of a product or variant
func (s *MemStore) Available(productID, variantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[redisclient.StockKey(productID, variantID)]
}

func (s *MemStore) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (s *MemStore) GetVariant(_ context.Context, productID, variantID string) (*models.ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[productID+"/"+variantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (s *MemStore) GetProducts(context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) GetInventory(_ context.Context, productID, variantID string) (*models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.stock[redisclient.StockKey(productID, variantID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.Inventory{ProductID: productID, VariantID: variantID, Available: n}, nil
}

func (s *MemStore) ListInventory(context.Context) ([]models.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Inventory
	for id := range s.products {
		if n, ok := s.stock[redisclient.StockKey(id, "")]; ok {
			out = append(out, models.Inventory{ProductID: id, Available: n})
		}
	}
	for _, v := range s.variants {
		out = append(out, models.Inventory{ProductID: v.ProductID, VariantID: v.ID, Available: s.stock[redisclient.StockKey(v.ProductID, v.ID)]})
	}
	return out, nil
}

func (s *MemStore) DeductStockTx(_ context.Context, items []models.StockItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDeduct != nil {
		return s.FailDeduct
	}
	for _, item := range merge(items) {
		if s.stock[redisclient.StockKey(item.ProductID, item.VariantID)] < item.Quantity {
			return fmt.Errorf("%w: %s", store.ErrInsufficientStock, item.ProductID)
		}
	}
	for _, item := range items {
		s.stock[redisclient.StockKey(item.ProductID, item.VariantID)] -= item.Quantity
	}
	return nil
}

func (s *MemStore) RestoreStock(_ context.Context, items []models.StockItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.stock[redisclient.StockKey(item.ProductID, item.VariantID)] += item.Quantity
	}
	return nil
}

func (s *MemStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.IdempotencyKey == order.IdempotencyKey && o.Status != models.OrderStatusFailed {
			return store.ErrDuplicateOrder
		}
	}
	stored := *order
	s.orders[order.ID] = &stored
	return nil
}

func (s *MemStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *MemStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.IdempotencyKey == key && o.Status != models.OrderStatusFailed {
			copied := *o
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemStore) UpdateOrderStatus(_ context.Context, orderID, status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStatusSet != nil && status == models.OrderStatusCompleted {
		return s.FailStatusSet
	}
	o, ok := s.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	o.FailureReason = reason
	return nil
}

func (s *MemStore) ListOrders(_ context.Context, status string, limit, offset int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// OrdersWithStatus lists stored orders; an empty status matches all
func (s *MemStore) OrdersWithStatus(status string) []models.Order {
	all, _ := s.ListOrders(context.Background(), status, 1000, 0)
	return all
}

func (s *MemStore) GetShippingConfig(context.Context) (models.ShippingConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ruleLoads++
	return s.Rules.Clone(), nil
}

func (s *MemStore) ReplaceShippingRules(_ context.Context, rules []models.ShippingRule, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rules = models.ShippingConfig{Rules: rules, UpdatedAt: updatedAt}.Clone()
	return nil
}

// Loads counts GetShippingConfig calls
func (s *MemStore) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ruleLoads
}

func (s *MemStore) GetPaymentMethods(context.Context) ([]models.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PaymentMethod(nil), s.methods...), nil
}

func (s *MemStore) SetPaymentMethodEnabled(_ context.Context, code string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.methods {
		if s.methods[i].Code == code {
			s.methods[i].Enabled = enabled
			return nil
		}
	}
	return store.ErrNotFound
}

// Publisher records published events
type Publisher struct {
	mu        sync.Mutex
	Completed []*models.OrderCompletedEvent
	Failed    []*models.OrderFailedEvent
	Config    []*models.ShippingConfigUpdatedEvent
	Err       error
}

func (p *Publisher) PublishOrderCompleted(_ context.Context, e *models.OrderCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Completed = append(p.Completed, e)
	return p.Err
}

func (p *Publisher) PublishOrderFailed(_ context.Context, e *models.OrderFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Failed = append(p.Failed, e)
	return p.Err
}

func (p *Publisher) PublishShippingConfigUpdated(_ context.Context, e *models.ShippingConfigUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Config = append(p.Config, e)
	return p.Err
}

func merge(items []models.StockItem) []models.StockItem {
	totals := make(map[string]int, len(items))
	var order []models.StockItem
	for _, item := range items {
		key := redisclient.StockKey(item.ProductID, item.VariantID)
		if _, ok := totals[key]; !ok {
			order = append(order, item)
		}
		totals[key] += item.Quantity
	}
	for i := range order {
		order[i].Quantity = totals[redisclient.StockKey(order[i].ProductID, order[i].VariantID)]
	}
	return order
}
