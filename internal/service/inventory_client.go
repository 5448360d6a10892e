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

	"go.uber.org/zap"
)

// InventoryClient handles stock operations. Redis counters are the fast
// path; Postgres is the source of truth.
type InventoryClient struct {
	store  InventoryStore
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(store InventoryStore, redis *redisclient.Client) *InventoryClient {
	return &InventoryClient{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// Available returns the current stock of a product or variant
func (ic *InventoryClient) Available(ctx context.Context, productID, variantID string) (int, error) {
	n, err := ic.redis.GetStock(ctx, productID, variantID)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, redisclient.ErrStockNotCached) {
		ic.logger.Warn("Redis stock read failed, falling back to DB",
			zap.String("product_id", productID),
			zap.Error(err))
	}

	inv, err := ic.store.GetInventory(ctx, productID, variantID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return inv.Available, nil
}

// CheckStock verifies every line can still be fulfilled
func (ic *InventoryClient) CheckStock(ctx context.Context, lines []models.CartLine) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.CheckStock")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockOperationLatency.WithLabelValues("check").Observe(time.Since(start).Seconds())
	}()

	for _, item := range mergeStockItems(linesToItems(lines)) {
		available, err := ic.Available(ctx, item.ProductID, item.VariantID)
		if err != nil {
			util.StockOperationsFailed.WithLabelValues("check", "error").Inc()
			return util.RecordError(span, fmt.Errorf("failed to check stock for %s: %w", item.ProductID, err))
		}
		if available < item.Quantity {
			util.StockOperationsFailed.WithLabelValues("check", "insufficient_stock").Inc()
			return fmt.Errorf("%w: %s requested=%d, available=%d",
				ErrInsufficientStock, describeItem(item), item.Quantity, available)
		}
	}
	return nil
}

// DeductStock removes items from stock, all or nothing
func (ic *InventoryClient) DeductStock(ctx context.Context, items []models.StockItem) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.DeductStock")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockOperationLatency.WithLabelValues("deduct").Observe(time.Since(start).Seconds())
	}()

	cached := true
	err := ic.redis.DeductStock(ctx, items)
	switch {
	case errors.Is(err, redisclient.ErrInsufficientStock):
		util.StockOperationsFailed.WithLabelValues("deduct", "insufficient_stock").Inc()
		return ErrInsufficientStock
	case errors.Is(err, redisclient.ErrStockNotCached):
		cached = false
	case err != nil:
		ic.logger.Warn("Redis deduction failed, falling back to DB", zap.Error(err))
		cached = false
	}

	if err := ic.store.DeductStockTx(ctx, items); err != nil {
		if cached {
			cleanupCtx, cancel := cleanupContext(ctx)
			ic.restoreCache(cleanupCtx, items)
			cancel()
		}
		if errors.Is(err, store.ErrInsufficientStock) {
			util.StockOperationsFailed.WithLabelValues("deduct", "insufficient_stock").Inc()
			return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
		}
		util.StockOperationsFailed.WithLabelValues("deduct", "error").Inc()
		return util.RecordError(span, fmt.Errorf("failed to deduct stock: %w", err))
	}

	return nil
}

// RestoreStock puts items back into stock (compensation)
func (ic *InventoryClient) RestoreStock(ctx context.Context, items []models.StockItem) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.RestoreStock")
	defer span.End()

	ic.restoreCache(ctx, items)

	if err := ic.store.RestoreStock(ctx, items); err != nil {
		util.StockOperationsFailed.WithLabelValues("restore", "error").Inc()
		return util.RecordError(span, err)
	}
	return nil
}

func (ic *InventoryClient) restoreCache(ctx context.Context, items []models.StockItem) {
	if err := ic.redis.RestoreStock(ctx, items); err != nil {
		ic.logger.Error("Failed to restore stock in Redis", zap.Error(err))
	}
}

// SyncInventoryToRedis copies database stock into Redis counters
func (ic *InventoryClient) SyncInventoryToRedis(ctx context.Context) error {
	ic.logger.Info("Starting inventory sync to Redis")

	rows, err := ic.store.ListInventory(ctx)
	if err != nil {
		return fmt.Errorf("failed to list inventory: %w", err)
	}

	synced := 0
	for _, inv := range rows {
		if err := ic.redis.SetStock(ctx, inv.ProductID, inv.VariantID, inv.Available); err != nil {
			ic.logger.Error("Failed to set Redis stock",
				zap.String("product_id", inv.ProductID),
				zap.String("variant_id", inv.VariantID),
				zap.Error(err))
			continue
		}
		synced++
	}

	ic.logger.Info("Inventory sync completed", zap.Int("count", synced))
	return nil
}

func linesToItems(lines []models.CartLine) []models.StockItem {
	items := make([]models.StockItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, line.StockItem())
	}
	return items
}

// mergeStockItems sums quantities of lines that draw on the same stock
func mergeStockItems(items []models.StockItem) []models.StockItem {
	index := make(map[string]int, len(items))
	merged := make([]models.StockItem, 0, len(items))
	for _, item := range items {
		key := redisclient.StockKey(item.ProductID, item.VariantID)
		if i, ok := index[key]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

func describeItem(item models.StockItem) string {
	if item.VariantID == "" {
		return item.ProductID
	}
	return item.ProductID + "/" + item.VariantID
}
