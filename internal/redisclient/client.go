package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/deduct_stock.lua
var deductStockScript string

//go:embed scripts/restore_stock.lua
var restoreStockScript string

const shippingConfigKey = "config:shipping"

var (
	// ErrInsufficientStock is returned when a cached counter is below the requested quantity
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockNotCached is returned when a counter is missing; callers fall back to the database
	ErrStockNotCached = errors.New("stock not cached")
)

type Client struct {
	rdb           *redis.Client
	deductScript  *redis.Script
	restoreScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		deductScript:  redis.NewScript(deductStockScript),
		restoreScript: redis.NewScript(restoreStockScript),
	}, nil
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// StockKey is the counter key of a product or one of its variants
func StockKey(productID, variantID string) string {
	if variantID == "" {
		return "stock:" + productID
	}
	return "stock:" + productID + ":" + variantID
}

// SetStock overwrites a stock counter
func (c *Client) SetStock(ctx context.Context, productID, variantID string, available int) error {
	return c.rdb.Set(ctx, StockKey(productID, variantID), available, 0).Err()
}

// GetStock returns a cached stock counter; ErrStockNotCached when absent
func (c *Client) GetStock(ctx context.Context, productID, variantID string) (int, error) {
	n, err := c.rdb.Get(ctx, StockKey(productID, variantID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrStockNotCached
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeductStock atomically decrements every counter or none of them
func (c *Client) DeductStock(ctx context.Context, items []models.StockItem) error {
	keys, quantities := stockArgs(items)
	if len(keys) == 0 {
		return nil
	}

	result, err := c.deductScript.Run(ctx, c.rdb, keys, quantities...).Int64()
	if err != nil {
		return fmt.Errorf("deduct stock script failed: %w", err)
	}

	switch result {
	case 1:
		return nil
	case 0:
		return ErrInsufficientStock
	default:
		return ErrStockNotCached
	}
}

// RestoreStock increments cached counters (compensation)
func (c *Client) RestoreStock(ctx context.Context, items []models.StockItem) error {
	keys, quantities := stockArgs(items)
	if len(keys) == 0 {
		return nil
	}

	if err := c.restoreScript.Run(ctx, c.rdb, keys, quantities...).Err(); err != nil {
		return fmt.Errorf("restore stock script failed: %w", err)
	}
	return nil
}

// stockArgs merges repeated products into one key each, in key order
func stockArgs(items []models.StockItem) ([]string, []interface{}) {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		totals[StockKey(item.ProductID, item.VariantID)] += item.Quantity
	}

	keys := make([]string, 0, len(totals))
	for key := range totals {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	quantities := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		quantities = append(quantities, strconv.Itoa(totals[key]))
	}
	return keys, quantities
}

// GetShippingConfig returns the cached shipping config; found is false on a miss
func (c *Client) GetShippingConfig(ctx context.Context) (cfg models.ShippingConfig, found bool, err error) {
	raw, err := c.rdb.Get(ctx, shippingConfigKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ShippingConfig{}, false, nil
	}
	if err != nil {
		return models.ShippingConfig{}, false, err
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return models.ShippingConfig{}, false, fmt.Errorf("decode cached shipping config: %w", err)
	}
	return cfg, true, nil
}

// SetShippingConfig caches the shipping config with TTL
func (c *Client) SetShippingConfig(ctx context.Context, cfg models.ShippingConfig, ttl time.Duration) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, shippingConfigKey, raw, ttl).Err()
}

// DeleteShippingConfig drops the cached shipping config
func (c *Client) DeleteShippingConfig(ctx context.Context) error {
	return c.rdb.Del(ctx, shippingConfigKey).Err()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the value stored for key; found is false when absent
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (value string, found bool, err error) {
	value, err = c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
