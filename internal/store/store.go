package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateOrder    = errors.New("order with idempotency key already exists")
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates missing tables and seeds the default payment methods
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// GetProductByID retrieves an active product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT id, sku, name, price, is_active, created_at FROM products WHERE id = $1 AND is_active", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetVariant retrieves a variant belonging to productID
func (s *Store) GetVariant(ctx context.Context, productID, variantID string) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := s.db.GetContext(ctx, &variant,
		"SELECT id, product_id, label, price FROM product_variants WHERE id = $1 AND product_id = $2",
		variantID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant %s of product %s: %w", variantID, productID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// GetProducts retrieves all active products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT id, sku, name, price, is_active, created_at FROM products WHERE is_active ORDER BY name")
	return products, err
}

// GetInventory retrieves stock for a product or variant
func (s *Store) GetInventory(ctx context.Context, productID, variantID string) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.db.GetContext(ctx, &inv,
		"SELECT product_id, variant_id, available, updated_at FROM inventory WHERE product_id = $1 AND variant_id = $2",
		productID, variantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inventory for %s/%s: %w", productID, variantID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInventory retrieves every inventory row
func (s *Store) ListInventory(ctx context.Context) ([]models.Inventory, error) {
	var rows []models.Inventory
	err := s.db.SelectContext(ctx, &rows,
		"SELECT product_id, variant_id, available, updated_at FROM inventory ORDER BY product_id, variant_id")
	return rows, err
}

// DeductStockTx deducts all items in one transaction. Rows are locked
// (FOR UPDATE) in key order so concurrent deductions cannot deadlock.
func (s *Store) DeductStockTx(ctx context.Context, items []models.StockItem) error {
	sorted := make([]models.StockItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID < sorted[j].ProductID
		}
		return sorted[i].VariantID < sorted[j].VariantID
	})

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, item := range sorted {
		var available int
		err = tx.GetContext(ctx, &available,
			"SELECT available FROM inventory WHERE product_id = $1 AND variant_id = $2 FOR UPDATE",
			item.ProductID, item.VariantID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s has no inventory", ErrInsufficientStock, item.ProductID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock inventory: %w", err)
		}

		if available < item.Quantity {
			return fmt.Errorf("%w: %s available=%d, requested=%d",
				ErrInsufficientStock, item.ProductID, available, item.Quantity)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE inventory SET available = available - $1, updated_at = NOW() WHERE product_id = $2 AND variant_id = $3",
			item.Quantity, item.ProductID, item.VariantID)
		if err != nil {
			return fmt.Errorf("failed to deduct stock: %w", err)
		}
	}

	return tx.Commit()
}

// RestoreStock puts items back (compensation)
func (s *Store) RestoreStock(ctx context.Context, items []models.StockItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, item := range items {
		_, err = tx.ExecContext(ctx,
			"UPDATE inventory SET available = available + $1, updated_at = NOW() WHERE product_id = $2 AND variant_id = $3",
			item.Quantity, item.ProductID, item.VariantID)
		if err != nil {
			return fmt.Errorf("failed to restore stock: %w", err)
		}
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
