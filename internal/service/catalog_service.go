package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// AddItemRequest is a customer's request to put a product in the cart
type AddItemRequest struct {
	ProductID     string `json:"productId" binding:"required"`
	VariantID     string `json:"variantId"`
	Quantity      int    `json:"quantity" binding:"required,min=1"`
	Notes         string `json:"notes"`
	MergeStrategy string `json:"mergeStrategy"`
}

// CatalogService builds cart lines from the product catalog
type CatalogService struct {
	store           CatalogStore
	inventoryClient *InventoryClient
	logger          *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore, inventoryClient *InventoryClient) *CatalogService {
	return &CatalogService{
		store:           store,
		inventoryClient: inventoryClient,
		logger:          util.GetLogger(),
	}
}

// ListProducts returns the active catalog
func (cs *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	products, err := cs.store.GetProducts(ctx)
	return products, util.RecordError(span, err)
}

// AddToCart prices the requested product from the catalog, caps it at the
// current stock and adds it to c. An empty merge strategy merges.
func (cs *CatalogService) AddToCart(ctx context.Context, c *cart.Store, req AddItemRequest) (models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.AddToCart")
	defer span.End()

	strategy := cart.MergeQuantities
	if strings.TrimSpace(req.MergeStrategy) != "" {
		var err error
		if strategy, err = cart.ParseMergeStrategy(req.MergeStrategy); err != nil {
			return models.CartLine{}, err
		}
	}

	line, err := cs.lineFor(ctx, req)
	if err != nil {
		return models.CartLine{}, util.RecordError(span, err)
	}

	added, err := c.AddItem(line, strategy)
	if err != nil {
		return models.CartLine{}, err
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	cs.logger.Debug("Item added to cart",
		zap.String("line_id", added.ID),
		zap.Int("quantity", added.Quantity))
	return added, nil
}

func (cs *CatalogService) lineFor(ctx context.Context, req AddItemRequest) (models.CartLine, error) {
	product, err := cs.store.GetProductByID(ctx, req.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return models.CartLine{}, fmt.Errorf("%w: %s", ErrProductNotFound, req.ProductID)
	}
	if err != nil {
		return models.CartLine{}, err
	}

	line := models.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.Price,
		Quantity:  req.Quantity,
		Notes:     strings.TrimSpace(req.Notes),
	}

	if req.VariantID != "" {
		variant, err := cs.store.GetVariant(ctx, product.ID, req.VariantID)
		if errors.Is(err, store.ErrNotFound) {
			return models.CartLine{}, fmt.Errorf("%w: %s/%s", ErrProductNotFound, req.ProductID, req.VariantID)
		}
		if err != nil {
			return models.CartLine{}, err
		}
		line.VariantID = variant.ID
		line.VariantLabel = variant.Label
		if variant.Price.Valid {
			line.UnitPrice = variant.Price.Decimal
		}
	}

	available, err := cs.inventoryClient.Available(ctx, line.ProductID, line.VariantID)
	if err != nil {
		return models.CartLine{}, err
	}
	if available <= 0 {
		return models.CartLine{}, fmt.Errorf("%w: %s is sold out", ErrInsufficientStock, product.Name)
	}
	line.MaxQuantity = available

	return line, nil
}
