package api

import (
	"net/http"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type cartView struct {
	ID       string            `json:"id"`
	Lines    []models.CartLine `json:"lines"`
	Count    int               `json:"count"`
	Subtotal decimal.Decimal   `json:"subtotal"`
}

func newCartView(id string, c *cart.Store) cartView {
	return cartView{
		ID:       id,
		Lines:    c.Lines(),
		Count:    c.Count(),
		Subtotal: c.Subtotal(),
	}
}

// Quantity is a pointer so that 0 reaches the cart and is clamped
type updateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) createCart(c *gin.Context) {
	id, sc := h.svc.Sessions.CreateCart()
	c.JSON(http.StatusCreated, newCartView(id, sc))
}

func (h *Handler) getCart(c *gin.Context) {
	id := c.Param("cartId")
	sc, err := h.svc.Sessions.Cart(id)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, newCartView(id, sc))
}

func (h *Handler) deleteCart(c *gin.Context) {
	if err := h.svc.Sessions.DeleteCart(c.Param("cartId")); err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addCartItem(c *gin.Context) {
	id := c.Param("cartId")
	sc, err := h.svc.Sessions.Cart(id)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	var req service.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	line, err := h.svc.Catalog.AddToCart(c.Request.Context(), sc, req)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"line": line,
		"cart": newCartView(id, sc),
	})
}

func (h *Handler) updateCartItem(c *gin.Context) {
	id := c.Param("cartId")
	sc, err := h.svc.Sessions.Cart(id)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	line, err := sc.UpdateQuantity(c.Param("lineId"), *req.Quantity)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	util.CartMutationsTotal.WithLabelValues("update").Inc()

	c.JSON(http.StatusOK, gin.H{
		"line": line,
		"cart": newCartView(id, sc),
	})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	id := c.Param("cartId")
	sc, err := h.svc.Sessions.Cart(id)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	if err := sc.RemoveItem(c.Param("lineId")); err != nil {
		h.writeError(c, err, nil)
		return
	}
	util.CartMutationsTotal.WithLabelValues("remove").Inc()

	c.JSON(http.StatusOK, newCartView(id, sc))
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}
