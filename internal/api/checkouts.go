package api

import (
	"net/http"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type startCheckoutRequest struct {
	CartID string `json:"cartId" binding:"required"`
}

type quoteRequest struct {
	Department string          `json:"department" binding:"required"`
	City       string          `json:"city" binding:"required"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

func (h *Handler) startCheckout(c *gin.Context) {
	var req startCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	flow, err := h.svc.Checkouts.StartCheckout(c.Request.Context(), req.CartID)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, flow.State())
}

func (h *Handler) getCheckout(c *gin.Context) {
	flow, err := h.svc.Checkouts.Flow(c.Param("id"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, flow.State())
}

func (h *Handler) setShippingInfo(c *gin.Context) {
	flow, err := h.svc.Checkouts.Flow(c.Param("id"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	var info models.ShippingInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		badRequest(c, err)
		return
	}

	if err := flow.SetShippingInfo(info); err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, flow.State())
}

func (h *Handler) setPaymentInfo(c *gin.Context) {
	flow, err := h.svc.Checkouts.Flow(c.Param("id"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	var info models.PaymentInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		badRequest(c, err)
		return
	}

	if err := flow.SetPaymentInfo(info); err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, flow.State())
}

func (h *Handler) advanceCheckout(c *gin.Context) {
	state, err := h.svc.Checkouts.Advance(c.Param("id"))
	if err != nil {
		h.writeError(c, err, gin.H{"checkout": state})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) backCheckout(c *gin.Context) {
	flow, err := h.svc.Checkouts.Flow(c.Param("id"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	if err := flow.Back(); err != nil {
		h.writeError(c, err, gin.H{"checkout": flow.State()})
		return
	}
	c.JSON(http.StatusOK, flow.State())
}

func (h *Handler) submitCheckout(c *gin.Context) {
	state, err := h.svc.Checkouts.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, gin.H{"checkout": state})
		return
	}
	c.JSON(http.StatusCreated, state)
}

func (h *Handler) quoteShipping(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	dest := models.Destination{Department: req.Department, City: req.City}
	method, totals, err := h.svc.Quotes.Quote(c.Request.Context(), dest, req.Subtotal)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"shippingMethod": method,
		"totals":         totals,
	})
}

func (h *Handler) listPaymentMethods(c *gin.Context) {
	methods, err := h.svc.PaymentMethods.List(c.Request.Context(), true)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paymentMethods": methods})
}
