package api

import (
	"net/http"
	"strconv"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

type replaceRulesRequest struct {
	Rules []models.ShippingRule `json:"rules"`
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) getShippingRules(c *gin.Context) {
	cfg, err := h.svc.ShippingConfig.Snapshot(c.Request.Context())
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) replaceShippingRules(c *gin.Context) {
	var req replaceRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cfg, err := h.svc.ShippingConfig.Replace(c.Request.Context(), req.Rules)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) listAllPaymentMethods(c *gin.Context) {
	methods, err := h.svc.PaymentMethods.List(c.Request.Context(), false)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paymentMethods": methods})
}

func (h *Handler) setPaymentMethodEnabled(c *gin.Context) {
	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	code := c.Param("code")
	if err := h.svc.PaymentMethods.SetEnabled(c.Request.Context(), code, *req.Enabled); err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "enabled": *req.Enabled})
}

func (h *Handler) listOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, err := h.svc.Orders.ListOrders(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.svc.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, order)
}
