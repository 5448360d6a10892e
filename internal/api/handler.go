package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/service"
	"storefront/internal/shipping"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the collaborators behind the HTTP API
type Services struct {
	Sessions       *service.SessionManager
	Catalog        *service.CatalogService
	Checkouts      *service.CheckoutService
	Quotes         *service.QuoteService
	ShippingConfig *service.ShippingConfigService
	PaymentMethods *service.PaymentMethodService
	Orders         *service.OrderService
	Dependencies   map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services) *Handler {
	return &Handler{
		svc:    svc,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/payment-methods", h.listPaymentMethods)
		v1.POST("/shipping/quote", h.quoteShipping)

		carts := v1.Group("/carts")
		carts.POST("", h.createCart)
		carts.GET("/:cartId", h.getCart)
		carts.DELETE("/:cartId", h.deleteCart)
		carts.POST("/:cartId/items", h.addCartItem)
		carts.PATCH("/:cartId/items/:lineId", h.updateCartItem)
		carts.DELETE("/:cartId/items/:lineId", h.removeCartItem)

		checkouts := v1.Group("/checkouts")
		checkouts.POST("", h.startCheckout)
		checkouts.GET("/:id", h.getCheckout)
		checkouts.PUT("/:id/shipping", h.setShippingInfo)
		checkouts.PUT("/:id/payment", h.setPaymentInfo)
		checkouts.POST("/:id/advance", h.advanceCheckout)
		checkouts.POST("/:id/back", h.backCheckout)
		checkouts.POST("/:id/submit", h.submitCheckout)

		admin := v1.Group("/admin")
		admin.GET("/shipping-rules", h.getShippingRules)
		admin.PUT("/shipping-rules", h.replaceShippingRules)
		admin.GET("/payment-methods", h.listAllPaymentMethods)
		admin.PUT("/payment-methods/:code", h.setPaymentMethodEnabled)
		admin.GET("/orders", h.listOrders)
		admin.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.svc.Dependencies {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var verr *checkout.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, shipping.ErrInvalidRule),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrPaymentNotAllowed),
		errors.Is(err, cart.ErrInvalidLine),
		errors.Is(err, cart.ErrUnknownMergeStrategy),
		errors.Is(err, service.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrPaymentMethodNotFound),
		errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrSubmitInProgress),
		errors.Is(err, service.ErrOrderInProgress),
		errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrCompleted):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error", "details"}; extra fields are merged in
func (h *Handler) writeError(c *gin.Context, err error, extra gin.H) {
	status := statusFor(err)

	body := gin.H{"error": http.StatusText(status), "details": err.Error()}
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		body["error"] = "Validation failed"
		body["details"] = verr.Fields
	}
	for k, v := range extra {
		body[k] = v
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// requestLogger logs each request through zap
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		h.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
