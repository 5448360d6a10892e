package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations",
	}, []string{"operation"})

	ShippingResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipping_resolutions_total",
		Help: "Total number of shipping resolutions by matching source",
	}, []string{"source"})

	ShippingConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipping_config_reloads_total",
		Help: "Total number of shipping configuration loads",
	}, []string{"origin"})

	CheckoutsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_started_total",
		Help: "Total number of checkout flows started",
	})

	OrdersSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_submitted_total",
		Help: "Total number of order submissions",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders completed",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	OrdersDeduplicatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_deduplicated_total",
		Help: "Total number of submissions answered from an earlier order with the same idempotency key",
	})

	StockOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_operation_latency_seconds",
		Help:    "Latency of stock check, deduct and restore operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	StockOperationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_operations_failed_total",
		Help: "Total number of failed stock operations",
	}, []string{"operation", "reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
