package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/shipping"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront",
		zap.String("env", cfg.Server.Env),
		zap.String("tax_rate", cfg.Business.TaxRate.String()),
		zap.String("free_shipping_threshold", cfg.Business.FreeShippingThreshold.String()),
		zap.Duration("submit_timeout", cfg.Business.SubmitTimeout),
		zap.Duration("session_ttl", cfg.Business.SessionTTL))

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	configProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicConfig)
	defer configProducer.Close()
	logger.Info("Kafka producers initialized",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("order_topic", cfg.Kafka.TopicOrder),
		zap.String("config_topic", cfg.Kafka.TopicConfig))

	eventPublisher := broker.NewEventPublisher(orderProducer, configProducer)

	policy := pricing.Policy{
		TaxRate:               cfg.Business.TaxRate,
		FreeShippingThreshold: cfg.Business.FreeShippingThreshold,
	}
	fallback := shipping.Fallback{
		Label:        cfg.Business.DefaultShippingLabel,
		Cost:         cfg.Business.DefaultShippingCost,
		DeliveryDays: models.DeliveryDays{Min: cfg.Business.DefaultDeliveryMinDays, Max: cfg.Business.DefaultDeliveryMaxDays},
		AllowCOD:     cfg.Business.DefaultAllowCOD,
	}

	inventoryClient := service.NewInventoryClient(db, redisClient)
	orderService := service.NewOrderService(db, redisClient, eventPublisher, inventoryClient)
	shippingConfig := service.NewShippingConfigService(db, redisClient, eventPublisher, cfg.Business.ShippingConfigCacheTTL)
	paymentMethods := service.NewPaymentMethodService(db)
	sessions := service.NewSessionManager(cfg.Business.SessionTTL)
	checkoutService := service.NewCheckoutService(
		sessions,
		shippingConfig,
		paymentMethods,
		inventoryClient,
		orderService,
		service.CheckoutSettings{
			Pricing:       policy,
			Fallback:      fallback,
			SubmitTimeout: cfg.Business.SubmitTimeout,
		},
	)

	ctx := context.Background()
	if err := inventoryClient.SyncInventoryToRedis(ctx); err != nil {
		logger.Warn("Failed to sync inventory to Redis", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	// each instance needs every config event, so the group is per process
	configGroup := fmt.Sprintf("%s-config-%s", cfg.Kafka.ConsumerGroup, uuid.NewString())
	configConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicConfig, configGroup)
	configWorker := worker.NewConfigWorker(configConsumer, shippingConfig)
	go func() {
		if err := configWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Config worker error", zap.Error(err))
		}
	}()

	sessionWorker := worker.NewSessionWorker(sessions, time.Minute)
	go func() {
		_ = sessionWorker.Start(workerCtx)
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Sessions:       sessions,
		Catalog:        service.NewCatalogService(db, inventoryClient),
		Checkouts:      checkoutService,
		Quotes:         service.NewQuoteService(shippingConfig, fallback, policy),
		ShippingConfig: shippingConfig,
		PaymentMethods: paymentMethods,
		Orders:         orderService,
		Dependencies: map[string]api.Pinger{
			"database": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := configWorker.Stop(); err != nil {
		logger.Warn("Error stopping config worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
