package worker

import (
	"context"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ConfigInvalidator drops cached configuration when it changes elsewhere
type ConfigInvalidator interface {
	HandleConfigUpdated(ctx context.Context, event *models.ShippingConfigUpdatedEvent) error
}

// MessageSource feeds broker messages to a handler; *broker.Consumer is one
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// ConfigWorker applies configuration change events on this instance
type ConfigWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
}

// NewConfigWorker creates a new config worker
func NewConfigWorker(consumer MessageSource, invalidator ConfigInvalidator) *ConfigWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnShippingConfigUpdated(invalidator.HandleConfigUpdated)

	return &ConfigWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *ConfigWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting config worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ConfigWorker) Stop() error {
	util.GetLogger().Info("Stopping config worker")
	return w.consumer.Close()
}

// Sweeper removes expired sessions
type Sweeper interface {
	Sweep() int
}

// SessionWorker periodically expires idle carts and checkouts
type SessionWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewSessionWorker creates a new session worker
func NewSessionWorker(sweeper Sweeper, interval time.Duration) *SessionWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs until ctx is cancelled
func (w *SessionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting session worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping session worker")
			return ctx.Err()
		case <-ticker.C:
			if n := w.sweeper.Sweep(); n > 0 {
				w.logger.Debug("Expired sessions removed", zap.Int("count", n))
			}
		}
	}
}
