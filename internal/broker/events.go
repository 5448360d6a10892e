package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	orders *Producer
	config *Producer
}

// NewEventPublisher creates a new event publisher. Order and configuration
// events go to separate topics.
func NewEventPublisher(orders, config *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, config: config}
}

// PublishOrderCompleted publishes OrderCompleted event
func (ep *EventPublisher) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	return ep.orders.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishOrderFailed publishes OrderFailed event
func (ep *EventPublisher) PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	return ep.orders.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishShippingConfigUpdated publishes ShippingConfigUpdated event
func (ep *EventPublisher) PublishShippingConfigUpdated(ctx context.Context, event *models.ShippingConfigUpdatedEvent) error {
	return ep.config.PublishEvent(ctx, "shipping-config", event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onShippingConfigUpdated func(context.Context, *models.ShippingConfigUpdatedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnShippingConfigUpdated registers a handler for ShippingConfigUpdated events
func (eh *EventHandler) OnShippingConfigUpdated(handler func(context.Context, *models.ShippingConfigUpdatedEvent) error) {
	eh.onShippingConfigUpdated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event", zap.String("type", baseEvent.EventType), zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeShippingConfigUpdated:
		if eh.onShippingConfigUpdated != nil {
			var event models.ShippingConfigUpdatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ShippingConfigUpdated event: %w", err)
			}
			return eh.onShippingConfigUpdated(ctx, &event)
		}

	default:
		logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
