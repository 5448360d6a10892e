package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

var ErrPaymentMethodNotFound = errors.New("payment method not found")

// PaymentMethodService exposes the payment methods configured for the store.
// No payment is captured; the chosen method is recorded on the order.
type PaymentMethodService struct {
	store  PaymentMethodStore
	logger *zap.Logger
}

// NewPaymentMethodService creates a new payment method service
func NewPaymentMethodService(store PaymentMethodStore) *PaymentMethodService {
	return &PaymentMethodService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// List returns payment methods in display order, optionally only enabled ones
func (ps *PaymentMethodService) List(ctx context.Context, enabledOnly bool) ([]models.PaymentMethod, error) {
	ctx, span := util.StartSpan(ctx, "PaymentMethodService.List")
	defer span.End()

	methods, err := ps.store.GetPaymentMethods(ctx)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to load payment methods: %w", err))
	}
	if !enabledOnly {
		return methods, nil
	}

	enabled := methods[:0:0]
	for _, m := range methods {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	return enabled, nil
}

// EnabledCodes returns the codes a checkout may accept
func (ps *PaymentMethodService) EnabledCodes(ctx context.Context) ([]string, error) {
	methods, err := ps.List(ctx, true)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(methods))
	for _, m := range methods {
		codes = append(codes, m.Code)
	}
	return codes, nil
}

// SetEnabled turns a payment method on or off
func (ps *PaymentMethodService) SetEnabled(ctx context.Context, code string, enabled bool) error {
	ctx, span := util.StartSpan(ctx, "PaymentMethodService.SetEnabled")
	defer span.End()

	err := ps.store.SetPaymentMethodEnabled(ctx, code, enabled)
	if errors.Is(err, store.ErrNotFound) {
		return ErrPaymentMethodNotFound
	}
	if err != nil {
		return util.RecordError(span, err)
	}

	ps.logger.Info("Payment method updated", zap.String("code", code), zap.Bool("enabled", enabled))
	return nil
}
