package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/pricing"
	"storefront/internal/shipping"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CheckoutSettings are the store defaults every new checkout starts from
type CheckoutSettings struct {
	Pricing       pricing.Policy
	Fallback      shipping.Fallback
	SubmitTimeout time.Duration
}

// CheckoutService starts checkout flows against the current store configuration
type CheckoutService struct {
	sessions        *SessionManager
	shippingConfig  *ShippingConfigService
	paymentMethods  *PaymentMethodService
	inventoryClient *InventoryClient
	submitter       checkout.Submitter
	settings        CheckoutSettings
	logger          *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	sessions *SessionManager,
	shippingConfig *ShippingConfigService,
	paymentMethods *PaymentMethodService,
	inventoryClient *InventoryClient,
	submitter checkout.Submitter,
	settings CheckoutSettings,
) *CheckoutService {
	return &CheckoutService{
		sessions:        sessions,
		shippingConfig:  shippingConfig,
		paymentMethods:  paymentMethods,
		inventoryClient: inventoryClient,
		submitter:       submitter,
		settings:        settings,
		logger:          util.GetLogger(),
	}
}

// StartCheckout opens a checkout for cartID. The flow keeps the shipping
// rules and payment methods that were current when it started.
func (cs *CheckoutService) StartCheckout(ctx context.Context, cartID string) (*checkout.Flow, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.StartCheckout")
	defer span.End()

	c, err := cs.sessions.Cart(cartID)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, checkout.ErrEmptyCart
	}

	rules, err := cs.shippingConfig.Snapshot(ctx)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	methods, err := cs.paymentMethods.EnabledCodes(ctx)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	cfg := checkout.Config{
		Shipping:       rules,
		Fallback:       cs.settings.Fallback,
		Pricing:        cs.settings.Pricing,
		PaymentMethods: methods,
		SubmitTimeout:  cs.settings.SubmitTimeout,
	}

	opts := []checkout.Option{checkout.WithLogger(cs.logger)}
	if cs.inventoryClient != nil {
		opts = append(opts, checkout.WithStockChecker(cs.inventoryClient))
	}

	flow, err := checkout.New(c, cfg, cs.submitter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start checkout: %w", err)
	}

	cs.sessions.AddFlow(cartID, flow)
	util.CheckoutsStartedTotal.Inc()
	cs.logger.Info("Checkout started",
		zap.String("checkout_id", flow.ID()),
		zap.String("cart_id", cartID))
	return flow, nil
}

// Flow returns a running checkout
func (cs *CheckoutService) Flow(id string) (*checkout.Flow, error) {
	return cs.sessions.Flow(id)
}

// Advance moves a checkout forward and records which rule priced it
func (cs *CheckoutService) Advance(id string) (checkout.State, error) {
	flow, err := cs.sessions.Flow(id)
	if err != nil {
		return checkout.State{}, err
	}

	before := flow.State().Step
	if err := flow.Advance(); err != nil {
		return flow.State(), err
	}

	st := flow.State()
	if before == checkout.StepShipping && st.Method != nil {
		util.ShippingResolutionsTotal.WithLabelValues(st.Method.Source).Inc()
	}
	return st, nil
}

// Submit places the order of a checkout
func (cs *CheckoutService) Submit(ctx context.Context, id string) (checkout.State, error) {
	flow, err := cs.sessions.Flow(id)
	if err != nil {
		return checkout.State{}, err
	}

	_, err = flow.Submit(ctx)
	return flow.State(), err
}
