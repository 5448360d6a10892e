// Package checkout implements the shipping -> payment -> review -> submit flow.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/shipping"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step is a page of the checkout form
type Step string

const (
	StepShipping Step = "shipping"
	StepPayment  Step = "payment"
	StepReview   Step = "review"
)

// Status is the state of the order submission
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

var (
	ErrInvalidTransition = errors.New("checkout: invalid transition")
	ErrSubmitInProgress  = errors.New("checkout: submission in progress")
	ErrCompleted         = errors.New("checkout: order already submitted")
	ErrEmptyCart         = errors.New("checkout: cart is empty")
	ErrPaymentNotAllowed = errors.New("checkout: payment method not allowed")
)

// Submitter is the order persistence API. Idempotency and retry semantics
// belong to the implementation; the flow reuses one idempotency key per checkout.
type Submitter interface {
	SubmitOrder(ctx context.Context, order models.Order) (models.Order, error)
}

// StockChecker re-validates cart quantities against current stock
type StockChecker interface {
	CheckStock(ctx context.Context, lines []models.CartLine) error
}

// Config is the store configuration snapshot a flow works against
type Config struct {
	Shipping       models.ShippingConfig
	Fallback       shipping.Fallback
	Pricing        pricing.Policy
	PaymentMethods []string
	SubmitTimeout  time.Duration
}

// State is a read-only view of a flow
type State struct {
	ID             string                 `json:"id"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	Step           Step                   `json:"step"`
	Status         Status                 `json:"status"`
	ShippingInfo   models.ShippingInfo    `json:"shippingInfo"`
	PaymentInfo    models.PaymentInfo     `json:"paymentInfo"`
	Method         *models.ShippingMethod `json:"shippingMethod,omitempty"`
	Totals         models.Totals          `json:"totals"`
	Error          string                 `json:"error,omitempty"`
	Order          *models.Order          `json:"order,omitempty"`
}

// Flow is one customer's checkout. It is safe for concurrent use; at most one
// submission is in flight at a time.
type Flow struct {
	mu sync.Mutex

	id             string
	idempotencyKey string
	cart           *cart.Store
	cfg            Config
	submitter      Submitter
	stock          StockChecker
	now            func() time.Time
	logger         *zap.Logger

	step         Step
	status       Status
	shippingInfo models.ShippingInfo
	paymentInfo  models.PaymentInfo
	method       *models.ShippingMethod
	totals       models.Totals
	errMessage   string
	order        *models.Order
}

// Option customises a Flow
type Option func(*Flow)

// WithStockChecker re-validates stock before each submission
func WithStockChecker(sc StockChecker) Option {
	return func(f *Flow) { f.stock = sc }
}

// WithLogger sets the flow logger
func WithLogger(logger *zap.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock overrides the order timestamp source
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// WithIdempotencyKey sets the key sent with every submission of this flow
func WithIdempotencyKey(key string) Option {
	return func(f *Flow) {
		if key = strings.TrimSpace(key); key != "" {
			f.idempotencyKey = key
		}
	}
}

// New starts a checkout for c at the shipping step
func New(c *cart.Store, cfg Config, submitter Submitter, opts ...Option) (*Flow, error) {
	if c == nil {
		return nil, errors.New("checkout: cart is required")
	}
	if submitter == nil {
		return nil, errors.New("checkout: submitter is required")
	}

	f := &Flow{
		id:             uuid.NewString(),
		idempotencyKey: uuid.NewString(),
		cart:           c,
		cfg:            cfg,
		submitter:      submitter,
		now:            time.Now,
		logger:         zap.NewNop(),
		step:           StepShipping,
		status:         StatusIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// ID returns the flow id
func (f *Flow) ID() string {
	return f.id
}

// SetShippingInfo stores the shipping form; only editable on the shipping step
func (f *Flow) SetShippingInfo(info models.ShippingInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.editable(StepShipping); err != nil {
		return err
	}
	f.shippingInfo = trimShippingInfo(info)
	return nil
}

// SetPaymentInfo stores the payment form; only editable on the payment step
func (f *Flow) SetPaymentInfo(info models.PaymentInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.editable(StepPayment); err != nil {
		return err
	}
	info.Method = strings.TrimSpace(info.Method)
	f.paymentInfo = info
	return nil
}

// Advance moves to the next step when the current one is complete.
// A *ValidationError reports the incomplete fields; the step is unchanged.
func (f *Flow) Advance() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mutable(); err != nil {
		return err
	}

	switch f.step {
	case StepShipping:
		if err := validateStruct(StepShipping, f.shippingInfo); err != nil {
			return err
		}
		if f.cart.IsEmpty() {
			return ErrEmptyCart
		}
		method := shipping.Resolve(f.shippingInfo.Destination(), f.cfg.Shipping, f.cfg.Fallback)
		f.method = &method
		f.totals = pricing.ComputeTotals(f.cart.Subtotal(), method.Cost, f.cfg.Pricing)
		f.step = StepPayment

	case StepPayment:
		if err := f.validatePayment(); err != nil {
			return err
		}
		f.totals = pricing.ComputeTotals(f.cart.Subtotal(), f.method.Cost, f.cfg.Pricing)
		f.step = StepReview

	default:
		return fmt.Errorf("%w: cannot advance from %s", ErrInvalidTransition, f.step)
	}

	f.logger.Debug("Checkout advanced", zap.String("checkout_id", f.id), zap.String("step", string(f.step)))
	return nil
}

// Back returns to the previous step
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mutable(); err != nil {
		return err
	}

	switch f.step {
	case StepPayment:
		f.step = StepShipping
	case StepReview:
		f.step = StepPayment
	default:
		return fmt.Errorf("%w: cannot go back from %s", ErrInvalidTransition, f.step)
	}

	f.status = StatusIdle
	f.errMessage = ""
	return nil
}

// Submit sends the order to the submitter. It is only valid on the review step.
// A call while another submission is in flight returns ErrSubmitInProgress and
// changes nothing. On failure the flow stays on review with the error retained
// so the customer can retry.
func (f *Flow) Submit(ctx context.Context) (models.Order, error) {
	f.mu.Lock()
	switch {
	case f.status == StatusSubmitting:
		f.mu.Unlock()
		return models.Order{}, ErrSubmitInProgress
	case f.status == StatusSuccess:
		f.mu.Unlock()
		return models.Order{}, ErrCompleted
	case f.step != StepReview:
		f.mu.Unlock()
		return models.Order{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, f.step)
	}

	lines := f.cart.Lines()
	if len(lines) == 0 {
		f.mu.Unlock()
		return models.Order{}, ErrEmptyCart
	}

	f.totals = pricing.ComputeTotals(f.cart.Subtotal(), f.method.Cost, f.cfg.Pricing)
	order := f.buildOrder(lines)
	f.status = StatusSubmitting
	f.errMessage = ""
	f.mu.Unlock()

	if f.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.SubmitTimeout)
		defer cancel()
	}

	saved, err := f.submit(ctx, order, lines)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.status = StatusError
		f.step = StepReview
		f.errMessage = err.Error()
		f.logger.Warn("Order submission failed",
			zap.String("checkout_id", f.id),
			zap.String("idempotency_key", f.idempotencyKey),
			zap.Error(err))
		return models.Order{}, fmt.Errorf("checkout: submit order: %w", err)
	}

	f.status = StatusSuccess
	f.order = &saved
	f.cart.Subtract(lines)
	f.logger.Info("Order submitted",
		zap.String("checkout_id", f.id),
		zap.String("order_id", saved.ID))
	return saved, nil
}

func (f *Flow) submit(ctx context.Context, order models.Order, lines []models.CartLine) (models.Order, error) {
	if f.stock != nil {
		if err := f.stock.CheckStock(ctx, lines); err != nil {
			return models.Order{}, err
		}
	}
	return f.submitter.SubmitOrder(ctx, order)
}

// State returns a snapshot of the flow
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := State{
		ID:             f.id,
		IdempotencyKey: f.idempotencyKey,
		Step:           f.step,
		Status:         f.status,
		ShippingInfo:   f.shippingInfo,
		PaymentInfo:    f.paymentInfo,
		Totals:         f.totals,
		Error:          f.errMessage,
	}
	if f.method != nil {
		m := *f.method
		st.Method = &m
	}
	if f.order != nil {
		o := *f.order
		st.Order = &o
	}
	return st
}

func (f *Flow) validatePayment() error {
	if err := validateStruct(StepPayment, f.paymentInfo); err != nil {
		return err
	}

	method := f.paymentInfo.Method
	if len(f.cfg.PaymentMethods) > 0 && !contains(f.cfg.PaymentMethods, method) {
		return &ValidationError{Step: StepPayment, Fields: map[string]string{
			"method": "is not offered by the store",
		}}
	}
	if method == models.PaymentMethodCashOnDelivery && f.method != nil && !f.method.AllowCOD {
		return fmt.Errorf("%w: cash on delivery is not available for %s", ErrPaymentNotAllowed, f.method.Label)
	}
	return nil
}

func (f *Flow) buildOrder(lines []models.CartLine) models.Order {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.OrderItem{
			ProductID:    line.ProductID,
			VariantID:    line.VariantID,
			Name:         line.Name,
			VariantLabel: line.VariantLabel,
			Notes:        line.Notes,
			UnitPrice:    line.UnitPrice,
			Quantity:     line.Quantity,
		})
	}

	now := f.now().UTC()
	return models.Order{
		IdempotencyKey: f.idempotencyKey,
		Items:          items,
		Shipping:       f.shippingInfo,
		Payment:        f.paymentInfo,
		Method:         *f.method,
		Totals:         f.totals,
		Status:         models.OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// editable must be called with mu held
func (f *Flow) editable(step Step) error {
	if err := f.mutable(); err != nil {
		return err
	}
	if f.step != step {
		return fmt.Errorf("%w: %s form is not editable on %s step", ErrInvalidTransition, step, f.step)
	}
	return nil
}

// mutable must be called with mu held
func (f *Flow) mutable() error {
	switch f.status {
	case StatusSubmitting:
		return ErrSubmitInProgress
	case StatusSuccess:
		return ErrCompleted
	}
	return nil
}

func trimShippingInfo(info models.ShippingInfo) models.ShippingInfo {
	return models.ShippingInfo{
		FullName:   strings.TrimSpace(info.FullName),
		Email:      strings.TrimSpace(info.Email),
		Phone:      strings.TrimSpace(info.Phone),
		Address:    strings.TrimSpace(info.Address),
		City:       strings.TrimSpace(info.City),
		Department: strings.TrimSpace(info.Department),
		Notes:      strings.TrimSpace(info.Notes),
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
