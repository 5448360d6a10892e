package service

import (
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/checkout"

	"github.com/google/uuid"
)

type cartSession struct {
	cart    *cart.Store
	touched time.Time
}

type flowSession struct {
	flow    *checkout.Flow
	cartID  string
	touched time.Time
}

// SessionManager keeps carts and checkout flows in memory, keyed by id.
// Sessions idle for longer than the TTL are removed by Sweep.
type SessionManager struct {
	mu    sync.Mutex
	carts map[string]*cartSession
	flows map[string]*flowSession
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionManager creates a session registry
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		carts: make(map[string]*cartSession),
		flows: make(map[string]*flowSession),
		ttl:   ttl,
		now:   time.Now,
	}
}

// CreateCart registers an empty cart
func (m *SessionManager) CreateCart() (string, *cart.Store) {
	id := uuid.New().String()
	c := cart.New()

	m.mu.Lock()
	m.carts[id] = &cartSession{cart: c, touched: m.now()}
	m.mu.Unlock()

	return id, c
}

// Cart returns a cart and refreshes its TTL
func (m *SessionManager) Cart(id string) (*cart.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.carts[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touched = m.now()
	return s.cart, nil
}

// DeleteCart removes a cart session
func (m *SessionManager) DeleteCart(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.carts[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.carts, id)
	return nil
}

// AddFlow registers a checkout flow started for cartID
func (m *SessionManager) AddFlow(cartID string, f *checkout.Flow) {
	m.mu.Lock()
	m.flows[f.ID()] = &flowSession{flow: f, cartID: cartID, touched: m.now()}
	m.mu.Unlock()
}

// Flow returns a checkout flow and refreshes its TTL and its cart's
func (m *SessionManager) Flow(id string) (*checkout.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.flows[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := m.now()
	s.touched = now
	if c, ok := m.carts[s.cartID]; ok {
		c.touched = now
	}
	return s.flow, nil
}

// Sweep removes expired sessions and reports how many were removed.
// A flow that is submitting is never removed.
func (m *SessionManager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	removed := 0

	for id, s := range m.flows {
		if s.touched.Before(cutoff) && s.flow.State().Status != checkout.StatusSubmitting {
			delete(m.flows, id)
			removed++
		}
	}
	for id, s := range m.carts {
		if s.touched.Before(cutoff) {
			delete(m.carts, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live carts and flows
func (m *SessionManager) Len() (carts, flows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts), len(m.flows)
}
