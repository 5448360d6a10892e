// Package cart holds the shopping cart line items and their derived totals.
package cart

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidLine          = errors.New("cart: invalid line")
	ErrLineNotFound         = errors.New("cart: line not found")
	ErrUnknownMergeStrategy = errors.New("cart: unknown merge strategy")
)

// MergeStrategy decides what AddItem does when the product/variant is already in the cart
type MergeStrategy string

const (
	// MergeQuantities adds the quantity to the existing line
	MergeQuantities MergeStrategy = "merge"
	// AppendLine always creates a new line, e.g. when free-text notes differ
	AppendLine MergeStrategy = "append"
)

// ParseMergeStrategy validates a strategy received from a client
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case MergeQuantities:
		return MergeQuantities, nil
	case AppendLine:
		return AppendLine, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMergeStrategy, s)
	}
}

// LineID derives the identity of a line from its product and variant
func LineID(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + ":" + variantID
}

type totals struct {
	count    int
	subtotal decimal.Decimal
}

// Store is a cart. It is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	lines []models.CartLine
	memo  *totals
	now   func() time.Time
}

// Option customises a Store
type Option func(*Store)

// WithClock overrides the clock used to salt appended line ids
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty cart
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddItem adds a line to the cart and returns the stored line.
// Quantities above MaxQuantity are clamped; quantities below 1 are rejected.
func (s *Store) AddItem(line models.CartLine, strategy MergeStrategy) (models.CartLine, error) {
	if strategy != MergeQuantities && strategy != AppendLine {
		return models.CartLine{}, fmt.Errorf("%w: %q", ErrUnknownMergeStrategy, strategy)
	}
	if line.Quantity < 1 {
		return models.CartLine{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidLine)
	}
	if err := validateLine(line); err != nil {
		return models.CartLine{}, err
	}
	line.Quantity = clamp(line.Quantity, line.MaxQuantity)

	s.mu.Lock()
	defer s.mu.Unlock()

	base := LineID(line.ProductID, line.VariantID)

	if strategy == MergeQuantities {
		if idx := s.indexOf(base); idx >= 0 {
			existing := s.lines[idx]
			existing.Name = line.Name
			existing.UnitPrice = line.UnitPrice
			existing.MaxQuantity = line.MaxQuantity
			existing.VariantLabel = line.VariantLabel
			if line.Notes != "" {
				existing.Notes = line.Notes
			}
			existing.Quantity = clamp(existing.Quantity+line.Quantity, existing.MaxQuantity)
			s.lines[idx] = existing
			s.memo = nil
			return existing, nil
		}
		line.ID = base
	} else {
		line.ID = s.saltedID(base)
	}

	s.lines = append(s.lines, line)
	s.memo = nil
	return line, nil
}

// UpdateQuantity sets the quantity of a line, clamped to [1, MaxQuantity]
func (s *Store) UpdateQuantity(id string, qty int) (models.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.CartLine{}, fmt.Errorf("%w: %s", ErrLineNotFound, id)
	}

	if qty < 1 {
		qty = 1
	}
	s.lines[idx].Quantity = clamp(qty, s.lines[idx].MaxQuantity)
	s.memo = nil
	return s.lines[idx], nil
}

// RemoveItem deletes a line
func (s *Store) RemoveItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, id)
	}

	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	s.memo = nil
	return nil
}

// Clear empties the cart
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.memo = nil
}

// Subtract removes the given quantities from the matching lines, dropping
// lines that reach zero. Lines and quantities added since the snapshot stay.
func (s *Store) Subtract(lines []models.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		idx := s.indexOf(line.ID)
		if idx < 0 {
			continue
		}
		if remaining := s.lines[idx].Quantity - line.Quantity; remaining > 0 {
			s.lines[idx].Quantity = remaining
			continue
		}
		s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	}
	s.memo = nil
}

// Restore replaces the cart contents with previously stored lines
func (s *Store) Restore(lines []models.CartLine) error {
	restored := make([]models.CartLine, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.ID == "" {
			return fmt.Errorf("%w: line id is required", ErrInvalidLine)
		}
		if _, dup := seen[line.ID]; dup {
			return fmt.Errorf("%w: duplicate line id %s", ErrInvalidLine, line.ID)
		}
		if err := validateLine(line); err != nil {
			return err
		}
		if line.Quantity < 1 {
			line.Quantity = 1
		}
		line.Quantity = clamp(line.Quantity, line.MaxQuantity)
		seen[line.ID] = struct{}{}
		restored = append(restored, line)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = restored
	s.memo = nil
	return nil
}

// Lines returns a copy of the cart lines in insertion order
func (s *Store) Lines() []models.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Line returns a single line by id
func (s *Store) Line(id string) (models.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.CartLine{}, false
	}
	return s.lines[idx], true
}

// IsEmpty reports whether the cart has no lines
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

// Count returns the sum of all line quantities
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.derived().count
}

// Subtotal returns the sum of unitPrice x quantity over all lines
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.derived().subtotal
}

// derived must be called with mu held
func (s *Store) derived() *totals {
	if s.memo != nil {
		return s.memo
	}
	t := &totals{subtotal: decimal.Zero}
	for _, line := range s.lines {
		t.count += line.Quantity
		t.subtotal = t.subtotal.Add(line.LineTotal())
	}
	s.memo = t
	return t
}

func (s *Store) indexOf(id string) int {
	for i := range s.lines {
		if s.lines[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) saltedID(base string) string {
	id := base + "@" + strconv.FormatInt(s.now().UnixNano(), 10)
	candidate := id
	for n := 1; s.indexOf(candidate) >= 0; n++ {
		candidate = id + "-" + strconv.Itoa(n)
	}
	return candidate
}

func validateLine(line models.CartLine) error {
	if strings.TrimSpace(line.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidLine)
	}
	if line.MaxQuantity < 1 {
		return fmt.Errorf("%w: product %s is out of stock", ErrInvalidLine, line.ProductID)
	}
	if line.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must be non-negative", ErrInvalidLine)
	}
	return nil
}

func clamp(qty, limit int) int {
	if qty > limit {
		return limit
	}
	if qty < 1 {
		return 1
	}
	return qty
}
