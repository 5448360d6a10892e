package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownRuleKind is returned when a rule kind is neither city nor department
var ErrUnknownRuleKind = errors.New("unknown shipping rule kind")

// RuleKind names the variant of a Target
type RuleKind string

const (
	RuleKindCity       RuleKind = "city"
	RuleKindDepartment RuleKind = "department"
)

// Target is the place a shipping rule applies to.
// It is a closed union: City and Department are the only implementations.
type Target interface {
	Kind() RuleKind
	Value() string
	isTarget()
}

// City targets a single city
type City struct {
	Name string
}

func (City) Kind() RuleKind { return RuleKindCity }
func (c City) Value() string { return c.Name }
func (City) isTarget() {}

// Department targets every city of a department
type Department struct {
	Name string
}

func (Department) Kind() RuleKind { return RuleKindDepartment }
func (d Department) Value() string { return d.Name }
func (Department) isTarget() {}

// NewTarget builds the Target variant for a stored kind/value pair
func NewTarget(kind RuleKind, value string) (Target, error) {
	switch kind {
	case RuleKindCity:
		return City{Name: value}, nil
	case RuleKindDepartment:
		return Department{Name: value}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleKind, kind)
	}
}

// DeliveryDays is the delivery estimate range in days
type DeliveryDays struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ShippingRule maps a city or department to a shipping cost and delivery estimate
type ShippingRule struct {
	ID           string
	Target       Target
	Cost         decimal.Decimal
	DeliveryDays DeliveryDays
	AllowCOD     bool
	IsActive     bool
}

type shippingRuleJSON struct {
	ID           string          `json:"id"`
	Type         RuleKind        `json:"type"`
	Value        string          `json:"value"`
	Cost         decimal.Decimal `json:"cost"`
	DeliveryDays DeliveryDays    `json:"deliveryDays"`
	AllowCOD     bool            `json:"allowCOD"`
	IsActive     bool            `json:"isActive"`
}

// MarshalJSON flattens the target into type/value fields
func (r ShippingRule) MarshalJSON() ([]byte, error) {
	if r.Target == nil {
		return nil, errors.New("shipping rule has no target")
	}
	return json.Marshal(shippingRuleJSON{
		ID:           r.ID,
		Type:         r.Target.Kind(),
		Value:        r.Target.Value(),
		Cost:         r.Cost,
		DeliveryDays: r.DeliveryDays,
		AllowCOD:     r.AllowCOD,
		IsActive:     r.IsActive,
	})
}

// UnmarshalJSON rebuilds the target variant from type/value fields
func (r *ShippingRule) UnmarshalJSON(data []byte) error {
	var raw shippingRuleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	target, err := NewTarget(raw.Type, raw.Value)
	if err != nil {
		return err
	}
	*r = ShippingRule{
		ID:           raw.ID,
		Target:       target,
		Cost:         raw.Cost,
		DeliveryDays: raw.DeliveryDays,
		AllowCOD:     raw.AllowCOD,
		IsActive:     raw.IsActive,
	}
	return nil
}

// ShippingConfig is a read-only snapshot of the store's shipping rules.
// Holders must not mutate Rules; use Clone to derive a new snapshot.
type ShippingConfig struct {
	Rules     []ShippingRule `json:"rules"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of the config
func (c ShippingConfig) Clone() ShippingConfig {
	rules := make([]ShippingRule, len(c.Rules))
	copy(rules, c.Rules)
	return ShippingConfig{Rules: rules, UpdatedAt: c.UpdatedAt}
}

// Shipping method sources
const (
	ShippingSourceCity       = "city"
	ShippingSourceDepartment = "department"
	ShippingSourceFallback   = "fallback"
)

// ShippingMethod is the outcome of resolving a destination against the rule set
type ShippingMethod struct {
	RuleID       string          `json:"ruleId,omitempty"`
	Label        string          `json:"label"`
	Cost         decimal.Decimal `json:"cost"`
	DeliveryDays DeliveryDays    `json:"deliveryDays"`
	AllowCOD     bool            `json:"allowCOD"`
	Source       string          `json:"source"`
}

// Matched reports whether a configured rule produced the method
func (m ShippingMethod) Matched() bool {
	return m.Source != ShippingSourceFallback
}
