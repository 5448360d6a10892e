// Package shipping resolves the shipping method for a destination from the configured rules.
package shipping

import (
	"fmt"
	"strings"
	"unicode"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback is used when no active rule matches the destination
type Fallback struct {
	Label        string
	Cost         decimal.Decimal
	DeliveryDays models.DeliveryDays
	AllowCOD     bool
}

// Resolve picks the shipping method for dest.
//
// Precedence: the first active city rule matching dest.City, then the first
// active department rule matching dest.Department, then fallback. When several
// rules of the same kind match, list order decides. Resolve never fails.
func Resolve(dest models.Destination, cfg models.ShippingConfig, fallback Fallback) models.ShippingMethod {
	city := NormalizePlace(dest.City)
	department := NormalizePlace(dest.Department)

	var departmentRule *models.ShippingRule
	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		if !rule.IsActive {
			continue
		}

		switch target := rule.Target.(type) {
		case models.City:
			if city != "" && NormalizePlace(target.Name) == city {
				return fromRule(*rule, models.ShippingSourceCity)
			}
		case models.Department:
			if departmentRule == nil && department != "" && NormalizePlace(target.Name) == department {
				departmentRule = rule
			}
		}
	}

	if departmentRule != nil {
		return fromRule(*departmentRule, models.ShippingSourceDepartment)
	}

	return models.ShippingMethod{
		Label:        fallback.Label,
		Cost:         nonNegative(fallback.Cost),
		DeliveryDays: fallback.DeliveryDays,
		AllowCOD:     fallback.AllowCOD,
		Source:       models.ShippingSourceFallback,
	}
}

func fromRule(rule models.ShippingRule, source string) models.ShippingMethod {
	return models.ShippingMethod{
		RuleID:       rule.ID,
		Label:        fmt.Sprintf("Shipping to %s", strings.TrimSpace(rule.Target.Value())),
		Cost:         nonNegative(rule.Cost),
		DeliveryDays: rule.DeliveryDays,
		AllowCOD:     rule.AllowCOD,
		Source:       source,
	}
}

// NormalizePlace folds case, strips diacritics and collapses whitespace so that
// "Bogotá", "BOGOTA" and " bogota " compare equal.
func NormalizePlace(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
