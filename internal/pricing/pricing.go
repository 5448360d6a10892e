// Package pricing combines a cart subtotal, the store tax rate and the resolved
// shipping cost into order totals.
package pricing

import (
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Policy is the store pricing configuration. A zero FreeShippingThreshold
// disables free shipping.
type Policy struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// QualifiesForFreeShipping reports whether subtotal reaches the free-shipping threshold
func (p Policy) QualifiesForFreeShipping(subtotal decimal.Decimal) bool {
	return p.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeShippingThreshold)
}

// ComputeTotals returns subtotal, tax, shipping and total.
// The free-shipping threshold always overrides the resolved shipping cost.
// Negative inputs are treated as zero. No rounding is applied.
func ComputeTotals(subtotal, shippingCost decimal.Decimal, policy Policy) models.Totals {
	subtotal = nonNegative(subtotal)
	shipping := nonNegative(shippingCost)
	rate := nonNegative(policy.TaxRate)

	free := policy.QualifiesForFreeShipping(subtotal)
	if free {
		shipping = decimal.Zero
	}

	tax := subtotal.Mul(rate)

	return models.Totals{
		Subtotal:     subtotal,
		Tax:          tax,
		Shipping:     shipping,
		Total:        subtotal.Add(tax).Add(shipping),
		FreeShipping: free,
	}
}

// FormatAmount renders an amount for display with two decimals, truncating
// the rest. Stored totals are never rounded.
func FormatAmount(d decimal.Decimal) string {
	return d.Truncate(2).StringFixed(2)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
