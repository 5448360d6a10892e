package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeTotals(t *testing.T) {
	policy := Policy{TaxRate: d("0.08"), FreeShippingThreshold: d("50000")}

	tests := []struct {
		name         string
		subtotal     string
		shipping     string
		policy       Policy
		wantTax      string
		wantShipping string
		wantTotal    string
		wantFree     bool
	}{
		{"threshold exceeded", "100000", "0", policy, "8000", "0", "108000", true},
		{"threshold overrides resolved cost", "100000", "5000", policy, "8000", "0", "108000", true},
		{"exactly at threshold", "50000", "5000", policy, "4000", "0", "54000", true},
		{"below threshold keeps cost", "20000", "5000", policy, "1600", "5000", "26600", false},
		{"zero threshold disables free shipping", "900000", "5000", Policy{TaxRate: d("0.08")}, "72000", "5000", "977000", false},
		{"fractional prices stay unrounded", "19.99", "3.5", Policy{TaxRate: d("0.08")}, "1.5992", "3.5", "25.0892", false},
		{"negative inputs clamp to zero", "-10", "-5", policy, "0", "0", "0", false},
		{"empty cart", "0", "7000", policy, "0", "7000", "7000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(d(tt.subtotal), d(tt.shipping), tt.policy)

			assert.True(t, d(tt.wantTax).Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, d(tt.wantShipping).Equal(got.Shipping), "shipping %s", got.Shipping)
			assert.True(t, d(tt.wantTotal).Equal(got.Total), "total %s", got.Total)
			assert.Equal(t, tt.wantFree, got.FreeShipping)
			assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Tax).Add(got.Shipping)))
		})
	}
}

func TestComputeTotals_IsPure(t *testing.T) {
	policy := Policy{TaxRate: d("0.19"), FreeShippingThreshold: d("150000")}
	first := ComputeTotals(d("123456.78"), d("9000"), policy)
	for i := 0; i < 5; i++ {
		again := ComputeTotals(d("123456.78"), d("9000"), policy)
		assert.True(t, first.Total.Equal(again.Total))
		assert.True(t, first.Tax.Equal(again.Tax))
		assert.Equal(t, first.FreeShipping, again.FreeShipping)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "25.08", FormatAmount(d("25.0892")))
	assert.Equal(t, "108000.00", FormatAmount(d("108000")))
	assert.Equal(t, "0.99", FormatAmount(d("0.999")))
}
