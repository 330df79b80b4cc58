package cart

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSellerTotals(t *testing.T) {
	storeID := uuid.New()
	freeOver := dec("50")

	tests := []struct {
		name         string
		subtotal     decimal.Decimal
		itemCount    int
		rule         ShippingRule
		defaultCost  decimal.Decimal
		wantShipping decimal.Decimal
	}{
		{
			name:         "no rule means default free shipping",
			subtotal:     dec("30"),
			itemCount:    2,
			rule:         nil,
			defaultCost:  decimal.Zero,
			wantShipping: decimal.Zero,
		},
		{
			name:         "no rule uses configured default",
			subtotal:     dec("30"),
			itemCount:    2,
			rule:         nil,
			defaultCost:  dec("4.99"),
			wantShipping: dec("4.99"),
		},
		{
			name:         "flat fee below threshold",
			subtotal:     dec("30"),
			itemCount:    1,
			rule:         TieredRule{FlatFee: dec("5.00"), FreeOverTotal: &freeOver},
			wantShipping: dec("5.00"),
		},
		{
			name:         "free over threshold",
			subtotal:     dec("75"),
			itemCount:    3,
			rule:         TieredRule{FlatFee: dec("5.00"), FreeOverTotal: &freeOver},
			wantShipping: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := TotalsCalculator{DefaultShippingCost: tt.defaultCost}
			got := calc.SellerTotals(storeID, tt.subtotal, tt.itemCount, "USD", tt.rule)

			assert.Equal(t, storeID, got.StoreID)
			assert.True(t, tt.wantShipping.Equal(got.ShippingCost),
				"want shipping %s, got %s", tt.wantShipping, got.ShippingCost)
			assert.True(t, tt.subtotal.Add(tt.wantShipping).Equal(got.Total()))
		})
	}
}

func TestCartTotals(t *testing.T) {
	sellers := []SellerCartTotals{
		{StoreID: uuid.New(), ItemSubtotal: dec("40"), ItemCount: 2, ShippingCost: dec("5"), Currency: "USD"},
		{StoreID: uuid.New(), ItemSubtotal: dec("60"), ItemCount: 1, ShippingCost: decimal.Zero, Currency: "USD"},
	}

	tests := []struct {
		name         string
		discount     decimal.Decimal
		wantDiscount decimal.Decimal
		wantTotal    decimal.Decimal
	}{
		{
			name:         "no discount",
			discount:     decimal.Zero,
			wantDiscount: decimal.Zero,
			wantTotal:    dec("105"),
		},
		{
			name:         "normal discount",
			discount:     dec("15"),
			wantDiscount: dec("15"),
			wantTotal:    dec("90"),
		},
		{
			name:         "oversized discount is clamped, total never negative",
			discount:     dec("500"),
			wantDiscount: dec("105"),
			wantTotal:    decimal.Zero,
		},
		{
			name:         "negative discount treated as zero",
			discount:     dec("-10"),
			wantDiscount: decimal.Zero,
			wantTotal:    dec("105"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := TotalsCalculator{}
			got := calc.CartTotals(sellers, "USD", tt.discount)

			assert.True(t, dec("100").Equal(got.Subtotal))
			assert.True(t, dec("5").Equal(got.ShippingTotal))
			assert.True(t, tt.wantDiscount.Equal(got.DiscountAmount),
				"want discount %s, got %s", tt.wantDiscount, got.DiscountAmount)
			assert.True(t, tt.wantTotal.Equal(got.TotalAmount),
				"want total %s, got %s", tt.wantTotal, got.TotalAmount)
			assert.False(t, got.TotalAmount.IsNegative())
		})
	}
}

func TestCartTotals_EmptyCart(t *testing.T) {
	calc := TotalsCalculator{}
	got := calc.CartTotals(nil, "USD", dec("10"))

	assert.True(t, got.TotalAmount.IsZero())
	assert.True(t, got.DiscountAmount.IsZero())
}
