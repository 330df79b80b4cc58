package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SellerCartTotals aggregates one store's share of the cart.
type SellerCartTotals struct {
	StoreID      uuid.UUID
	ItemSubtotal decimal.Decimal
	ItemCount    int
	ShippingCost decimal.Decimal
	Currency     string
}

// Total returns the seller subtotal including shipping.
func (s SellerCartTotals) Total() decimal.Decimal {
	return s.ItemSubtotal.Add(s.ShippingCost)
}

// CartTotals aggregates the whole cart across sellers.
type CartTotals struct {
	Subtotal       decimal.Decimal
	ShippingTotal  decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	Currency       string
}

// TotalsCalculator computes seller and cart totals. All methods are pure.
type TotalsCalculator struct {
	// DefaultShippingCost applies when a store has no shipping rule.
	// Zero means free shipping.
	DefaultShippingCost decimal.Decimal
}

// SellerTotals computes a single store's totals. When rule is nil the
// default shipping cost applies.
func (c TotalsCalculator) SellerTotals(storeID uuid.UUID, itemSubtotal decimal.Decimal, itemCount int, currency string, rule ShippingRule) SellerCartTotals {
	shipping := c.DefaultShippingCost
	if rule != nil {
		shipping = rule.ShippingCost(itemSubtotal, itemCount)
	}
	return SellerCartTotals{
		StoreID:      storeID,
		ItemSubtotal: itemSubtotal,
		ItemCount:    itemCount,
		ShippingCost: shipping,
		Currency:     currency,
	}
}

// CartTotals sums all seller subtotals and shipping, then subtracts the
// discount. The discount is clamped to subtotal+shipping so the total can
// never go negative.
func (c TotalsCalculator) CartTotals(sellers []SellerCartTotals, currency string, discount decimal.Decimal) CartTotals {
	subtotal := decimal.Zero
	shipping := decimal.Zero
	for _, s := range sellers {
		subtotal = subtotal.Add(s.ItemSubtotal)
		shipping = shipping.Add(s.ShippingCost)
	}

	gross := subtotal.Add(shipping)
	applied := decimal.Min(discount, gross)
	if applied.IsNegative() {
		applied = decimal.Zero
	}

	return CartTotals{
		Subtotal:       subtotal,
		ShippingTotal:  shipping,
		DiscountAmount: applied,
		TotalAmount:    gross.Sub(applied),
		Currency:       currency,
	}
}
