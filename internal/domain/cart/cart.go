// Package cart holds the buyer-side cart model and the pure checkout
// calculations performed over it: per-seller totals, cart totals with
// discount clamping, and live re-validation of cart items before payment.
package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a cart line captured at add-to-cart time. The unit price and
// currency are snapshots and go stale as the product changes; staleness is
// exactly what checkout validation detects.
type Item struct {
	ProductID           uuid.UUID       `json:"product_id"`
	StoreID             uuid.UUID       `json:"store_id"`
	Quantity            int             `json:"quantity"`
	UnitPriceAtAddition decimal.Decimal `json:"unit_price_at_addition"`
	CurrencyAtAddition  string          `json:"currency_at_addition"`
	AddedAt             time.Time       `json:"added_at"`
}

// Subtotal returns unit price times quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPriceAtAddition.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is a buyer's current cart snapshot.
type Cart struct {
	BuyerID   uuid.UUID `json:"buyer_id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a cache for cart snapshots keyed by buyer.
type Store interface {
	Get(ctx context.Context, buyerID uuid.UUID) (*Cart, error)
	Set(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, buyerID uuid.UUID) error
}

// ShippingRule maps a seller subtotal and item count to a shipping cost.
// A nil rule means the store has no policy, which is free shipping by
// default, not an error.
type ShippingRule interface {
	ShippingCost(subtotal decimal.Decimal, itemCount int) decimal.Decimal
}

// TieredRule charges a flat fee below a free-shipping threshold. A nil
// threshold means the fee always applies.
type TieredRule struct {
	FlatFee       decimal.Decimal
	FreeOverTotal *decimal.Decimal
}

// ShippingCost implements ShippingRule.
func (r TieredRule) ShippingCost(subtotal decimal.Decimal, _ int) decimal.Decimal {
	if r.FreeOverTotal != nil && subtotal.GreaterThanOrEqual(*r.FreeOverTotal) {
		return decimal.Zero
	}
	return r.FlatFee
}
