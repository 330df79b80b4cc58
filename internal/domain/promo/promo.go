// Package promo implements promo codes: discount rules, scope, usage
// limits, and the checkout-time validation that decides whether a code
// applies to a cart.
package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a promo code does not exist.
var ErrNotFound = errors.New("promo code not found")

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the applicable subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount subtracts a fixed amount, capped at the subtotal.
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Scope describes whether a code applies platform-wide or to a single
// seller's items only.
type Scope string

const (
	ScopePlatform Scope = "platform"
	ScopeSeller   Scope = "seller"
)

var hundred = decimal.NewFromInt(100)

// Code is a promo code with its discount rule and eligibility limits.
// UsageCount is the only mutable field; it is incremented when the code is
// consumed at checkout.
type Code struct {
	ID           uuid.UUID
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	Scope        Scope
	// StoreID is set for seller-scoped codes.
	StoreID               *uuid.UUID
	ValidFrom             time.Time
	ValidTo               time.Time
	MaxUsageCount         *int
	MaxUsagePerUser       *int
	MinimumOrderAmount    *decimal.Decimal
	MaximumDiscountAmount *decimal.Decimal
	Currency              string
	UsageCount            int
	Active                bool
}

// CalculateDiscount computes the discount for the given applicable
// subtotal: percentage or fixed, capped by MaximumDiscountAmount and by
// the subtotal itself, never negative, rounded to 2 decimal places.
func (c *Code) CalculateDiscount(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
	case DiscountFixedAmount:
		amount = c.Value
	default:
		return decimal.Zero
	}

	if c.MaximumDiscountAmount != nil {
		amount = decimal.Min(amount, *c.MaximumDiscountAmount)
	}
	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}

// Repository provides lookup and mutation of promo codes.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Code, error)
	// IncrementUsage bumps the global usage counter and records the
	// user's consumption, both within the caller's transaction scope.
	IncrementUsage(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	CountUserUsage(ctx context.Context, id uuid.UUID, userID uuid.UUID) (int, error)
	Create(ctx context.Context, c *Code) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}
