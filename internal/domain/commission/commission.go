// Package commission computes the platform's cut of seller order
// subtotals and the proportional reversal applied on partial refunds.
package commission

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Argument errors. These indicate caller bugs, not business outcomes.
var (
	ErrEmptyStoreID        = errors.New("store id must not be empty")
	ErrRateOutOfRange      = errors.New("commission rate must be between 0 and 100")
	ErrNonPositiveAmount   = errors.New("amount must be greater than zero")
	ErrRefundExceedsAmount = errors.New("refund amount must not exceed the original amount")
)

// DefaultRate is the platform commission percentage applied when a store
// has no negotiated rate.
var DefaultRate = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// SellerCommission is the split of an order subtotal between platform and
// seller. Derived deterministically; never persisted as-is.
type SellerCommission struct {
	StoreID          uuid.UUID
	OrderSubtotal    decimal.Decimal
	Rate             decimal.Decimal
	CommissionAmount decimal.Decimal
	SellerPayout     decimal.Decimal
	Currency         string
}

// RefundCommission describes how an existing commission splits across the
// refunded and remaining portions of a shipment.
type RefundCommission struct {
	OriginalAmount      decimal.Decimal
	RefundAmount        decimal.Decimal
	RemainingAmount     decimal.Decimal
	Rate                decimal.Decimal
	OriginalCommission  decimal.Decimal
	RemainingCommission decimal.Decimal
	RefundedCommission  decimal.Decimal
	Currency            string
}

// Calculate computes commission and payout for an order subtotal. Rounding
// is round-half-to-even so that fractions of a cent do not systematically
// favour either side across many transactions. CommissionAmount plus
// SellerPayout always equals OrderSubtotal exactly.
func Calculate(storeID uuid.UUID, orderSubtotal decimal.Decimal, currency string, rate decimal.Decimal) (SellerCommission, error) {
	if storeID == uuid.Nil {
		return SellerCommission{}, ErrEmptyStoreID
	}
	if err := validateRate(rate); err != nil {
		return SellerCommission{}, err
	}
	if orderSubtotal.LessThanOrEqual(decimal.Zero) {
		return SellerCommission{}, ErrNonPositiveAmount
	}

	amount := commissionOn(orderSubtotal, rate)

	return SellerCommission{
		StoreID:          storeID,
		OrderSubtotal:    orderSubtotal,
		Rate:             rate,
		CommissionAmount: amount,
		SellerPayout:     orderSubtotal.Sub(amount),
		Currency:         currency,
	}, nil
}

// CalculateRefund splits a commission across a partial refund. The
// original rate must be passed in, never the store's current rate, so
// that reversals stay consistent with what was charged historically.
//
// The remaining commission is recomputed on (original − refund) and the
// refunded commission is the difference from the original commission.
// Anchoring both endpoints and subtracting avoids the rounding drift a
// direct refundAmount×rate computation would accumulate.
func CalculateRefund(originalAmount, refundAmount, originalRate decimal.Decimal, currency string) (RefundCommission, error) {
	if err := validateRate(originalRate); err != nil {
		return RefundCommission{}, err
	}
	if originalAmount.LessThanOrEqual(decimal.Zero) {
		return RefundCommission{}, ErrNonPositiveAmount
	}
	if refundAmount.LessThanOrEqual(decimal.Zero) {
		return RefundCommission{}, ErrNonPositiveAmount
	}
	if refundAmount.GreaterThan(originalAmount) {
		return RefundCommission{}, ErrRefundExceedsAmount
	}

	remainingAmount := originalAmount.Sub(refundAmount)
	original := commissionOn(originalAmount, originalRate)
	remaining := commissionOn(remainingAmount, originalRate)

	return RefundCommission{
		OriginalAmount:      originalAmount,
		RefundAmount:        refundAmount,
		RemainingAmount:     remainingAmount,
		Rate:                originalRate,
		OriginalCommission:  original,
		RemainingCommission: remaining,
		RefundedCommission:  original.Sub(remaining),
		Currency:            currency,
	}, nil
}

func commissionOn(amount, rate decimal.Decimal) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero.Round(2)
	}
	return amount.Mul(rate).Div(hundred).RoundBank(2)
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return ErrRateOutOfRange
	}
	return nil
}
