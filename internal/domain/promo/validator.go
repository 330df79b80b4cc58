package promo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status classifies the outcome of validating a promo code against a cart.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusInactive         Status = "inactive"
	StatusNotYetActive     Status = "not_yet_active"
	StatusExpired          Status = "expired"
	StatusMaxUsageReached  Status = "max_usage_reached"
	StatusUserLimitReached Status = "user_limit_reached"
	StatusCurrencyMismatch Status = "currency_mismatch"
	StatusMinimumNotMet    Status = "minimum_not_met"
	StatusNotApplicable    Status = "not_applicable"
	StatusNotFound         Status = "not_found"
)

// Result is the outcome of promo validation. Exactly one variant applies;
// construct via the factory functions below. DiscountAmount is set only on
// success.
type Result struct {
	Status         Status
	Message        string
	DiscountAmount decimal.Decimal
}

// Applied reports whether the code validated successfully.
func (r Result) Applied() bool {
	return r.Status == StatusSuccess
}

func Success(amount decimal.Decimal, description string) Result {
	return Result{Status: StatusSuccess, Message: description, DiscountAmount: amount}
}

func Inactive() Result {
	return Result{Status: StatusInactive, Message: "This promo code is no longer active."}
}

func NotYetActive() Result {
	return Result{Status: StatusNotYetActive, Message: "This promo code is not active yet."}
}

func Expired() Result {
	return Result{Status: StatusExpired, Message: "This promo code has expired."}
}

func MaxUsageReached() Result {
	return Result{Status: StatusMaxUsageReached, Message: "This promo code has reached its usage limit."}
}

func UserLimitReached() Result {
	return Result{Status: StatusUserLimitReached, Message: "You have already used this promo code the maximum number of times."}
}

func CurrencyMismatch() Result {
	return Result{Status: StatusCurrencyMismatch, Message: "This promo code cannot be applied to your cart's currency."}
}

func MinimumNotMet(minimum decimal.Decimal, currency string) Result {
	return Result{
		Status:  StatusMinimumNotMet,
		Message: fmt.Sprintf("This promo code requires a minimum order of %s %s.", minimum.StringFixed(2), currency),
	}
}

func NotApplicable() Result {
	return Result{Status: StatusNotApplicable, Message: "This promo code does not apply to your cart."}
}

func NotFound() Result {
	return Result{Status: StatusNotFound, Message: "This promo code does not exist."}
}

// Validator checks promo codes against cart state. Rules are independent
// and checked in a fixed priority order; the first violated rule decides
// which single message the buyer sees.
type Validator struct {
	now func() time.Time
}

// NewValidator returns a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate applies the eligibility rules in priority order and computes
// the discount on success. storeSubtotals maps each store in the cart to
// that store's item subtotal; it is only consulted for seller-scoped
// codes. userUsageCount is how many times this buyer has already consumed
// the code.
func (v *Validator) Validate(code *Code, cartSubtotal decimal.Decimal, cartCurrency string, storeSubtotals map[uuid.UUID]decimal.Decimal, userUsageCount int) Result {
	now := v.now()

	if !code.Active {
		return Inactive()
	}
	if now.Before(code.ValidFrom) {
		return NotYetActive()
	}
	if now.After(code.ValidTo) {
		return Expired()
	}
	if code.MaxUsageCount != nil && code.UsageCount >= *code.MaxUsageCount {
		return MaxUsageReached()
	}
	if code.MaxUsagePerUser != nil && userUsageCount >= *code.MaxUsagePerUser {
		return UserLimitReached()
	}
	if !strings.EqualFold(code.Currency, cartCurrency) {
		return CurrencyMismatch()
	}

	// Scope resolution: seller-scoped codes discount only that store's
	// portion of the cart.
	applicable := cartSubtotal
	if code.Scope == ScopeSeller && code.StoreID != nil {
		sub, ok := storeSubtotals[*code.StoreID]
		if !ok {
			return NotApplicable()
		}
		applicable = sub
	}

	if code.MinimumOrderAmount != nil && applicable.LessThan(*code.MinimumOrderAmount) {
		return MinimumNotMet(*code.MinimumOrderAmount, code.Currency)
	}

	discount := code.CalculateDiscount(applicable)
	if discount.LessThanOrEqual(decimal.Zero) {
		return NotApplicable()
	}

	return Success(discount, describeDiscount(code, discount))
}

func describeDiscount(code *Code, amount decimal.Decimal) string {
	target := "your order"
	if code.Scope == ScopeSeller {
		target = "items from this seller"
	}

	if code.DiscountType == DiscountPercentage {
		return fmt.Sprintf("%s%% off %s (-%s %s)",
			code.Value.String(), target, amount.StringFixed(2), code.Currency)
	}
	return fmt.Sprintf("%s %s off %s", amount.StringFixed(2), code.Currency, target)
}
