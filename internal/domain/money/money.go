// Package money provides the immutable monetary value object shared by all
// pricing and settlement code.
package money

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when two values with different currencies
// are combined.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// ErrInvalidCurrency is wrapped by ValidateCurrency failures.
var ErrInvalidCurrency = errors.New("invalid currency code")

// Money is an amount in a single ISO 4217 currency. The zero value is not
// valid; construct via New. Arithmetic is performed on the raw
// decimal and a new Money is reconstructed, so a Money can never silently
// change currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// New validates the currency code and returns the value.
func New(amount decimal.Decimal, currency string) (Money, error) {
	if err := ValidateCurrency(currency); err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// MustNew is New that panics on an invalid currency. Intended for constants
// and tests.
func MustNew(amount decimal.Decimal, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Equal reports value equality: same currency and numerically equal amount.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// SameCurrency reports whether both values share a currency.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

// String renders the amount with two decimal places and the currency code.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}

// ValidateCurrency checks that the code is a 3-letter uppercase ISO code.
func ValidateCurrency(currency string) error {
	if len(currency) != 3 {
		return errors.Wrapf(ErrInvalidCurrency, "%q: must be a 3-letter ISO code", currency)
	}
	for i := range len(currency) {
		c := currency[i]
		if c < 'A' || c > 'Z' {
			return errors.Wrapf(ErrInvalidCurrency, "%q: must be uppercase letters", currency)
		}
	}
	return nil
}
