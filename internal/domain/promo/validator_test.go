package promo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// baseCode returns a code that passes every rule at fixedNow.
func baseCode(fixedNow time.Time) Code {
	return Code{
		ID:           uuid.New(),
		Code:         "SAVE10",
		DiscountType: DiscountPercentage,
		Value:        dec("10"),
		Scope:        ScopePlatform,
		ValidFrom:    fixedNow.Add(-24 * time.Hour),
		ValidTo:      fixedNow.Add(24 * time.Hour),
		Currency:     "USD",
		Active:       true,
	}
}

func TestValidate_PriorityOrder(t *testing.T) {
	fixedNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storeID := uuid.New()

	tests := []struct {
		name           string
		mutate         func(*Code)
		cartSubtotal   decimal.Decimal
		storeSubtotals map[uuid.UUID]decimal.Decimal
		userUsage      int
		wantStatus     Status
	}{
		{
			name:         "all rules pass",
			mutate:       func(*Code) {},
			cartSubtotal: dec("100"),
			wantStatus:   StatusSuccess,
		},
		{
			name:         "inactive wins over everything",
			mutate:       func(c *Code) { c.Active = false; c.ValidTo = fixedNow.Add(-time.Hour) },
			cartSubtotal: dec("100"),
			wantStatus:   StatusInactive,
		},
		{
			name:         "not yet active",
			mutate:       func(c *Code) { c.ValidFrom = fixedNow.Add(time.Hour) },
			cartSubtotal: dec("100"),
			wantStatus:   StatusNotYetActive,
		},
		{
			name:         "expired even when all later rules pass",
			mutate:       func(c *Code) { c.ValidTo = fixedNow.Add(-time.Hour) },
			cartSubtotal: dec("100"),
			wantStatus:   StatusExpired,
		},
		{
			name: "max usage reached before per-user limit when both violated",
			mutate: func(c *Code) {
				c.MaxUsageCount = intPtr(100)
				c.UsageCount = 100
				c.MaxUsagePerUser = intPtr(1)
			},
			cartSubtotal: dec("100"),
			userUsage:    5,
			wantStatus:   StatusMaxUsageReached,
		},
		{
			name: "per-user limit reached",
			mutate: func(c *Code) {
				c.MaxUsagePerUser = intPtr(2)
			},
			cartSubtotal: dec("100"),
			userUsage:    2,
			wantStatus:   StatusUserLimitReached,
		},
		{
			name:         "currency mismatch",
			mutate:       func(c *Code) { c.Currency = "EUR" },
			cartSubtotal: dec("100"),
			wantStatus:   StatusCurrencyMismatch,
		},
		{
			name: "seller scope with store absent from cart",
			mutate: func(c *Code) {
				c.Scope = ScopeSeller
				c.StoreID = &storeID
			},
			cartSubtotal:   dec("100"),
			storeSubtotals: map[uuid.UUID]decimal.Decimal{uuid.New(): dec("100")},
			wantStatus:     StatusNotApplicable,
		},
		{
			name: "seller scope minimum checked against store subtotal",
			mutate: func(c *Code) {
				c.Scope = ScopeSeller
				c.StoreID = &storeID
				c.MinimumOrderAmount = decPtr("50")
			},
			cartSubtotal:   dec("200"),
			storeSubtotals: map[uuid.UUID]decimal.Decimal{storeID: dec("30")},
			wantStatus:     StatusMinimumNotMet,
		},
		{
			name: "minimum order not met",
			mutate: func(c *Code) {
				c.DiscountType = DiscountFixedAmount
				c.Value = dec("5")
				c.MinimumOrderAmount = decPtr("25")
			},
			cartSubtotal: dec("20"),
			wantStatus:   StatusMinimumNotMet,
		},
		{
			name: "zero discount is not applicable",
			mutate: func(c *Code) {
				c.Value = decimal.Zero
			},
			cartSubtotal: dec("100"),
			wantStatus:   StatusNotApplicable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := baseCode(fixedNow)
			tt.mutate(&code)

			v := NewValidator()
			v.now = func() time.Time { return fixedNow }

			got := v.Validate(&code, tt.cartSubtotal, "USD", tt.storeSubtotals, tt.userUsage)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantStatus == StatusSuccess, got.Applied())
			if !got.Applied() {
				assert.NotEmpty(t, got.Message)
				assert.True(t, got.DiscountAmount.IsZero())
			}
		})
	}
}

func TestValidate_CurrencyCompareIsCaseInsensitive(t *testing.T) {
	fixedNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code := baseCode(fixedNow)
	code.Currency = "usd"

	v := NewValidator()
	v.now = func() time.Time { return fixedNow }

	got := v.Validate(&code, dec("100"), "USD", nil, 0)
	assert.Equal(t, StatusSuccess, got.Status)
}

func TestValidate_SuccessDetails(t *testing.T) {
	fixedNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storeID := uuid.New()

	t.Run("platform percentage", func(t *testing.T) {
		code := baseCode(fixedNow)

		v := NewValidator()
		v.now = func() time.Time { return fixedNow }

		got := v.Validate(&code, dec("200"), "USD", nil, 0)
		require.True(t, got.Applied())
		assert.True(t, dec("20").Equal(got.DiscountAmount))
		assert.Equal(t, "10% off your order (-20.00 USD)", got.Message)
	})

	t.Run("seller fixed amount", func(t *testing.T) {
		code := baseCode(fixedNow)
		code.DiscountType = DiscountFixedAmount
		code.Value = dec("5")
		code.Scope = ScopeSeller
		code.StoreID = &storeID

		v := NewValidator()
		v.now = func() time.Time { return fixedNow }

		got := v.Validate(&code, dec("200"), "USD",
			map[uuid.UUID]decimal.Decimal{storeID: dec("80")}, 0)
		require.True(t, got.Applied())
		assert.True(t, dec("5").Equal(got.DiscountAmount))
		assert.Equal(t, "5.00 USD off items from this seller", got.Message)
	})
}
