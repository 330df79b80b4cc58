package commission

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate(t *testing.T) {
	storeID := uuid.New()

	tests := []struct {
		name           string
		subtotal       decimal.Decimal
		rate           decimal.Decimal
		wantCommission decimal.Decimal
		wantPayout     decimal.Decimal
	}{
		{
			name:           "10 percent of 100",
			subtotal:       dec("100.00"),
			rate:           dec("10"),
			wantCommission: dec("10.00"),
			wantPayout:     dec("90.00"),
		},
		{
			name:           "banker's rounding: half rounds to even (down)",
			subtotal:       dec("100.25"),
			rate:           dec("10"),
			wantCommission: dec("10.02"), // 10.025 -> 10.02, not 10.03
			wantPayout:     dec("90.23"),
		},
		{
			name:           "banker's rounding: half rounds to even (up)",
			subtotal:       dec("100.75"),
			rate:           dec("10"),
			wantCommission: dec("10.08"), // 10.075 -> 10.08
			wantPayout:     dec("90.67"),
		},
		{
			name:           "zero rate",
			subtotal:       dec("50.00"),
			rate:           decimal.Zero,
			wantCommission: dec("0.00"),
			wantPayout:     dec("50.00"),
		},
		{
			name:           "full rate",
			subtotal:       dec("50.00"),
			rate:           dec("100"),
			wantCommission: dec("50.00"),
			wantPayout:     dec("0.00"),
		},
		{
			name:           "fractional rate",
			subtotal:       dec("33.33"),
			rate:           dec("12.5"),
			wantCommission: dec("4.17"), // 4.16625
			wantPayout:     dec("29.16"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(storeID, tt.subtotal, "USD", tt.rate)
			require.NoError(t, err)

			assert.True(t, tt.wantCommission.Equal(got.CommissionAmount),
				"want commission %s, got %s", tt.wantCommission, got.CommissionAmount)
			assert.True(t, tt.wantPayout.Equal(got.SellerPayout),
				"want payout %s, got %s", tt.wantPayout, got.SellerPayout)

			// Money is never created or destroyed by the split.
			assert.True(t, got.CommissionAmount.Add(got.SellerPayout).Equal(tt.subtotal))
		})
	}
}

func TestCalculate_ArgumentErrors(t *testing.T) {
	storeID := uuid.New()

	tests := []struct {
		name     string
		storeID  uuid.UUID
		subtotal decimal.Decimal
		rate     decimal.Decimal
		wantErr  error
	}{
		{name: "empty store id", storeID: uuid.Nil, subtotal: dec("100"), rate: dec("10"), wantErr: ErrEmptyStoreID},
		{name: "negative rate", storeID: storeID, subtotal: dec("100"), rate: dec("-1"), wantErr: ErrRateOutOfRange},
		{name: "rate above 100", storeID: storeID, subtotal: dec("100"), rate: dec("101"), wantErr: ErrRateOutOfRange},
		{name: "zero subtotal", storeID: storeID, subtotal: decimal.Zero, rate: dec("10"), wantErr: ErrNonPositiveAmount},
		{name: "negative subtotal", storeID: storeID, subtotal: dec("-5"), rate: dec("10"), wantErr: ErrNonPositiveAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(tt.storeID, tt.subtotal, "USD", tt.rate)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCalculateRefund(t *testing.T) {
	tests := []struct {
		name          string
		original      decimal.Decimal
		refund        decimal.Decimal
		rate          decimal.Decimal
		wantOriginal  decimal.Decimal
		wantRemaining decimal.Decimal
		wantRefunded  decimal.Decimal
	}{
		{
			name:          "partial refund",
			original:      dec("100.00"),
			refund:        dec("40.00"),
			rate:          dec("10"),
			wantOriginal:  dec("10.00"),
			wantRemaining: dec("6.00"),
			wantRefunded:  dec("4.00"),
		},
		{
			name:          "full refund",
			original:      dec("100.00"),
			refund:        dec("100.00"),
			rate:          dec("10"),
			wantOriginal:  dec("10.00"),
			wantRemaining: dec("0.00"),
			wantRefunded:  dec("10.00"),
		},
		{
			name:     "rounding edge anchors both endpoints",
			original: dec("100.25"),
			refund:   dec("0.50"),
			rate:     dec("10"),
			// original: 10.025 -> 10.02 (half to even);
			// remaining on 99.75: 9.975 -> 9.98; refunded is the difference,
			// not 0.50*10% = 0.05.
			wantOriginal:  dec("10.02"),
			wantRemaining: dec("9.98"),
			wantRefunded:  dec("0.04"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateRefund(tt.original, tt.refund, tt.rate, "USD")
			require.NoError(t, err)

			assert.True(t, tt.wantOriginal.Equal(got.OriginalCommission),
				"want original %s, got %s", tt.wantOriginal, got.OriginalCommission)
			assert.True(t, tt.wantRemaining.Equal(got.RemainingCommission),
				"want remaining %s, got %s", tt.wantRemaining, got.RemainingCommission)
			assert.True(t, tt.wantRefunded.Equal(got.RefundedCommission),
				"want refunded %s, got %s", tt.wantRefunded, got.RefundedCommission)

			// The ledger invariant: no commission appears or vanishes.
			assert.True(t, got.RefundedCommission.Add(got.RemainingCommission).Equal(got.OriginalCommission))
		})
	}
}

func TestCalculateRefund_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name     string
		original decimal.Decimal
		refund   decimal.Decimal
		rate     decimal.Decimal
		wantErr  error
	}{
		{name: "zero original", original: decimal.Zero, refund: dec("1"), rate: dec("10"), wantErr: ErrNonPositiveAmount},
		{name: "zero refund", original: dec("100"), refund: decimal.Zero, rate: dec("10"), wantErr: ErrNonPositiveAmount},
		{name: "negative refund", original: dec("100"), refund: dec("-1"), rate: dec("10"), wantErr: ErrNonPositiveAmount},
		{name: "refund exceeds original", original: dec("100"), refund: dec("100.01"), rate: dec("10"), wantErr: ErrRefundExceedsAmount},
		{name: "rate out of range", original: dec("100"), refund: dec("50"), rate: dec("120"), wantErr: ErrRateOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CalculateRefund(tt.original, tt.refund, tt.rate, "USD")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSplitIsExactAcrossManyValues(t *testing.T) {
	storeID := uuid.New()
	rate := dec("7.5")

	for cents := int64(1); cents <= 500; cents++ {
		subtotal := decimal.New(cents, -2)
		got, err := Calculate(storeID, subtotal, "USD", rate)
		require.NoError(t, err)
		require.True(t, got.CommissionAmount.Add(got.SellerPayout).Equal(subtotal),
			"leak at subtotal %s", subtotal)
	}
}
