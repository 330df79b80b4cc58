package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendimo/marketplace/internal/domain/commission"
)

// Escrow errors.
var (
	ErrEscrowNotFound    = errors.New("escrow allocation not found")
	ErrEscrowNotHeld     = errors.New("escrow allocation is not holding funds")
	ErrRefundExceedsHeld = errors.New("refund exceeds the amount held in escrow")
)

// EscrowStatus is the lifecycle of platform-held funds for one shipment.
type EscrowStatus string

const (
	EscrowHeld              EscrowStatus = "held"
	EscrowPartiallyRefunded EscrowStatus = "partially_refunded"
	EscrowRefunded          EscrowStatus = "refunded"
	EscrowReleased          EscrowStatus = "released"
	EscrowPaidOut           EscrowStatus = "paid_out"
)

// EscrowAllocation holds one shipment's funds until release conditions
// are met. TotalAmount is the goods subtotal; shipping is tracked apart
// from the commission split. The allocation keeps the original split
// immutable and accumulates refunds separately, so at every point
// SellerAmount+CommissionAmount == TotalAmount and
// RemainingCommission()+RefundedCommission == CommissionAmount.
type EscrowAllocation struct {
	ID                 uuid.UUID
	ShipmentID         uuid.UUID
	StoreID            uuid.UUID
	Status             EscrowStatus
	TotalAmount        decimal.Decimal
	SellerAmount       decimal.Decimal
	CommissionAmount   decimal.Decimal
	CommissionRate     decimal.Decimal
	ShippingAmount     decimal.Decimal
	RefundedAmount     decimal.Decimal
	RefundedCommission decimal.Decimal
	Currency           string
}

// NewEscrowAllocation builds a held allocation from a computed commission
// split.
func NewEscrowAllocation(shipmentID uuid.UUID, sc commission.SellerCommission, shipping decimal.Decimal) EscrowAllocation {
	return EscrowAllocation{
		ID:                 uuid.New(),
		ShipmentID:         shipmentID,
		StoreID:            sc.StoreID,
		Status:             EscrowHeld,
		TotalAmount:        sc.OrderSubtotal,
		SellerAmount:       sc.SellerPayout,
		CommissionAmount:   sc.CommissionAmount,
		CommissionRate:     sc.Rate,
		ShippingAmount:     shipping,
		RefundedAmount:     decimal.Zero,
		RefundedCommission: decimal.Zero,
		Currency:           sc.Currency,
	}
}

// RemainingAmount is the goods value still held after refunds.
func (e *EscrowAllocation) RemainingAmount() decimal.Decimal {
	return e.TotalAmount.Sub(e.RefundedAmount)
}

// RemainingCommission is the commission still owed to the platform.
func (e *EscrowAllocation) RemainingCommission() decimal.Decimal {
	return e.CommissionAmount.Sub(e.RefundedCommission)
}

// RemainingSellerAmount is the payout still owed to the seller.
func (e *EscrowAllocation) RemainingSellerAmount() decimal.Decimal {
	return e.RemainingAmount().Sub(e.RemainingCommission())
}

// ApplyRefund reduces the held amount by refundAmount and recomputes the
// commission reversal with the allocation's historical rate. The
// cumulative refunded amount is re-anchored against the original total on
// every call, so repeated partial refunds cannot accumulate rounding
// drift.
func (e *EscrowAllocation) ApplyRefund(refundAmount decimal.Decimal) (commission.RefundCommission, error) {
	if e.Status != EscrowHeld && e.Status != EscrowPartiallyRefunded {
		return commission.RefundCommission{}, errors.Wrapf(ErrEscrowNotHeld, "status %s", e.Status)
	}
	if refundAmount.GreaterThan(e.RemainingAmount()) {
		return commission.RefundCommission{}, ErrRefundExceedsHeld
	}

	cumulative := e.RefundedAmount.Add(refundAmount)
	rc, err := commission.CalculateRefund(e.TotalAmount, cumulative, e.CommissionRate, e.Currency)
	if err != nil {
		return commission.RefundCommission{}, err
	}

	e.RefundedAmount = cumulative
	e.RefundedCommission = rc.RefundedCommission
	if e.RefundedAmount.Equal(e.TotalAmount) {
		e.Status = EscrowRefunded
	} else {
		e.Status = EscrowPartiallyRefunded
	}
	return rc, nil
}

// Release frees the remaining funds for payout once the shipment has been
// delivered and the refund window closed.
func (e *EscrowAllocation) Release() error {
	if e.Status != EscrowHeld && e.Status != EscrowPartiallyRefunded {
		return &InvalidTransitionError{Entity: "escrow", From: string(e.Status), To: string(EscrowReleased)}
	}
	e.Status = EscrowReleased
	return nil
}

// MarkPaidOut records the settlement transfer to the seller.
func (e *EscrowAllocation) MarkPaidOut() error {
	if e.Status != EscrowReleased {
		return &InvalidTransitionError{Entity: "escrow", From: string(e.Status), To: string(EscrowPaidOut)}
	}
	e.Status = EscrowPaidOut
	return nil
}

// EscrowRepository defines persistence for escrow allocations.
type EscrowRepository interface {
	Create(ctx context.Context, allocations []EscrowAllocation) error
	GetByShipment(ctx context.Context, shipmentID uuid.UUID) (*EscrowAllocation, error)
	Update(ctx context.Context, e *EscrowAllocation) error
}
