package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrRefundNotFound is returned when a refund does not exist.
var ErrRefundNotFound = errors.New("refund not found")

// RefundStatus is the refund workflow state.
type RefundStatus string

const (
	RefundRequested RefundStatus = "requested"
	RefundApproved  RefundStatus = "approved"
	RefundRejected  RefundStatus = "rejected"
	RefundProcessed RefundStatus = "processed"
)

// Refund is a buyer's refund claim against one shipment. Money only moves
// when the refund is processed; approval is a review step.
type Refund struct {
	ID          uuid.UUID
	ShipmentID  uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Reason      string
	Status      RefundStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewRefund opens a refund claim.
func NewRefund(shipmentID uuid.UUID, amount decimal.Decimal, currency, reason string) *Refund {
	return &Refund{
		ID:         uuid.New(),
		ShipmentID: shipmentID,
		Amount:     amount,
		Currency:   currency,
		Reason:     reason,
		Status:     RefundRequested,
		CreatedAt:  time.Now().UTC(),
	}
}

// Approve moves a requested refund into the approved state.
func (r *Refund) Approve() error {
	if r.Status != RefundRequested {
		return &InvalidTransitionError{Entity: "refund", From: string(r.Status), To: string(RefundApproved)}
	}
	r.Status = RefundApproved
	return nil
}

// Reject declines a requested refund.
func (r *Refund) Reject() error {
	if r.Status != RefundRequested {
		return &InvalidTransitionError{Entity: "refund", From: string(r.Status), To: string(RefundRejected)}
	}
	r.Status = RefundRejected
	return nil
}

// MarkProcessed records that the money movement happened.
func (r *Refund) MarkProcessed(at time.Time) error {
	if r.Status != RefundApproved {
		return &InvalidTransitionError{Entity: "refund", From: string(r.Status), To: string(RefundProcessed)}
	}
	r.Status = RefundProcessed
	r.ProcessedAt = &at
	return nil
}

// RefundRepository defines persistence for refunds.
type RefundRepository interface {
	Create(ctx context.Context, r *Refund) error
	Get(ctx context.Context, id uuid.UUID) (*Refund, error)
	Update(ctx context.Context, r *Refund) error
}
