// Package order owns the order money lifecycle: orders split into
// per-seller shipments, escrow allocations holding the platform/seller
// split, and refunds that unwind escrow proportionally.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sentinel errors shared by the order lifecycle.
var (
	ErrNotFound         = errors.New("order not found")
	ErrShipmentNotFound = errors.New("shipment not found")
	ErrEmptyItems       = errors.New("items required")
)

// InvalidTransitionError reports a state machine violation.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID uuid.UUID
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Status is the buyer-facing order state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// ShipmentStatus is the per-seller fulfilment state.
type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentPreparing ShipmentStatus = "preparing"
	ShipmentShipped   ShipmentStatus = "shipped"
	ShipmentDelivered ShipmentStatus = "delivered"
	ShipmentRefunded  ShipmentStatus = "refunded"
)

// Line is a purchased product within a shipment. UnitPrice is the live
// price at checkout, re-validated against the cart snapshot beforehand.
type Line struct {
	ProductID uuid.UUID
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Shipment is one store's sub-order. Each shipment maps 1:1 to an escrow
// allocation once payment is confirmed.
type Shipment struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	StoreID      uuid.UUID
	Status       ShipmentStatus
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Currency     string
	Items        []Line
}

// shipmentNext defines the legal forward transitions.
var shipmentNext = map[ShipmentStatus]ShipmentStatus{
	ShipmentPending:   ShipmentPreparing,
	ShipmentPreparing: ShipmentShipped,
	ShipmentShipped:   ShipmentDelivered,
}

// Advance moves the shipment one step along the fulfilment path. It
// returns an InvalidTransitionError for anything but the single legal
// next state.
func (s *Shipment) Advance(to ShipmentStatus) error {
	if next, ok := shipmentNext[s.Status]; !ok || next != to {
		return &InvalidTransitionError{Entity: "shipment", From: string(s.Status), To: string(to)}
	}
	s.Status = to
	return nil
}

// MarkRefunded flags the shipment as fully refunded. Any live shipment
// qualifies: before dispatch a full refund cancels the shipment, after
// delivery it reverses it.
func (s *Shipment) MarkRefunded() error {
	if s.Status == ShipmentRefunded {
		return &InvalidTransitionError{Entity: "shipment", From: string(s.Status), To: string(ShipmentRefunded)}
	}
	s.Status = ShipmentRefunded
	return nil
}

// Order is the buyer's order across all participating stores.
type Order struct {
	ID            uuid.UUID
	BuyerID       uuid.UUID
	Status        Status
	Currency      string
	Subtotal      decimal.Decimal
	ShippingTotal decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	PromoCode     string
	Shipments     []Shipment
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MarkPaid records a confirmed payment on a pending order.
func (o *Order) MarkPaid() error {
	if o.Status != StatusPending {
		return &InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(StatusPaid)}
	}
	o.Status = StatusPaid
	return nil
}

// Cancel aborts a not-yet-paid order.
func (o *Order) Cancel() error {
	if o.Status != StatusPending {
		return &InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(StatusCancelled)}
	}
	o.Status = StatusCancelled
	return nil
}

// Complete closes a paid order once every shipment is delivered or
// refunded.
func (o *Order) Complete() error {
	if o.Status != StatusPaid {
		return &InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(StatusCompleted)}
	}
	for _, s := range o.Shipments {
		if s.Status != ShipmentDelivered && s.Status != ShipmentRefunded {
			return &InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(StatusCompleted)}
		}
	}
	o.Status = StatusCompleted
	return nil
}

// MarkRefunded records that every shipment of a paid order was refunded.
func (o *Order) MarkRefunded() error {
	if o.Status != StatusPaid {
		return &InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(StatusRefunded)}
	}
	for _, s := range o.Shipments {
		if s.Status != ShipmentRefunded {
			return &InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(StatusRefunded)}
		}
	}
	o.Status = StatusRefunded
	return nil
}

// Shipment returns the shipment with the given ID, or nil.
func (o *Order) Shipment(id uuid.UUID) *Shipment {
	for i := range o.Shipments {
		if o.Shipments[i].ID == id {
			return &o.Shipments[i]
		}
	}
	return nil
}

// Repository defines persistence for orders and their shipments.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByShipment(ctx context.Context, shipmentID uuid.UUID) (*Order, error)
	// UpdateStatus persists the order status along with any changed
	// shipment statuses.
	UpdateStatus(ctx context.Context, o *Order) error
}
