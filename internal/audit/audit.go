// Package audit records the immutable money-lifecycle events required for
// compliance: order creation, payment confirmation, escrow movements, and
// refunds. Events are written to an outbox in the same database as the
// order data and shipped to Kafka asynchronously, so delivery is
// at-least-once and consumers must deduplicate by event ID.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// EventType enumerates the recorded lifecycle events.
type EventType string

const (
	EventOrderCreated     EventType = "order_created"
	EventOrderCancelled   EventType = "order_cancelled"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventEscrowHeld       EventType = "escrow_held"
	EventEscrowReleased   EventType = "escrow_released"
	EventRefundRequested  EventType = "refund_requested"
	EventRefundProcessed  EventType = "refund_processed"
	EventRefundRejected   EventType = "refund_rejected"
	EventPromoConsumed    EventType = "promo_consumed"
)

// Event is a single compliance ledger entry. IDs are ULIDs so the ledger
// sorts chronologically by ID alone.
type Event struct {
	ID         string
	OrderID    uuid.UUID
	ShipmentID *uuid.UUID
	Type       EventType
	Amount     *decimal.Decimal
	Currency   string
	Metadata   map[string]string
	OccurredAt time.Time
}

// NewEvent stamps a fresh ledger entry.
func NewEvent(orderID uuid.UUID, typ EventType) Event {
	return Event{
		ID:         ulid.Make().String(),
		OrderID:    orderID,
		Type:       typ,
		OccurredAt: time.Now().UTC(),
	}
}

// WithShipment attaches the shipment the event belongs to.
func (e Event) WithShipment(shipmentID uuid.UUID) Event {
	e.ShipmentID = &shipmentID
	return e
}

// WithAmount attaches the monetary amount the event moved.
func (e Event) WithAmount(amount decimal.Decimal, currency string) Event {
	e.Amount = &amount
	e.Currency = currency
	return e
}

// WithMeta attaches one metadata pair.
func (e Event) WithMeta(key, value string) Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 2)
	}
	e.Metadata[key] = value
	return e
}

// Recorder persists ledger entries. Implementations write to the outbox
// table; the Poller handles downstream delivery.
type Recorder interface {
	Record(ctx context.Context, events ...Event) error
}

// OutboxStore is the poller's view of the outbox.
type OutboxStore interface {
	Unprocessed(ctx context.Context, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, eventID string) error
}
