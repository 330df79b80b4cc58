package audit

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockOutbox struct {
	events    []Event
	processed []string
	fetchErr  error
	markErr   error
}

func (m *mockOutbox) Unprocessed(_ context.Context, _ int) ([]Event, error) {
	return m.events, m.fetchErr
}

func (m *mockOutbox) MarkProcessed(_ context.Context, id string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.processed = append(m.processed, id)
	return nil
}

type mockWriter struct {
	messages []kafka.Message
	err      error
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func TestPoller_PublishesAndMarks(t *testing.T) {
	orderID := uuid.New()
	ev := NewEvent(orderID, EventPaymentConfirmed).
		WithAmount(decimal.RequireFromString("99.90"), "USD")

	store := &mockOutbox{events: []Event{ev}}
	w := &mockWriter{}
	p := &Poller{store: store, writer: w, batch: 100, lg: zap.NewNop()}

	p.publishPending(context.Background())

	require.Len(t, w.messages, 1)
	assert.Equal(t, orderID.String(), string(w.messages[0].Key))
	assert.Equal(t, []string{ev.ID}, store.processed)

	require.Len(t, w.messages[0].Headers, 1)
	assert.Equal(t, "event_type", w.messages[0].Headers[0].Key)
	assert.Equal(t, string(EventPaymentConfirmed), string(w.messages[0].Headers[0].Value))
}

func TestPoller_PublishFailureLeavesEventUnprocessed(t *testing.T) {
	store := &mockOutbox{events: []Event{NewEvent(uuid.New(), EventOrderCreated)}}
	w := &mockWriter{err: errors.New("broker down")}
	p := &Poller{store: store, writer: w, batch: 100, lg: zap.NewNop()}

	p.publishPending(context.Background())

	assert.Empty(t, store.processed)
}

func TestEncodeEvent(t *testing.T) {
	orderID := uuid.New()
	shipmentID := uuid.New()
	ev := NewEvent(orderID, EventRefundProcessed).
		WithShipment(shipmentID).
		WithAmount(decimal.RequireFromString("40"), "USD").
		WithMeta("refunded_commission", "4.00")

	payload := EncodeEvent(ev)

	var (
		gotType     string
		gotAmount   string
		gotShipment string
	)
	d := jx.DecodeBytes(payload)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			v, err := d.Str()
			gotType = v
			return err
		case "amount":
			v, err := d.Str()
			gotAmount = v
			return err
		case "shipment_id":
			v, err := d.Str()
			gotShipment = v
			return err
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, string(EventRefundProcessed), gotType)
	assert.Equal(t, "40.00", gotAmount)
	assert.Equal(t, shipmentID.String(), gotShipment)
}
