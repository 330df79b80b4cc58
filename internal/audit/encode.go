package audit

import (
	"time"

	"github.com/go-faster/jx"
)

// EncodeEvent renders an event as the JSON payload published to Kafka.
func EncodeEvent(ev Event) []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("event_id")
	e.Str(ev.ID)
	e.FieldStart("order_id")
	e.Str(ev.OrderID.String())
	if ev.ShipmentID != nil {
		e.FieldStart("shipment_id")
		e.Str(ev.ShipmentID.String())
	}
	e.FieldStart("type")
	e.Str(string(ev.Type))
	if ev.Amount != nil {
		e.FieldStart("amount")
		e.Str(ev.Amount.StringFixed(2))
		e.FieldStart("currency")
		e.Str(ev.Currency)
	}
	if len(ev.Metadata) > 0 {
		e.FieldStart("metadata")
		e.ObjStart()
		for k, v := range ev.Metadata {
			e.FieldStart(k)
			e.Str(v)
		}
		e.ObjEnd()
	}
	e.FieldStart("occurred_at")
	e.Str(ev.OccurredAt.Format(time.RFC3339Nano))

	e.ObjEnd()
	return e.Bytes()
}
