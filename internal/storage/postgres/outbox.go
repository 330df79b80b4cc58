package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimo/marketplace/internal/audit"
)

var (
	_ audit.Recorder    = (*OutboxRepository)(nil)
	_ audit.OutboxStore = (*OutboxRepository)(nil)
)

// OutboxRepository stores audit events in the transactional outbox table.
// It is both the write side (audit.Recorder) and the poller's read side
// (audit.OutboxStore).
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Record appends events to the outbox. When the context carries a
// transaction the inserts join it, so events commit atomically with the
// state change that produced them.
func (r *OutboxRepository) Record(ctx context.Context, events ...audit.Event) error {
	for _, ev := range events {
		metaJSON, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling event metadata: %w", err)
		}
		_, err = db(ctx, r.pool).Exec(ctx,
			`INSERT INTO audit_outbox (id, order_id, shipment_id, event_type,
				amount, currency, metadata, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ev.ID, ev.OrderID, ev.ShipmentID, ev.Type,
			ev.Amount, ev.Currency, metaJSON, ev.OccurredAt)
		if err != nil {
			return fmt.Errorf("recording audit event %q: %w", ev.ID, err)
		}
	}
	return nil
}

// Unprocessed returns up to limit events not yet delivered downstream,
// oldest first. Event IDs are ULIDs, so ordering by id is ordering by time.
func (r *OutboxRepository) Unprocessed(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := db(ctx, r.pool).Query(ctx,
		`SELECT id, order_id, shipment_id, event_type, amount, currency, metadata, occurred_at
		 FROM audit_outbox WHERE processed_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unprocessed events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var ev audit.Event
		var metaJSON []byte
		err := rows.Scan(&ev.ID, &ev.OrderID, &ev.ShipmentID, &ev.Type,
			&ev.Amount, &ev.Currency, &metaJSON, &ev.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scanning outbox row: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling event metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox rows: %w", err)
	}
	return out, nil
}

// MarkProcessed stamps an event as delivered.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE audit_outbox SET processed_at = NOW() WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("marking event %q processed: %w", eventID, err)
	}
	return nil
}
