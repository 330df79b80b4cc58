package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimo/marketplace/internal/domain/order"
)

var _ order.RefundRepository = (*RefundRepository)(nil)

// RefundRepository implements order.RefundRepository backed by PostgreSQL.
type RefundRepository struct {
	pool *pgxpool.Pool
}

// NewRefundRepository returns a RefundRepository that uses the given pool.
func NewRefundRepository(pool *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{pool: pool}
}

const refundColumns = `id, shipment_id, amount, currency, reason, status, created_at, processed_at`

// Create persists a new refund claim.
func (r *RefundRepository) Create(ctx context.Context, ref *order.Refund) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`INSERT INTO refunds (`+refundColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ref.ID, ref.ShipmentID, ref.Amount, ref.Currency, ref.Reason,
		ref.Status, ref.CreatedAt, ref.ProcessedAt)
	if err != nil {
		return fmt.Errorf("creating refund %q: %w", ref.ID, err)
	}
	return nil
}

// Get returns a single refund.
// Returns order.ErrRefundNotFound when the refund does not exist.
func (r *RefundRepository) Get(ctx context.Context, id uuid.UUID) (*order.Refund, error) {
	row := db(ctx, r.pool).QueryRow(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id)

	var ref order.Refund
	err := row.Scan(&ref.ID, &ref.ShipmentID, &ref.Amount, &ref.Currency,
		&ref.Reason, &ref.Status, &ref.CreatedAt, &ref.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrRefundNotFound
		}
		return nil, fmt.Errorf("getting refund %q: %w", id, err)
	}
	return &ref, nil
}

// Update persists the refund's status and processing timestamp.
func (r *RefundRepository) Update(ctx context.Context, ref *order.Refund) error {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE refunds SET status = $2, processed_at = $3 WHERE id = $1`,
		ref.ID, ref.Status, ref.ProcessedAt)
	if err != nil {
		return fmt.Errorf("updating refund %q: %w", ref.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrRefundNotFound
	}
	return nil
}
