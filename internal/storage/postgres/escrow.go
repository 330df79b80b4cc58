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

var _ order.EscrowRepository = (*EscrowRepository)(nil)

// EscrowRepository implements order.EscrowRepository backed by PostgreSQL.
type EscrowRepository struct {
	pool *pgxpool.Pool
}

// NewEscrowRepository returns an EscrowRepository that uses the given pool.
func NewEscrowRepository(pool *pgxpool.Pool) *EscrowRepository {
	return &EscrowRepository{pool: pool}
}

const escrowColumns = `id, shipment_id, store_id, status, total_amount,
	seller_amount, commission_amount, commission_rate, shipping_amount,
	refunded_amount, refunded_commission, currency`

// Create persists a batch of held allocations in one transaction, so
// confirming a multi-shipment payment either holds everything or nothing.
func (r *EscrowRepository) Create(ctx context.Context, allocations []order.EscrowAllocation) error {
	return WithTx(ctx, r.pool, func(ctx context.Context) error {
		for _, a := range allocations {
			_, err := db(ctx, r.pool).Exec(ctx,
				`INSERT INTO escrow_allocations (`+escrowColumns+`)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				a.ID, a.ShipmentID, a.StoreID, a.Status, a.TotalAmount,
				a.SellerAmount, a.CommissionAmount, a.CommissionRate, a.ShippingAmount,
				a.RefundedAmount, a.RefundedCommission, a.Currency)
			if err != nil {
				return fmt.Errorf("creating escrow allocation for shipment %q: %w", a.ShipmentID, err)
			}
		}
		return nil
	})
}

// GetByShipment returns the allocation holding the given shipment's funds.
// Returns order.ErrEscrowNotFound when none exists.
func (r *EscrowRepository) GetByShipment(ctx context.Context, shipmentID uuid.UUID) (*order.EscrowAllocation, error) {
	row := db(ctx, r.pool).QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrow_allocations WHERE shipment_id = $1`, shipmentID)

	var a order.EscrowAllocation
	err := row.Scan(&a.ID, &a.ShipmentID, &a.StoreID, &a.Status, &a.TotalAmount,
		&a.SellerAmount, &a.CommissionAmount, &a.CommissionRate, &a.ShippingAmount,
		&a.RefundedAmount, &a.RefundedCommission, &a.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("getting escrow for shipment %q: %w", shipmentID, err)
	}
	return &a, nil
}

// Update persists the allocation's status and refund accumulators. The
// original split columns never change after creation.
func (r *EscrowRepository) Update(ctx context.Context, a *order.EscrowAllocation) error {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE escrow_allocations
		 SET status = $2, refunded_amount = $3, refunded_commission = $4
		 WHERE id = $1`,
		a.ID, a.Status, a.RefundedAmount, a.RefundedCommission)
	if err != nil {
		return fmt.Errorf("updating escrow allocation %q: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrEscrowNotFound
	}
	return nil
}
