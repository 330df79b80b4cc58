package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimo/marketplace/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Orders
// and shipments live in separate tables; shipment line items are serialized
// to JSON for storage in a JSONB column.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order together with its shipments.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := db(ctx, r.pool).Exec(ctx,
			`INSERT INTO orders (id, buyer_id, status, currency, subtotal, shipping_total,
				discount, total, promo_code, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			o.ID, o.BuyerID, o.Status, o.Currency, o.Subtotal, o.ShippingTotal,
			o.Discount, o.Total, o.PromoCode, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}

		for _, sh := range o.Shipments {
			itemsJSON, err := json.Marshal(sh.Items)
			if err != nil {
				return fmt.Errorf("marshaling shipment items: %w", err)
			}
			_, err = db(ctx, r.pool).Exec(ctx,
				`INSERT INTO shipments (id, order_id, store_id, status, subtotal,
					shipping_cost, currency, items)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				sh.ID, sh.OrderID, sh.StoreID, sh.Status, sh.Subtotal,
				sh.ShippingCost, sh.Currency, itemsJSON)
			if err != nil {
				return fmt.Errorf("creating shipment %q: %w", sh.ID, err)
			}
		}
		return nil
	})
}

// Get returns an order with all of its shipments.
// Returns order.ErrNotFound when the order does not exist.
func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.get(ctx, `WHERE o.id = $1`, id)
}

// GetByShipment returns the order owning the given shipment.
// Returns order.ErrNotFound when no such shipment exists.
func (r *OrderRepository) GetByShipment(ctx context.Context, shipmentID uuid.UUID) (*order.Order, error) {
	return r.get(ctx, `WHERE o.id = (SELECT order_id FROM shipments WHERE id = $1)`, shipmentID)
}

func (r *OrderRepository) get(ctx context.Context, where string, arg any) (*order.Order, error) {
	row := db(ctx, r.pool).QueryRow(ctx,
		`SELECT o.id, o.buyer_id, o.status, o.currency, o.subtotal, o.shipping_total,
			o.discount, o.total, o.promo_code, o.created_at, o.updated_at
		 FROM orders o `+where, arg)

	var o order.Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.Status, &o.Currency, &o.Subtotal,
		&o.ShippingTotal, &o.Discount, &o.Total, &o.PromoCode, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	rows, err := db(ctx, r.pool).Query(ctx,
		`SELECT id, order_id, store_id, status, subtotal, shipping_cost, currency, items
		 FROM shipments WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting shipments for order %q: %w", o.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var sh order.Shipment
		var itemsJSON []byte
		err := rows.Scan(&sh.ID, &sh.OrderID, &sh.StoreID, &sh.Status,
			&sh.Subtotal, &sh.ShippingCost, &sh.Currency, &itemsJSON)
		if err != nil {
			return nil, fmt.Errorf("scanning shipment row: %w", err)
		}
		if err := json.Unmarshal(itemsJSON, &sh.Items); err != nil {
			return nil, fmt.Errorf("unmarshaling shipment items: %w", err)
		}
		o.Shipments = append(o.Shipments, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shipment rows: %w", err)
	}
	return &o, nil
}

// UpdateStatus persists the order status and every shipment status in one
// transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	return WithTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := db(ctx, r.pool).Exec(ctx,
			`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, o.ID, o.Status)
		if err != nil {
			return fmt.Errorf("updating order %q: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrNotFound
		}

		for _, sh := range o.Shipments {
			_, err := db(ctx, r.pool).Exec(ctx,
				`UPDATE shipments SET status = $2 WHERE id = $1`, sh.ID, sh.Status)
			if err != nil {
				return fmt.Errorf("updating shipment %q: %w", sh.ID, err)
			}
		}
		return nil
	})
}
