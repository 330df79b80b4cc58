package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimo/marketplace/internal/domain/order"
)

var _ order.SettingsRepository = (*SettingsRepository)(nil)

// SettingsRepository implements order.SettingsRepository backed by
// PostgreSQL.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given
// pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetByStores returns the settings rows for the given stores. Stores
// without a row are absent from the map; callers fall back to platform
// defaults.
func (r *SettingsRepository) GetByStores(ctx context.Context, storeIDs []uuid.UUID) (map[uuid.UUID]order.StoreSettings, error) {
	rows, err := db(ctx, r.pool).Query(ctx,
		`SELECT store_id, commission_rate, shipping_flat_fee, free_shipping_over, has_shipping_rule
		 FROM store_settings WHERE store_id = ANY($1)`, storeIDs)
	if err != nil {
		return nil, fmt.Errorf("getting store settings: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]order.StoreSettings, len(storeIDs))
	for rows.Next() {
		var s order.StoreSettings
		err := rows.Scan(&s.StoreID, &s.CommissionRate, &s.ShippingFlatFee,
			&s.FreeShippingOver, &s.HasShippingRule)
		if err != nil {
			return nil, fmt.Errorf("scanning store settings row: %w", err)
		}
		out[s.StoreID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating store settings rows: %w", err)
	}
	return out, nil
}
