package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimo/marketplace/internal/domain/promo"
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

const promoColumns = `id, code, discount_type, value, scope, store_id,
	valid_from, valid_to, max_usage_count, max_usage_per_user,
	minimum_order_amount, maximum_discount_amount, currency, usage_count, active`

// FindByCode looks up a promo code case-insensitively.
// Returns promo.ErrNotFound when no such code exists.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Code, error) {
	row := db(ctx, r.pool).QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE UPPER(code) = UPPER($1)`, code)

	var c promo.Code
	err := row.Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.Value, &c.Scope, &c.StoreID,
		&c.ValidFrom, &c.ValidTo, &c.MaxUsageCount, &c.MaxUsagePerUser,
		&c.MinimumOrderAmount, &c.MaximumDiscountAmount, &c.Currency, &c.UsageCount, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}
	return &c, nil
}

// IncrementUsage bumps the global usage counter and records the user's
// consumption in one transaction.
func (r *PromoRepository) IncrementUsage(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	return WithTx(ctx, r.pool, func(ctx context.Context) error {
		tag, err := db(ctx, r.pool).Exec(ctx,
			`UPDATE promo_codes SET usage_count = usage_count + 1 WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("incrementing usage for promo %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return promo.ErrNotFound
		}

		_, err = db(ctx, r.pool).Exec(ctx,
			`INSERT INTO promo_usages (promo_code_id, user_id) VALUES ($1, $2)`, id, userID)
		if err != nil {
			return fmt.Errorf("recording promo usage for user %q: %w", userID, err)
		}
		return nil
	})
}

// CountUserUsage returns how many times the user has consumed the code.
func (r *PromoRepository) CountUserUsage(ctx context.Context, id uuid.UUID, userID uuid.UUID) (int, error) {
	var count int
	err := db(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM promo_usages WHERE promo_code_id = $1 AND user_id = $2`,
		id, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting promo usage: %w", err)
	}
	return count, nil
}

// Create inserts a new promo code.
func (r *PromoRepository) Create(ctx context.Context, c *promo.Code) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`INSERT INTO promo_codes (`+promoColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (code) DO NOTHING`,
		c.ID, c.Code, c.DiscountType, c.Value, c.Scope, c.StoreID,
		c.ValidFrom, c.ValidTo, c.MaxUsageCount, c.MaxUsagePerUser,
		c.MinimumOrderAmount, c.MaximumDiscountAmount, c.Currency, c.UsageCount, c.Active)
	if err != nil {
		return fmt.Errorf("creating promo code %q: %w", c.Code, err)
	}
	return nil
}

// Deactivate turns a promo code off without deleting its usage history.
func (r *PromoRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE promo_codes SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating promo %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}
