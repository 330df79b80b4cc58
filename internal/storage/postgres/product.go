package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendimo/marketplace/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, store_id, name, price, currency, stock, status, active`

// List returns the full catalog of products.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// GetByID returns a single product.
// Returns product.ErrNotFound when the product does not exist.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	row := db(ctx, r.pool).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns the products matching ids. Missing ids are simply absent
// from the result; the caller decides whether that is an error.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]product.Product, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// DecrementStock reduces stock for each product in one transaction. The
// UPDATE guards against going below zero; a zero-row update means the stock
// check failed and the whole batch is rolled back.
func (r *ProductRepository) DecrementStock(ctx context.Context, quantities map[uuid.UUID]int) error {
	return WithTx(ctx, r.pool, func(ctx context.Context) error {
		for id, qty := range quantities {
			tag, err := db(ctx, r.pool).Exec(ctx,
				`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
				id, qty)
			if err != nil {
				return fmt.Errorf("decrementing stock for product %q: %w", id, err)
			}
			if tag.RowsAffected() == 0 {
				return errors.Wrapf(product.ErrInsufficientStock, "product %s", id)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.StoreID, &p.Name, &p.Price.Amount, &p.Price.Currency, &p.Stock, &p.Status, &p.Active)
	return p, err
}

func scanProducts(rows pgx.Rows) ([]product.Product, error) {
	var out []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating product rows: %w", err)
	}
	return out, nil
}
