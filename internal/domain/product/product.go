package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/vendimo/marketplace/internal/domain/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrInsufficientStock is returned when a stock decrement would take a
// product below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

// Status describes a product's listing lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Product is a catalog item listed by a seller's store.
type Product struct {
	ID      uuid.UUID
	StoreID uuid.UUID
	Name    string
	Price   money.Money
	Stock   int
	// Active is a separate kill switch that should always agree with
	// Status. Both are checked at checkout; the redundancy is inherited
	// from the admin surface, where suspension and delisting are distinct
	// actions. Do not collapse the two checks.
	Status Status
	Active bool
}

// Sellable reports whether the product may be purchased right now.
func (p Product) Sellable() bool {
	return p.Status == StatusActive && p.Active
}

// Repository defines read and stock operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	// DecrementStock reduces stock for each (product, quantity) pair.
	// Implementations must fail the whole batch if any product would go
	// below zero.
	DecrementStock(ctx context.Context, quantities map[uuid.UUID]int) error
}
