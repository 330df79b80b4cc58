package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendimo/marketplace/internal/domain/cart"
)

// StoreSettings carries the per-store policies checkout needs: the
// negotiated commission rate and the shipping policy.
type StoreSettings struct {
	StoreID          uuid.UUID
	CommissionRate   decimal.Decimal
	ShippingFlatFee  decimal.Decimal
	FreeShippingOver *decimal.Decimal
	HasShippingRule  bool
}

// ShippingRule returns the store's shipping policy, or nil when the store
// has none (free shipping by default).
func (s StoreSettings) ShippingRule() cart.ShippingRule {
	if !s.HasShippingRule {
		return nil
	}
	return cart.TieredRule{FlatFee: s.ShippingFlatFee, FreeOverTotal: s.FreeShippingOver}
}

// SettingsRepository provides store policies keyed by store.
type SettingsRepository interface {
	GetByStores(ctx context.Context, storeIDs []uuid.UUID) (map[uuid.UUID]StoreSettings, error)
}
