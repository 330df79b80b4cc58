package cart

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendimo/marketplace/internal/domain/money"
	"github.com/vendimo/marketplace/internal/domain/product"
)

// ItemStatus classifies the outcome of validating one cart line against
// live product state.
type ItemStatus string

const (
	ItemValid               ItemStatus = "valid"
	ItemProductNotFound     ItemStatus = "product_not_found"
	ItemProductInactive     ItemStatus = "product_inactive"
	ItemInsufficientStock   ItemStatus = "insufficient_stock"
	ItemPriceChanged        ItemStatus = "price_changed"
	ItemStockAndPriceIssues ItemStatus = "stock_and_price_issues"
)

// ItemResult is the validation outcome for a single cart line.
type ItemResult struct {
	ProductID      uuid.UUID
	ProductName    string
	Status         ItemStatus
	Message        string
	AvailableStock int
	CurrentPrice   decimal.Decimal
}

// ValidationResult aggregates per-item outcomes for a whole cart.
type ValidationResult struct {
	Items []ItemResult
}

// OK reports whether every item validated cleanly.
func (r ValidationResult) OK() bool {
	for _, item := range r.Items {
		if item.Status != ItemValid {
			return false
		}
	}
	return true
}

// HasStockIssues reports whether any item is unavailable or short on stock.
func (r ValidationResult) HasStockIssues() bool {
	for _, item := range r.Items {
		switch item.Status {
		case ItemProductNotFound, ItemProductInactive, ItemInsufficientStock, ItemStockAndPriceIssues:
			return true
		}
	}
	return false
}

// HasPriceChanges reports whether any item's live price differs from the
// price captured at add-to-cart time.
func (r ValidationResult) HasPriceChanges() bool {
	for _, item := range r.Items {
		if item.Status == ItemPriceChanged || item.Status == ItemStockAndPriceIssues {
			return true
		}
	}
	return false
}

// Summary joins the messages of all failing items into one human-readable
// string. Empty when the cart is valid.
func (r ValidationResult) Summary() string {
	var msgs []string
	for _, item := range r.Items {
		if item.Status != ItemValid {
			msgs = append(msgs, item.Message)
		}
	}
	return strings.Join(msgs, " ")
}

// CheckoutValidator re-validates cart items against live product state.
// Checkout must call this immediately before payment and never trust the
// prices and stock cached in the cart.
type CheckoutValidator struct{}

// ValidateItems checks every cart line against the given live products.
// It is a pure function: no mutation, no I/O.
func (CheckoutValidator) ValidateItems(items []Item, productsByID map[uuid.UUID]product.Product) ValidationResult {
	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		results = append(results, validateItem(item, productsByID))
	}
	return ValidationResult{Items: results}
}

func validateItem(item Item, productsByID map[uuid.UUID]product.Product) ItemResult {
	p, ok := productsByID[item.ProductID]
	if !ok {
		return ItemResult{
			ProductID: item.ProductID,
			Status:    ItemProductNotFound,
			Message:   "An item in your cart is no longer available.",
		}
	}

	if !p.Sellable() {
		return ItemResult{
			ProductID:   item.ProductID,
			ProductName: p.Name,
			Status:      ItemProductInactive,
			Message:     fmt.Sprintf("%s is no longer available for purchase.", p.Name),
		}
	}

	added := money.Money{Amount: item.UnitPriceAtAddition, Currency: item.CurrencyAtAddition}
	if added.Currency == "" {
		// Carts written before currency capture carry none; assume the
		// product's own currency so only the amount is compared.
		added.Currency = p.Price.Currency
	}

	stockIssue := p.Stock < item.Quantity
	priceIssue := !p.Price.Equal(added)

	result := ItemResult{
		ProductID:      item.ProductID,
		ProductName:    p.Name,
		Status:         ItemValid,
		AvailableStock: p.Stock,
		CurrentPrice:   p.Price.Amount,
	}

	switch {
	case stockIssue && priceIssue:
		result.Status = ItemStockAndPriceIssues
		result.Message = stockMessage(p, item.Quantity) + " " + priceMessage(p, added)
	case stockIssue:
		result.Status = ItemInsufficientStock
		result.Message = stockMessage(p, item.Quantity)
	case priceIssue:
		result.Status = ItemPriceChanged
		result.Message = priceMessage(p, added)
	}

	return result
}

func stockMessage(p product.Product, requested int) string {
	if p.Stock == 0 {
		return fmt.Sprintf("%s is out of stock.", p.Name)
	}
	return fmt.Sprintf("%s has only %d items available, but you requested %d.", p.Name, p.Stock, requested)
}

func priceMessage(p product.Product, added money.Money) string {
	if !p.Price.SameCurrency(added) {
		return fmt.Sprintf("The price of %s has changed from %s to %s.",
			p.Name, added, p.Price)
	}
	direction := "increased"
	if p.Price.Amount.LessThan(added.Amount) {
		direction = "decreased"
	}
	return fmt.Sprintf("The price of %s has %s from %s to %s.",
		p.Name, direction, added.Amount.StringFixed(2), p.Price.Amount.StringFixed(2))
}
