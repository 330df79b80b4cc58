package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vendimo/marketplace/internal/domain/cart"
	"github.com/vendimo/marketplace/internal/domain/order"
	"github.com/vendimo/marketplace/internal/domain/promo"
)

type checkoutItem struct {
	ProductID uuid.UUID `json:"product_id"`
	StoreID   uuid.UUID `json:"store_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price_at_addition"`
	Currency  string    `json:"currency_at_addition"`
}

type checkoutRequest struct {
	BuyerID   uuid.UUID      `json:"buyer_id"`
	Currency  string         `json:"currency"`
	PromoCode string         `json:"promo_code,omitempty"`
	Items     []checkoutItem `json:"items"`
}

type itemResultDTO struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name,omitempty"`
	Status         string    `json:"status"`
	Message        string    `json:"message,omitempty"`
	AvailableStock int       `json:"available_stock,omitempty"`
	CurrentPrice   string    `json:"current_price,omitempty"`
}

type validationDTO struct {
	OK      bool            `json:"ok"`
	Summary string          `json:"summary,omitempty"`
	Items   []itemResultDTO `json:"items"`
}

type promoResultDTO struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	DiscountAmount string `json:"discount_amount,omitempty"`
}

type checkoutFailedResponse struct {
	Code       int             `json:"code"`
	Message    string          `json:"message"`
	Validation *validationDTO  `json:"validation,omitempty"`
	Promo      *promoResultDTO `json:"promo,omitempty"`
}

// checkout places an order from a cart snapshot. Stale carts and
// ineligible promo codes come back as 422 with the details the storefront
// needs to explain the failure; only malformed requests are 400.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	items, ok := h.parseItems(w, req.Items)
	if !ok {
		return
	}

	result, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		BuyerID:   req.BuyerID,
		Items:     items,
		Currency:  req.Currency,
		PromoCode: req.PromoCode,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if !result.Placed() {
		h.writeCheckoutFailure(w, result)
		return
	}

	// Checkout supersedes whatever cart snapshot the buyer had cached.
	if h.carts != nil {
		if err := h.carts.Delete(r.Context(), req.BuyerID); err != nil {
			h.lg.Warn("evicting cart after checkout",
				zap.Stringer("buyer_id", req.BuyerID), zap.Error(err))
		}
	}

	h.writeJSON(w, http.StatusCreated, orderDTOFrom(result.Order))
}

func (h *Handler) parseItems(w http.ResponseWriter, in []checkoutItem) ([]cart.Item, bool) {
	items := make([]cart.Item, len(in))
	for i, it := range in {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid unit price: "+it.UnitPrice)
			return nil, false
		}
		items[i] = cart.Item{
			ProductID:           it.ProductID,
			StoreID:             it.StoreID,
			Quantity:            it.Quantity,
			UnitPriceAtAddition: price,
			CurrencyAtAddition:  it.Currency,
		}
	}
	return items, true
}

func (h *Handler) writeCheckoutFailure(w http.ResponseWriter, result *order.CheckoutResult) {
	resp := checkoutFailedResponse{
		Code:    http.StatusUnprocessableEntity,
		Message: "checkout could not be completed",
	}
	if !result.Validation.OK() {
		resp.Message = result.Validation.Summary()
		resp.Validation = validationDTOFrom(result.Validation)
	} else if result.Promo != nil {
		resp.Message = result.Promo.Message
		resp.Promo = promoDTOFrom(*result.Promo)
	}
	h.writeJSON(w, http.StatusUnprocessableEntity, resp)
}

type validatePromoRequest struct {
	Code           string               `json:"code"`
	BuyerID        uuid.UUID            `json:"buyer_id"`
	Currency       string               `json:"currency"`
	CartSubtotal   string               `json:"cart_subtotal"`
	StoreSubtotals map[uuid.UUID]string `json:"store_subtotals,omitempty"`
}

// validatePromo checks a promo code against the buyer's cart without
// consuming it, so the storefront can preview the discount.
func (h *Handler) validatePromo(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if !h.decode(w, r, &req) {
		return
	}

	subtotal, err := decimal.NewFromString(req.CartSubtotal)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid cart subtotal")
		return
	}
	storeSubtotals := make(map[uuid.UUID]decimal.Decimal, len(req.StoreSubtotals))
	for storeID, raw := range req.StoreSubtotals {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid store subtotal")
			return
		}
		storeSubtotals[storeID] = d
	}

	code, err := h.promos.FindByCode(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, promo.ErrNotFound) {
			h.writeJSON(w, http.StatusOK, promoDTOFrom(promo.NotFound()))
			return
		}
		h.writeServiceError(w, err)
		return
	}

	usage, err := h.promos.CountUserUsage(r.Context(), code.ID, req.BuyerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	result := h.promoVal.Validate(code, subtotal, req.Currency, storeSubtotals, usage)
	h.writeJSON(w, http.StatusOK, promoDTOFrom(result))
}

func validationDTOFrom(v cart.ValidationResult) *validationDTO {
	dto := &validationDTO{
		OK:      v.OK(),
		Summary: v.Summary(),
		Items:   make([]itemResultDTO, len(v.Items)),
	}
	for i, item := range v.Items {
		dto.Items[i] = itemResultDTO{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Status:         string(item.Status),
			Message:        item.Message,
			AvailableStock: item.AvailableStock,
		}
		if item.Status == cart.ItemPriceChanged || item.Status == cart.ItemStockAndPriceIssues {
			dto.Items[i].CurrentPrice = item.CurrentPrice.StringFixed(2)
		}
	}
	return dto
}

func promoDTOFrom(res promo.Result) *promoResultDTO {
	dto := &promoResultDTO{
		Status:  string(res.Status),
		Message: res.Message,
	}
	if res.Applied() {
		dto.DiscountAmount = res.DiscountAmount.StringFixed(2)
	}
	return dto
}
