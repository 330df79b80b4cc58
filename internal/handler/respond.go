package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/vendimo/marketplace/internal/domain/commission"
	"github.com/vendimo/marketplace/internal/domain/money"
	"github.com/vendimo/marketplace/internal/domain/order"
	"github.com/vendimo/marketplace/internal/domain/product"
	"github.com/vendimo/marketplace/internal/domain/promo"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.lg.Error("encoding response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeServiceError maps domain errors onto HTTP statuses: argument
// violations are 400, missing entities 404, state machine violations 409,
// and money-rule violations 422. Anything unrecognized is a 500 with the
// detail kept out of the response.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, money.ErrInvalidCurrency),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, commission.ErrNonPositiveAmount),
		errors.Is(err, commission.ErrEmptyStoreID),
		errors.Is(err, commission.ErrRateOutOfRange):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrShipmentNotFound),
		errors.Is(err, order.ErrRefundNotFound),
		errors.Is(err, order.ErrEscrowNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, promo.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, order.ErrRefundExceedsHeld),
		errors.Is(err, product.ErrInsufficientStock):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, order.ErrShipmentNotDelivered),
		errors.Is(err, order.ErrEscrowNotHeld):
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}

	var iqErr *order.InvalidQuantityError
	if errors.As(err, &iqErr) {
		h.writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
		return
	}
	var itErr *order.InvalidTransitionError
	if errors.As(err, &itErr) {
		h.writeError(w, http.StatusConflict, itErr.Error())
		return
	}

	h.lg.Error("internal error", zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
