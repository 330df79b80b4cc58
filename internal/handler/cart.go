package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/vendimo/marketplace/internal/domain/cart"
	"github.com/vendimo/marketplace/internal/storage/rediscache"
)

// buyerID reads the buyer identity from the X-Buyer-ID header. Identity
// verification lives at the gateway; this service only needs the ID.
func (h *Handler) buyerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Buyer-ID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing or invalid X-Buyer-ID header")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	buyer, ok := h.buyerID(w, r)
	if !ok {
		return
	}
	snapshot, err := h.carts.Get(r.Context(), buyer)
	if err != nil {
		if errors.Is(err, rediscache.ErrCacheMiss) {
			h.writeJSON(w, http.StatusOK, cart.Cart{BuyerID: buyer, Items: []cart.Item{}})
			return
		}
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) putCart(w http.ResponseWriter, r *http.Request) {
	buyer, ok := h.buyerID(w, r)
	if !ok {
		return
	}
	var snapshot cart.Cart
	if !h.decode(w, r, &snapshot) {
		return
	}
	snapshot.BuyerID = buyer
	snapshot.UpdatedAt = time.Now().UTC()

	if err := h.carts.Set(r.Context(), &snapshot); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) deleteCart(w http.ResponseWriter, r *http.Request) {
	buyer, ok := h.buyerID(w, r)
	if !ok {
		return
	}
	if err := h.carts.Delete(r.Context(), buyer); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
