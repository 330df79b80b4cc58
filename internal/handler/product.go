package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vendimo/marketplace/internal/domain/product"
)

type productDTO struct {
	ID       uuid.UUID `json:"id"`
	StoreID  uuid.UUID `json:"store_id"`
	Name     string    `json:"name"`
	Price    string    `json:"price"`
	Currency string    `json:"currency"`
	Stock    int       `json:"stock"`
	Status   string    `json:"status"`
}

func productDTOFrom(p product.Product) productDTO {
	return productDTO{
		ID:       p.ID,
		StoreID:  p.StoreID,
		Name:     p.Name,
		Price:    p.Price.Amount.StringFixed(2),
		Currency: p.Price.Currency,
		Stock:    p.Stock,
		Status:   string(p.Status),
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out := make([]productDTO, 0, len(products))
	for _, p := range products {
		if !p.Sellable() {
			continue
		}
		out = append(out, productDTOFrom(p))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	p, err := h.products.GetByID(r.Context(), productID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, productDTOFrom(*p))
}
