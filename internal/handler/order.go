package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendimo/marketplace/internal/domain/order"
)

type lineDTO struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
}

type shipmentDTO struct {
	ID           uuid.UUID `json:"id"`
	StoreID      uuid.UUID `json:"store_id"`
	Status       string    `json:"status"`
	Subtotal     string    `json:"subtotal"`
	ShippingCost string    `json:"shipping_cost"`
	Items        []lineDTO `json:"items"`
}

type orderDTO struct {
	ID            uuid.UUID     `json:"id"`
	BuyerID       uuid.UUID     `json:"buyer_id"`
	Status        string        `json:"status"`
	Currency      string        `json:"currency"`
	Subtotal      string        `json:"subtotal"`
	ShippingTotal string        `json:"shipping_total"`
	Discount      string        `json:"discount"`
	Total         string        `json:"total"`
	PromoCode     string        `json:"promo_code,omitempty"`
	Shipments     []shipmentDTO `json:"shipments"`
	CreatedAt     time.Time     `json:"created_at"`
}

func orderDTOFrom(o *order.Order) orderDTO {
	dto := orderDTO{
		ID:            o.ID,
		BuyerID:       o.BuyerID,
		Status:        string(o.Status),
		Currency:      o.Currency,
		Subtotal:      o.Subtotal.StringFixed(2),
		ShippingTotal: o.ShippingTotal.StringFixed(2),
		Discount:      o.Discount.StringFixed(2),
		Total:         o.Total.StringFixed(2),
		PromoCode:     o.PromoCode,
		CreatedAt:     o.CreatedAt,
	}
	for _, sh := range o.Shipments {
		items := make([]lineDTO, len(sh.Items))
		for i, line := range sh.Items {
			items[i] = lineDTO{
				ProductID: line.ProductID,
				Name:      line.Name,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice.StringFixed(2),
			}
		}
		dto.Shipments = append(dto.Shipments, shipmentDTO{
			ID:           sh.ID,
			StoreID:      sh.StoreID,
			Status:       string(sh.Status),
			Subtotal:     sh.Subtotal.StringFixed(2),
			ShippingCost: sh.ShippingCost.StringFixed(2),
			Items:        items,
		})
	}
	return dto
}

type refundDTO struct {
	ID          uuid.UUID  `json:"id"`
	ShipmentID  uuid.UUID  `json:"shipment_id"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func refundDTOFrom(r *order.Refund) refundDTO {
	return refundDTO{
		ID:          r.ID,
		ShipmentID:  r.ShipmentID,
		Amount:      r.Amount.StringFixed(2),
		Currency:    r.Currency,
		Reason:      r.Reason,
		Status:      string(r.Status),
		ProcessedAt: r.ProcessedAt,
	}
}

type escrowDTO struct {
	ShipmentID          uuid.UUID `json:"shipment_id"`
	StoreID             uuid.UUID `json:"store_id"`
	Status              string    `json:"status"`
	TotalAmount         string    `json:"total_amount"`
	SellerAmount        string    `json:"seller_amount"`
	CommissionAmount    string    `json:"commission_amount"`
	RefundedAmount      string    `json:"refunded_amount"`
	RemainingAmount     string    `json:"remaining_amount"`
	RemainingCommission string    `json:"remaining_commission"`
	Currency            string    `json:"currency"`
}

func escrowDTOFrom(a *order.EscrowAllocation) escrowDTO {
	return escrowDTO{
		ShipmentID:          a.ShipmentID,
		StoreID:             a.StoreID,
		Status:              string(a.Status),
		TotalAmount:         a.TotalAmount.StringFixed(2),
		SellerAmount:        a.SellerAmount.StringFixed(2),
		CommissionAmount:    a.CommissionAmount.StringFixed(2),
		RefundedAmount:      a.RefundedAmount.StringFixed(2),
		RemainingAmount:     a.RemainingAmount().StringFixed(2),
		RemainingCommission: a.RemainingCommission().StringFixed(2),
		Currency:            a.Currency,
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	o, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderDTOFrom(o))
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	o, err := h.orders.ConfirmPayment(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderDTOFrom(o))
}

type advanceRequest struct {
	Status string `json:"status"`
}

func (h *Handler) advanceShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID, ok := h.pathID(w, r, "shipmentID")
	if !ok {
		return
	}
	var req advanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.orders.AdvanceShipment(r.Context(), shipmentID, order.ShipmentStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderDTOFrom(o))
}

type refundRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

func (h *Handler) requestRefund(w http.ResponseWriter, r *http.Request) {
	shipmentID, ok := h.pathID(w, r, "shipmentID")
	if !ok {
		return
	}
	var req refundRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid amount: "+req.Amount)
		return
	}

	ref, err := h.orders.RequestRefund(r.Context(), shipmentID, amount, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, refundDTOFrom(ref))
}

func (h *Handler) approveRefund(w http.ResponseWriter, r *http.Request) {
	h.moderateRefund(w, r, h.orders.ApproveRefund)
}

func (h *Handler) rejectRefund(w http.ResponseWriter, r *http.Request) {
	h.moderateRefund(w, r, h.orders.RejectRefund)
}

func (h *Handler) processRefund(w http.ResponseWriter, r *http.Request) {
	h.moderateRefund(w, r, h.orders.ProcessRefund)
}

func (h *Handler) moderateRefund(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (*order.Refund, error)) {
	refundID, ok := h.pathID(w, r, "refundID")
	if !ok {
		return
	}
	ref, err := op(r.Context(), refundID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, refundDTOFrom(ref))
}

func (h *Handler) releaseEscrow(w http.ResponseWriter, r *http.Request) {
	shipmentID, ok := h.pathID(w, r, "shipmentID")
	if !ok {
		return
	}
	alloc, err := h.orders.ReleaseEscrow(r.Context(), shipmentID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, escrowDTOFrom(alloc))
}
