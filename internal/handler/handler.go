// Package handler exposes the marketplace checkout API over HTTP.
package handler

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vendimo/marketplace/internal/domain/auth"
	"github.com/vendimo/marketplace/internal/domain/cart"
	"github.com/vendimo/marketplace/internal/domain/order"
	"github.com/vendimo/marketplace/internal/domain/product"
	"github.com/vendimo/marketplace/internal/domain/promo"
)

// Deps holds the Handler's collaborators. Carts may be nil when no cache
// is configured; APIKeys may be nil to leave the operator surface open,
// which is only acceptable in development.
type Deps struct {
	Orders    *order.Service
	Products  product.Repository
	Promos    promo.Repository
	PromoVal  *promo.Validator
	Carts     cart.Store
	APIKeys   auth.Repository
	KeyPepper []byte
	Logger    *zap.Logger
}

// Handler serves the HTTP API, delegating business logic to the order
// service and repositories.
type Handler struct {
	orders   *order.Service
	products product.Repository
	promos   promo.Repository
	promoVal *promo.Validator
	carts    cart.Store
	security *security
	lg       *zap.Logger
}

// New constructs a Handler with the required domain dependencies.
func New(deps Deps) *Handler {
	validator := deps.PromoVal
	if validator == nil {
		validator = promo.NewValidator()
	}
	lg := deps.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	var sec *security
	if deps.APIKeys != nil {
		sec = newSecurity(deps.APIKeys, deps.KeyPepper)
	}
	return &Handler{
		orders:   deps.Orders,
		products: deps.Products,
		promos:   deps.Promos,
		promoVal: validator,
		carts:    deps.Carts,
		security: sec,
		lg:       lg,
	}
}

// Routes mounts the API onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)

		r.Post("/promo/validate", h.validatePromo)
		r.Post("/checkout", h.checkout)

		r.Get("/orders/{orderID}", h.getOrder)
		r.Post("/orders/{orderID}/confirm-payment", h.confirmPayment)
		r.Post("/shipments/{shipmentID}/advance", h.advanceShipment)
		r.Post("/shipments/{shipmentID}/refunds", h.requestRefund)

		if h.carts != nil {
			r.Get("/cart", h.getCart)
			r.Put("/cart", h.putCart)
			r.Delete("/cart", h.deleteCart)
		}

		// Operator surface. Refund moderation and escrow release move other
		// people's money and are key-gated.
		r.Group(func(r chi.Router) {
			if h.security != nil {
				r.Use(h.security.requireScope(auth.ScopeRefundsModerate))
			}
			r.Post("/refunds/{refundID}/approve", h.approveRefund)
			r.Post("/refunds/{refundID}/reject", h.rejectRefund)
			r.Post("/refunds/{refundID}/process", h.processRefund)
		})
		r.Group(func(r chi.Router) {
			if h.security != nil {
				r.Use(h.security.requireScope(auth.ScopeEscrowRelease))
			}
			r.Post("/shipments/{shipmentID}/release-escrow", h.releaseEscrow)
		})
	})

	return r
}
