package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendimo/marketplace/internal/audit"
	"github.com/vendimo/marketplace/internal/domain/cart"
	"github.com/vendimo/marketplace/internal/domain/commission"
	"github.com/vendimo/marketplace/internal/domain/money"
	"github.com/vendimo/marketplace/internal/domain/product"
	"github.com/vendimo/marketplace/internal/domain/promo"
)

// ErrShipmentNotDelivered is returned when escrow release is attempted
// before delivery.
var ErrShipmentNotDelivered = errors.New("shipment is not delivered")

// CheckoutRequest is the input for placing an order from a cart snapshot.
type CheckoutRequest struct {
	BuyerID   uuid.UUID
	Items     []cart.Item
	Currency  string
	PromoCode string
}

// CheckoutResult is the outcome of a checkout attempt. Business failures
// are carried in Validation and Promo rather than as errors: a cart that
// fails live validation or an ineligible promo code leaves Order nil and
// the relevant result populated.
type CheckoutResult struct {
	Order      *Order
	Validation cart.ValidationResult
	Promo      *promo.Result
	Totals     cart.CartTotals
}

// Placed reports whether an order was actually created.
func (r *CheckoutResult) Placed() bool {
	return r.Order != nil
}

// TxRunner runs fn atomically against the backing store. Repository calls
// made with the context passed to fn must all commit or all roll back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// nopTx runs fn directly. It backs stores without transaction support.
type nopTx struct{}

func (nopTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ServiceDeps bundles the collaborators of the order Service.
type ServiceDeps struct {
	Products       product.Repository
	Promos         promo.Repository
	PromoValidator *promo.Validator
	Stores         SettingsRepository
	Orders         Repository
	Escrow         EscrowRepository
	Refunds        RefundRepository
	Ledger         audit.Recorder
	Totals         cart.TotalsCalculator
	// Tx wraps multi-write operations. Nil means every write commits on
	// its own, which is only acceptable for in-memory stores.
	Tx TxRunner
	// DefaultCommissionRate applies to stores without a negotiated rate.
	// Zero value falls back to commission.DefaultRate.
	DefaultCommissionRate decimal.Decimal
}

// Service orchestrates the checkout and order money lifecycle.
type Service struct {
	products    product.Repository
	promos      promo.Repository
	promoVal    *promo.Validator
	stores      SettingsRepository
	orders      Repository
	escrow      EscrowRepository
	refunds     RefundRepository
	ledger      audit.Recorder
	totals      cart.TotalsCalculator
	checks      cart.CheckoutValidator
	tx          TxRunner
	defaultRate decimal.Decimal
	now         func() time.Time
}

// NewService creates the order Service.
func NewService(deps ServiceDeps) *Service {
	rate := deps.DefaultCommissionRate
	if rate.IsZero() {
		rate = commission.DefaultRate
	}
	validator := deps.PromoValidator
	if validator == nil {
		validator = promo.NewValidator()
	}
	tx := deps.Tx
	if tx == nil {
		tx = nopTx{}
	}
	return &Service{
		products:    deps.Products,
		promos:      deps.Promos,
		promoVal:    validator,
		stores:      deps.Stores,
		orders:      deps.Orders,
		escrow:      deps.Escrow,
		refunds:     deps.Refunds,
		ledger:      deps.Ledger,
		totals:      deps.Totals,
		tx:          tx,
		defaultRate: rate,
		now:         time.Now,
	}
}

// Checkout re-validates the cart against live product state, applies the
// promo code, computes totals, and creates the pending order with one
// shipment per participating store.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if err := money.ValidateCurrency(req.Currency); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		if item.CurrencyAtAddition != "" && item.CurrencyAtAddition != req.Currency {
			return nil, errors.Wrapf(money.ErrCurrencyMismatch,
				"item %s was added in %s, checkout is %s", item.ProductID, item.CurrencyAtAddition, req.Currency)
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productsByID := make(map[uuid.UUID]product.Product, len(fetched))
	for _, p := range fetched {
		productsByID[p.ID] = p
	}

	// Never trust cart-cached prices and stock: validate against live
	// state immediately before payment.
	validation := s.checks.ValidateItems(req.Items, productsByID)
	if !validation.OK() {
		return &CheckoutResult{Validation: validation}, nil
	}

	// Group the cart per store using the live product's store.
	type storeGroup struct {
		subtotal  decimal.Decimal
		itemCount int
		lines     []Line
	}
	groups := make(map[uuid.UUID]*storeGroup)
	storeIDs := make([]uuid.UUID, 0, 4)
	for _, item := range req.Items {
		p := productsByID[item.ProductID]
		g, ok := groups[p.StoreID]
		if !ok {
			g = &storeGroup{subtotal: decimal.Zero}
			groups[p.StoreID] = g
			storeIDs = append(storeIDs, p.StoreID)
		}
		g.subtotal = g.subtotal.Add(p.Price.Amount.Mul(decimal.NewFromInt(int64(item.Quantity))))
		g.itemCount += item.Quantity
		g.lines = append(g.lines, Line{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  item.Quantity,
			UnitPrice: p.Price.Amount,
		})
	}

	settings, err := s.stores.GetByStores(ctx, storeIDs)
	if err != nil {
		return nil, errors.Wrap(err, "get store settings")
	}

	sellerTotals := make([]cart.SellerCartTotals, 0, len(storeIDs))
	storeSubtotals := make(map[uuid.UUID]decimal.Decimal, len(storeIDs))
	for _, storeID := range storeIDs {
		g := groups[storeID]
		var rule cart.ShippingRule
		if st, ok := settings[storeID]; ok {
			rule = st.ShippingRule()
		}
		sellerTotals = append(sellerTotals, s.totals.SellerTotals(storeID, g.subtotal, g.itemCount, req.Currency, rule))
		storeSubtotals[storeID] = g.subtotal
	}

	cartSubtotal := decimal.Zero
	for _, st := range sellerTotals {
		cartSubtotal = cartSubtotal.Add(st.ItemSubtotal)
	}

	// Promo application: any ineligible result aborts checkout so the
	// buyer never silently pays full price.
	discount := decimal.Zero
	var promoResult *promo.Result
	var promoCode *promo.Code
	if req.PromoCode != "" {
		code, err := s.promos.FindByCode(ctx, req.PromoCode)
		if err != nil {
			if errors.Is(err, promo.ErrNotFound) {
				res := promo.NotFound()
				return &CheckoutResult{Validation: validation, Promo: &res}, nil
			}
			return nil, errors.Wrap(err, "find promo code")
		}

		userUsage, err := s.promos.CountUserUsage(ctx, code.ID, req.BuyerID)
		if err != nil {
			return nil, errors.Wrap(err, "count promo usage")
		}

		res := s.promoVal.Validate(code, cartSubtotal, req.Currency, storeSubtotals, userUsage)
		if !res.Applied() {
			return &CheckoutResult{Validation: validation, Promo: &res}, nil
		}
		discount = res.DiscountAmount
		promoResult = &res
		promoCode = code
	}

	totals := s.totals.CartTotals(sellerTotals, req.Currency, discount)

	o := &Order{
		ID:            uuid.New(),
		BuyerID:       req.BuyerID,
		Status:        StatusPending,
		Currency:      req.Currency,
		Subtotal:      totals.Subtotal,
		ShippingTotal: totals.ShippingTotal,
		Discount:      totals.DiscountAmount,
		Total:         totals.TotalAmount,
		PromoCode:     req.PromoCode,
		CreatedAt:     s.now().UTC(),
	}
	for _, storeID := range storeIDs {
		g := groups[storeID]
		var shipping decimal.Decimal
		for _, st := range sellerTotals {
			if st.StoreID == storeID {
				shipping = st.ShippingCost
			}
		}
		o.Shipments = append(o.Shipments, Shipment{
			ID:           uuid.New(),
			OrderID:      o.ID,
			StoreID:      storeID,
			Status:       ShipmentPending,
			Subtotal:     g.subtotal,
			ShippingCost: shipping,
			Currency:     req.Currency,
			Items:        g.lines,
		})
	}

	events := []audit.Event{
		audit.NewEvent(o.ID, audit.EventOrderCreated).
			WithAmount(o.Total, o.Currency).
			WithMeta("buyer_id", o.BuyerID.String()),
	}
	if promoCode != nil {
		events = append(events,
			audit.NewEvent(o.ID, audit.EventPromoConsumed).
				WithAmount(discount, o.Currency).
				WithMeta("promo_code", promoCode.Code))
	}

	// The order, the promo usage bump, and the outbox events commit
	// together or not at all.
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if promoCode != nil {
			if err := s.promos.IncrementUsage(ctx, promoCode.ID, req.BuyerID); err != nil {
				return errors.Wrap(err, "increment promo usage")
			}
		}
		if err := s.ledger.Record(ctx, events...); err != nil {
			return errors.Wrap(err, "record audit events")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		Order:      o,
		Validation: validation,
		Promo:      promoResult,
		Totals:     totals,
	}, nil
}

// GetOrder returns an order with its shipments.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ConfirmPayment moves a pending order to paid, decrements stock, and
// allocates escrow per shipment. The commission rate in force at
// confirmation time is captured on each allocation and used for all later
// reversals.
func (s *Service) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.MarkPaid(); err != nil {
		return nil, err
	}

	storeIDs := make([]uuid.UUID, len(o.Shipments))
	for i, sh := range o.Shipments {
		storeIDs[i] = sh.StoreID
	}
	settings, err := s.stores.GetByStores(ctx, storeIDs)
	if err != nil {
		return nil, errors.Wrap(err, "get store settings")
	}

	allocations := make([]EscrowAllocation, 0, len(o.Shipments))
	quantities := make(map[uuid.UUID]int)
	events := []audit.Event{
		audit.NewEvent(o.ID, audit.EventPaymentConfirmed).WithAmount(o.Total, o.Currency),
	}
	for _, sh := range o.Shipments {
		rate := s.defaultRate
		if st, ok := settings[sh.StoreID]; ok && !st.CommissionRate.IsZero() {
			rate = st.CommissionRate
		}

		sc, err := commission.Calculate(sh.StoreID, sh.Subtotal, o.Currency, rate)
		if err != nil {
			return nil, errors.Wrapf(err, "commission for shipment %s", sh.ID)
		}

		alloc := NewEscrowAllocation(sh.ID, sc, sh.ShippingCost)
		allocations = append(allocations, alloc)
		events = append(events,
			audit.NewEvent(o.ID, audit.EventEscrowHeld).
				WithShipment(sh.ID).
				WithAmount(alloc.TotalAmount, o.Currency).
				WithMeta("commission", sc.CommissionAmount.StringFixed(2)).
				WithMeta("seller_payout", sc.SellerPayout.StringFixed(2)))

		for _, line := range sh.Items {
			quantities[line.ProductID] += line.Quantity
		}
	}

	// Stock, escrow, the status flip and the outbox events commit as one
	// unit, so a failed hold cannot leak a decrement.
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.products.DecrementStock(ctx, quantities); err != nil {
			return errors.Wrap(err, "decrement stock")
		}
		if err := s.escrow.Create(ctx, allocations); err != nil {
			return errors.Wrap(err, "create escrow allocations")
		}
		if err := s.orders.UpdateStatus(ctx, o); err != nil {
			return errors.Wrap(err, "update order status")
		}
		if err := s.ledger.Record(ctx, events...); err != nil {
			return errors.Wrap(err, "record audit events")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// AdvanceShipment moves a shipment along the fulfilment path. Delivering
// the last outstanding shipment completes the order.
func (s *Service) AdvanceShipment(ctx context.Context, shipmentID uuid.UUID, to ShipmentStatus) (*Order, error) {
	o, err := s.orders.GetByShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	sh := o.Shipment(shipmentID)
	if sh == nil {
		return nil, ErrShipmentNotFound
	}
	if err := sh.Advance(to); err != nil {
		return nil, err
	}
	if to == ShipmentDelivered {
		// Last delivery completes the order; otherwise keep it paid.
		if err := o.Complete(); err != nil {
			var itErr *InvalidTransitionError
			if !errors.As(err, &itErr) {
				return nil, err
			}
		}
	}
	if err := s.orders.UpdateStatus(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return o, nil
}

// RequestRefund opens a refund claim against a shipment's escrow.
func (s *Service) RequestRefund(ctx context.Context, shipmentID uuid.UUID, amount decimal.Decimal, reason string) (*Refund, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, commission.ErrNonPositiveAmount
	}

	o, err := s.orders.GetByShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	alloc, err := s.escrow.GetByShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(alloc.RemainingAmount()) {
		return nil, ErrRefundExceedsHeld
	}

	r := NewRefund(shipmentID, amount, o.Currency, reason)
	if err := s.refunds.Create(ctx, r); err != nil {
		return nil, errors.Wrap(err, "create refund")
	}

	ev := audit.NewEvent(o.ID, audit.EventRefundRequested).
		WithShipment(shipmentID).
		WithAmount(amount, o.Currency).
		WithMeta("reason", reason)
	if err := s.ledger.Record(ctx, ev); err != nil {
		return nil, errors.Wrap(err, "record audit event")
	}
	return r, nil
}

// ApproveRefund accepts a requested refund for processing.
func (s *Service) ApproveRefund(ctx context.Context, refundID uuid.UUID) (*Refund, error) {
	r, err := s.refunds.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if err := r.Approve(); err != nil {
		return nil, err
	}
	if err := s.refunds.Update(ctx, r); err != nil {
		return nil, errors.Wrap(err, "update refund")
	}
	return r, nil
}

// RejectRefund declines a requested refund.
func (s *Service) RejectRefund(ctx context.Context, refundID uuid.UUID) (*Refund, error) {
	r, err := s.refunds.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if err := r.Reject(); err != nil {
		return nil, err
	}
	if err := s.refunds.Update(ctx, r); err != nil {
		return nil, errors.Wrap(err, "update refund")
	}

	o, err := s.orders.GetByShipment(ctx, r.ShipmentID)
	if err != nil {
		return nil, err
	}
	ev := audit.NewEvent(o.ID, audit.EventRefundRejected).
		WithShipment(r.ShipmentID).
		WithAmount(r.Amount, r.Currency)
	if err := s.ledger.Record(ctx, ev); err != nil {
		return nil, errors.Wrap(err, "record audit event")
	}
	return r, nil
}

// ProcessRefund executes an approved refund: the escrow allocation is
// reduced and the commission reversal is computed with the allocation's
// historical rate. Processing an already-processed refund is a no-op so
// retries cannot double-adjust the ledger.
func (s *Service) ProcessRefund(ctx context.Context, refundID uuid.UUID) (*Refund, error) {
	r, err := s.refunds.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if r.Status == RefundProcessed {
		return r, nil
	}

	alloc, err := s.escrow.GetByShipment(ctx, r.ShipmentID)
	if err != nil {
		return nil, err
	}

	rc, err := alloc.ApplyRefund(r.Amount)
	if err != nil {
		return nil, err
	}
	if err := r.MarkProcessed(s.now().UTC()); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByShipment(ctx, r.ShipmentID)
	if err != nil {
		return nil, err
	}
	fullyRefunded := alloc.Status == EscrowRefunded
	if fullyRefunded {
		sh := o.Shipment(r.ShipmentID)
		if sh == nil {
			return nil, ErrShipmentNotFound
		}
		if err := sh.MarkRefunded(); err != nil {
			return nil, err
		}
		// Fully refunding the last live shipment flips the order.
		if err := o.MarkRefunded(); err != nil {
			var itErr *InvalidTransitionError
			if !errors.As(err, &itErr) {
				return nil, err
			}
		}
	}

	ev := audit.NewEvent(o.ID, audit.EventRefundProcessed).
		WithShipment(r.ShipmentID).
		WithAmount(r.Amount, r.Currency).
		WithMeta("refunded_commission", rc.RefundedCommission.StringFixed(2)).
		WithMeta("remaining_commission", rc.RemainingCommission.StringFixed(2))

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if fullyRefunded {
			if err := s.orders.UpdateStatus(ctx, o); err != nil {
				return errors.Wrap(err, "update order status")
			}
		}
		if err := s.escrow.Update(ctx, alloc); err != nil {
			return errors.Wrap(err, "update escrow allocation")
		}
		if err := s.refunds.Update(ctx, r); err != nil {
			return errors.Wrap(err, "update refund")
		}
		if err := s.ledger.Record(ctx, ev); err != nil {
			return errors.Wrap(err, "record audit event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ReleaseEscrow frees a delivered shipment's remaining funds for payout.
func (s *Service) ReleaseEscrow(ctx context.Context, shipmentID uuid.UUID) (*EscrowAllocation, error) {
	o, err := s.orders.GetByShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	sh := o.Shipment(shipmentID)
	if sh == nil {
		return nil, ErrShipmentNotFound
	}
	if sh.Status != ShipmentDelivered {
		return nil, ErrShipmentNotDelivered
	}

	alloc, err := s.escrow.GetByShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if err := alloc.Release(); err != nil {
		return nil, err
	}
	if err := s.escrow.Update(ctx, alloc); err != nil {
		return nil, errors.Wrap(err, "update escrow allocation")
	}

	ev := audit.NewEvent(o.ID, audit.EventEscrowReleased).
		WithShipment(shipmentID).
		WithAmount(alloc.RemainingSellerAmount(), alloc.Currency).
		WithMeta("store_id", alloc.StoreID.String())
	if err := s.ledger.Record(ctx, ev); err != nil {
		return nil, errors.Wrap(err, "record audit event")
	}
	return alloc, nil
}
