package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendimo/marketplace/internal/audit"
	"github.com/vendimo/marketplace/internal/domain/auth"
	"github.com/vendimo/marketplace/internal/domain/money"
	"github.com/vendimo/marketplace/internal/domain/order"
	"github.com/vendimo/marketplace/internal/domain/product"
	"github.com/vendimo/marketplace/internal/domain/promo"
)

// --- Mock implementations ---

type memProducts struct {
	byID map[uuid.UUID]product.Product
}

func (m *memProducts) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id uuid.UUID) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProducts) GetByIDs(_ context.Context, ids []uuid.UUID) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) DecrementStock(_ context.Context, _ map[uuid.UUID]int) error {
	return nil
}

type memPromos struct {
	code *promo.Code
}

func (m *memPromos) FindByCode(_ context.Context, code string) (*promo.Code, error) {
	if m.code == nil {
		return nil, promo.ErrNotFound
	}
	return m.code, nil
}

func (m *memPromos) IncrementUsage(_ context.Context, _, _ uuid.UUID) error { return nil }

func (m *memPromos) CountUserUsage(_ context.Context, _, _ uuid.UUID) (int, error) {
	return 0, nil
}

func (m *memPromos) Create(_ context.Context, _ *promo.Code) error { return nil }

func (m *memPromos) Deactivate(_ context.Context, _ uuid.UUID) error { return nil }

type memSettings struct{}

func (memSettings) GetByStores(_ context.Context, _ []uuid.UUID) (map[uuid.UUID]order.StoreSettings, error) {
	return nil, nil
}

type memOrders struct {
	stored map[uuid.UUID]*order.Order
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	if m.stored == nil {
		m.stored = make(map[uuid.UUID]*order.Order)
	}
	m.stored[o.ID] = o
	return nil
}

func (m *memOrders) Get(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := m.stored[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) GetByShipment(_ context.Context, shipmentID uuid.UUID) (*order.Order, error) {
	for _, o := range m.stored {
		if o.Shipment(shipmentID) != nil {
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) UpdateStatus(_ context.Context, _ *order.Order) error { return nil }

type memEscrow struct {
	byShipment map[uuid.UUID]*order.EscrowAllocation
}

func (m *memEscrow) Create(_ context.Context, allocations []order.EscrowAllocation) error {
	if m.byShipment == nil {
		m.byShipment = make(map[uuid.UUID]*order.EscrowAllocation)
	}
	for i := range allocations {
		a := allocations[i]
		m.byShipment[a.ShipmentID] = &a
	}
	return nil
}

func (m *memEscrow) GetByShipment(_ context.Context, shipmentID uuid.UUID) (*order.EscrowAllocation, error) {
	a, ok := m.byShipment[shipmentID]
	if !ok {
		return nil, order.ErrEscrowNotFound
	}
	return a, nil
}

func (m *memEscrow) Update(_ context.Context, _ *order.EscrowAllocation) error { return nil }

type memRefunds struct {
	stored map[uuid.UUID]*order.Refund
}

func (m *memRefunds) Create(_ context.Context, r *order.Refund) error {
	if m.stored == nil {
		m.stored = make(map[uuid.UUID]*order.Refund)
	}
	m.stored[r.ID] = r
	return nil
}

func (m *memRefunds) Get(_ context.Context, id uuid.UUID) (*order.Refund, error) {
	r, ok := m.stored[id]
	if !ok {
		return nil, order.ErrRefundNotFound
	}
	return r, nil
}

func (m *memRefunds) Update(_ context.Context, _ *order.Refund) error { return nil }

type memLedger struct{}

func (memLedger) Record(_ context.Context, _ ...audit.Event) error { return nil }

type memKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

// --- Helpers ---

func testProduct(name, price string, stock int) product.Product {
	return product.Product{
		ID:      uuid.New(),
		StoreID: uuid.New(),
		Name:    name,
		Price:   money.MustNew(decimal.RequireFromString(price), "USD"),
		Stock:   stock,
		Status:  product.StatusActive,
		Active:  true,
	}
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(deps).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func newServiceDeps(products ...product.Product) (Deps, *memOrders) {
	byID := make(map[uuid.UUID]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	prodRepo := &memProducts{byID: byID}
	promoRepo := &memPromos{}
	orderRepo := &memOrders{}
	refundRepo := &memRefunds{}
	svc := order.NewService(order.ServiceDeps{
		Products: prodRepo,
		Promos:   promoRepo,
		Stores:   memSettings{},
		Orders:   orderRepo,
		Escrow:   &memEscrow{},
		Refunds:  refundRepo,
		Ledger:   memLedger{},
	})
	return Deps{
		Orders:   svc,
		Products: prodRepo,
		Promos:   promoRepo,
	}, orderRepo
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// --- Tests ---

func TestCheckoutEndpoint_Success(t *testing.T) {
	p := testProduct("Widget", "25.00", 10)
	deps, _ := newServiceDeps(p)
	srv := newTestServer(t, deps)

	resp := postJSON(t, srv.URL+"/api/checkout", checkoutRequest{
		BuyerID:  uuid.New(),
		Currency: "USD",
		Items: []checkoutItem{{
			ProductID: p.ID,
			StoreID:   p.StoreID,
			Quantity:  2,
			UnitPrice: "25.00",
			Currency:  "USD",
		}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decodeBody[orderDTO](t, resp)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, "50.00", got.Subtotal)
	assert.Equal(t, "50.00", got.Total)
	require.Len(t, got.Shipments, 1)
	assert.Equal(t, p.StoreID, got.Shipments[0].StoreID)
}

func TestCheckoutEndpoint_StaleCart(t *testing.T) {
	p := testProduct("Widget", "30.00", 1)
	deps, _ := newServiceDeps(p)
	srv := newTestServer(t, deps)

	resp := postJSON(t, srv.URL+"/api/checkout", checkoutRequest{
		BuyerID:  uuid.New(),
		Currency: "USD",
		Items: []checkoutItem{{
			ProductID: p.ID,
			StoreID:   p.StoreID,
			Quantity:  3,
			UnitPrice: "25.00", // price went up since add-to-cart
			Currency:  "USD",
		}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	got := decodeBody[checkoutFailedResponse](t, resp)
	require.NotNil(t, got.Validation)
	assert.False(t, got.Validation.OK)
	require.Len(t, got.Validation.Items, 1)
	assert.Equal(t, "stock_and_price_issues", got.Validation.Items[0].Status)
}

func TestCheckoutEndpoint_BadBody(t *testing.T) {
	deps, _ := newServiceDeps()
	srv := newTestServer(t, deps)

	resp, err := http.Post(srv.URL+"/api/checkout", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConfirmPaymentEndpoint_NotFound(t *testing.T) {
	deps, _ := newServiceDeps()
	srv := newTestServer(t, deps)

	resp := postJSON(t, srv.URL+"/api/orders/"+uuid.NewString()+"/confirm-payment", struct{}{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfirmPaymentEndpoint_Conflict(t *testing.T) {
	p := testProduct("Widget", "25.00", 10)
	deps, _ := newServiceDeps(p)
	srv := newTestServer(t, deps)

	resp := postJSON(t, srv.URL+"/api/checkout", checkoutRequest{
		BuyerID:  uuid.New(),
		Currency: "USD",
		Items: []checkoutItem{{
			ProductID: p.ID, StoreID: p.StoreID, Quantity: 1,
			UnitPrice: "25.00", Currency: "USD",
		}},
	})
	placed := decodeBody[orderDTO](t, resp)

	url := srv.URL + "/api/orders/" + placed.ID.String() + "/confirm-payment"
	first := postJSON(t, url, struct{}{})
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := postJSON(t, url, struct{}{})
	second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestValidatePromoEndpoint(t *testing.T) {
	deps, _ := newServiceDeps()
	promoRepo := deps.Promos.(*memPromos)
	promoRepo.code = &promo.Code{
		ID:           uuid.New(),
		Code:         "SAVE10",
		DiscountType: promo.DiscountPercentage,
		Value:        decimal.RequireFromString("10"),
		Scope:        promo.ScopePlatform,
		ValidFrom:    time.Now().Add(-time.Hour),
		ValidTo:      time.Now().Add(time.Hour),
		Currency:     "USD",
		Active:       true,
	}
	srv := newTestServer(t, deps)

	resp := postJSON(t, srv.URL+"/api/promo/validate", validatePromoRequest{
		Code:         "SAVE10",
		BuyerID:      uuid.New(),
		Currency:     "USD",
		CartSubtotal: "200.00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[promoResultDTO](t, resp)
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, "20.00", got.DiscountAmount)
}

func TestValidatePromoEndpoint_Unknown(t *testing.T) {
	deps, _ := newServiceDeps()
	srv := newTestServer(t, deps)

	resp := postJSON(t, srv.URL+"/api/promo/validate", validatePromoRequest{
		Code:         "NOPE",
		BuyerID:      uuid.New(),
		Currency:     "USD",
		CartSubtotal: "200.00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[promoResultDTO](t, resp)
	assert.Equal(t, "not_found", got.Status)
}

func TestProductsEndpoint_FiltersUnsellable(t *testing.T) {
	active := testProduct("Widget", "25.00", 10)
	hidden := testProduct("Gadget", "10.00", 5)
	hidden.Active = false
	deps, _ := newServiceDeps(active, hidden)
	srv := newTestServer(t, deps)

	resp, err := http.Get(srv.URL + "/api/products")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[[]productDTO](t, resp)
	require.Len(t, got, 1)
	assert.Equal(t, "Widget", got[0].Name)
}

func TestOperatorEndpoints_RequireAPIKey(t *testing.T) {
	pepper := []byte("test-pepper")
	key := "operator-key"
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	hash := hex.EncodeToString(mac.Sum(nil))

	deps, _ := newServiceDeps()
	deps.APIKeys = &memKeys{byHash: map[string]*auth.APIKeyInfo{
		hash: {ID: "k1", KeyHash: hash, Name: "ops", Scopes: []string{auth.ScopeRefundsModerate}},
	}}
	deps.KeyPepper = pepper
	srv := newTestServer(t, deps)

	url := fmt.Sprintf("%s/api/refunds/%s/approve", srv.URL, uuid.NewString())

	// No key.
	resp := postJSON(t, url, struct{}{})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong key.
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid key but nonexistent refund: authentication passed, lookup 404s.
	req, err = http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", key)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefundEndpoints_FullFlow(t *testing.T) {
	p := testProduct("Widget", "100.00", 10)
	deps, _ := newServiceDeps(p)
	srv := newTestServer(t, deps)

	resp := postJSON(t, srv.URL+"/api/checkout", checkoutRequest{
		BuyerID:  uuid.New(),
		Currency: "USD",
		Items: []checkoutItem{{
			ProductID: p.ID, StoreID: p.StoreID, Quantity: 1,
			UnitPrice: "100.00", Currency: "USD",
		}},
	})
	placed := decodeBody[orderDTO](t, resp)

	confirm := postJSON(t, srv.URL+"/api/orders/"+placed.ID.String()+"/confirm-payment", struct{}{})
	paid := decodeBody[orderDTO](t, confirm)
	require.Equal(t, "paid", paid.Status)
	shipmentID := paid.Shipments[0].ID

	reqResp := postJSON(t, srv.URL+"/api/shipments/"+shipmentID.String()+"/refunds",
		refundRequest{Amount: "40.00", Reason: "damaged"})
	require.Equal(t, http.StatusCreated, reqResp.StatusCode)
	ref := decodeBody[refundDTO](t, reqResp)
	assert.Equal(t, "requested", ref.Status)

	approve := postJSON(t, srv.URL+"/api/refunds/"+ref.ID.String()+"/approve", struct{}{})
	approved := decodeBody[refundDTO](t, approve)
	assert.Equal(t, "approved", approved.Status)

	process := postJSON(t, srv.URL+"/api/refunds/"+ref.ID.String()+"/process", struct{}{})
	processed := decodeBody[refundDTO](t, process)
	assert.Equal(t, "processed", processed.Status)
	require.NotNil(t, processed.ProcessedAt)
}
