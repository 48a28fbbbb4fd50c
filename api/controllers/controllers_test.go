package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justcook/justcook-backend/internal/cart"
	"github.com/justcook/justcook-backend/internal/checkout"
	"github.com/justcook/justcook-backend/internal/customers"
	"github.com/justcook/justcook-backend/internal/delivery"
	internalorders "github.com/justcook/justcook-backend/internal/orders"
	"github.com/justcook/justcook-backend/internal/pricing"
	"github.com/justcook/justcook-backend/internal/referrals"
	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/db/models"
	"github.com/justcook/justcook-backend/pkg/enums"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/pagination"
)

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

type stubReferralValidator struct {
	result *referrals.Validation
	err    error
}

func (s stubReferralValidator) Validate(context.Context, string, uuid.UUID) (*referrals.Validation, error) {
	return s.result, s.err
}

func TestValidateReferralReportsVerdicts(t *testing.T) {
	owner := uuid.New()
	cases := []struct {
		name   string
		svc    stubReferralValidator
		status int
		valid  bool
		reason string
	}{
		{"valid", stubReferralValidator{result: &referrals.Validation{Valid: true, Code: "JC-AAAA1111", OwnerID: owner}}, http.StatusOK, true, ""},
		{"self", stubReferralValidator{err: pkgerrors.New(pkgerrors.CodeSelfReferral, "you cannot use your own referral code")}, http.StatusOK, false, "SELF_REFERRAL"},
		{"used", stubReferralValidator{err: pkgerrors.New(pkgerrors.CodeReferralUsed, "used")}, http.StatusOK, false, "ALREADY_USED"},
		{"unknown", stubReferralValidator{err: pkgerrors.New(pkgerrors.CodeInvalidReferral, "bad")}, http.StatusOK, false, "INVALID_CODE"},
		{"db down", stubReferralValidator{err: pkgerrors.New(pkgerrors.CodeInternal, "boom")}, http.StatusInternalServerError, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := `{"code":"jc-aaaa1111","customerId":"` + uuid.NewString() + `"}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/referrals/validate", strings.NewReader(body))
			rec := httptest.NewRecorder()
			ValidateReferral(tc.svc, nil).ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var verdict validateReferralResponse
			require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &verdict))
			assert.Equal(t, tc.valid, verdict.Valid)
			assert.Equal(t, tc.reason, string(verdict.Reason))
			if tc.valid {
				require.NotNil(t, verdict.OwnerID)
				assert.Equal(t, owner, *verdict.OwnerID)
			}
		})
	}
}

type recordingCheckout struct {
	got checkout.Request
	err error
}

func (r *recordingCheckout) CreateSession(_ context.Context, req checkout.Request) (*checkout.Session, error) {
	r.got = req
	if r.err != nil {
		return nil, r.err
	}
	return &checkout.Session{SessionID: "cs_1", URL: "https://pay.test/cs_1", Breakdown: pricing.Breakdown{Total: 1749}}, nil
}

type stubCartReader struct {
	cart *cart.Cart
}

func (s stubCartReader) Get(_ context.Context, customerID uuid.UUID) (*cart.Cart, error) {
	c := *s.cart
	c.CustomerID = customerID
	return &c, nil
}

func TestCheckoutFallsBackToStoredCart(t *testing.T) {
	stored := &cart.Cart{Lines: []pricing.CartLine{
		{ProductID: "rice", Name: "Rice", UnitPrice: 300, Quantity: decimal.NewFromInt(1), UnitKind: enums.UnitKindEach},
	}}
	svc := &recordingCheckout{}
	customerID := uuid.New()
	body := `{"customerId":"` + customerID.String() + `","phone":"07700 900123","deliveryAddress":"10 Cheltenham Road, Bristol","referralCode":"JC-AAAA1111"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", " key-42 ")
	rec := httptest.NewRecorder()

	Checkout(svc, stubCartReader{cart: stored}, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, customerID, svc.got.CustomerID)
	assert.Equal(t, "key-42", svc.got.IdempotencyKey)
	assert.Equal(t, "JC-AAAA1111", svc.got.ReferralCode)
	require.Len(t, svc.got.Lines, 1)
	assert.Equal(t, "rice", svc.got.Lines[0].ProductID)

	var session checkout.Session
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &session))
	assert.Equal(t, "cs_1", session.SessionID)
	assert.Equal(t, int64(1749), session.Breakdown.Total)
}

func TestCheckoutSurfacesBusinessRejection(t *testing.T) {
	svc := &recordingCheckout{err: pkgerrors.New(pkgerrors.CodeManualQuoteRequired, "delivery distance requires a manual quote")}
	body := `{"customerId":"` + uuid.NewString() + `","phone":"07700900123","deliveryAddress":"1 Far Away Lane, Penzance","lines":[{"productId":"rice","name":"Rice","unitPrice":300,"quantity":"1","unitKind":"each"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()

	Checkout(svc, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "MANUAL_QUOTE_REQUIRED", env.Error.Code)
	assert.Equal(t, "delivery distance requires a manual quote", env.Error.Message)
}

func TestCheckoutRejectsMissingFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"phone":"07700900123"}`))
	rec := httptest.NewRecorder()
	Checkout(&recordingCheckout{}, nil, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type fixedResolver struct {
	quote delivery.Quote
}

func (f fixedResolver) Resolve(context.Context, string) delivery.Quote { return f.quote }

type stubCustomerLoader struct {
	customer *models.Customer
}

func (s stubCustomerLoader) Get(context.Context, uuid.UUID) (*models.Customer, error) {
	return s.customer, nil
}

func TestDeliveryQuoteWithPreview(t *testing.T) {
	band, ok := delivery.DefaultBands().Classify(4.2)
	require.True(t, ok)
	engine, err := pricing.NewEngine(config.PricingConfig{StudentRate: decimal.RequireFromString("0.85"), MinimumCharge: 50})
	require.NoError(t, err)
	loader := stubCustomerLoader{customer: &models.Customer{IsStudent: true}}
	handler := DeliveryQuote(fixedResolver{quote: delivery.Priced(4.2, band)}, engine, loader, nil)

	body := `{"address":"10 Cheltenham Road, Bristol","customerId":"` + uuid.NewString() + `","lines":[` +
		`{"productId":"milk","name":"Milk","unitPrice":175,"quantity":"2","unitKind":"each"},` +
		`{"productId":"rice","name":"Rice","unitPrice":300,"quantity":"1","unitKind":"each"},` +
		`{"productId":"okra","name":"Okra","unitPrice":800,"quantity":"0.75","unitKind":"weight"}]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/delivery/quote", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp deliveryQuoteResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	assert.Equal(t, delivery.QuotePriced, resp.Quote.Kind)
	assert.Equal(t, int64(499), resp.Quote.Fee)
	require.NotNil(t, resp.Preview)
	assert.Equal(t, int64(1674), resp.Preview.Total)
}

func TestDeliveryQuoteManualHasNoPreview(t *testing.T) {
	handler := DeliveryQuote(fixedResolver{quote: delivery.ManualQuote(14, delivery.Band{Label: "10+ miles", ManualQuote: true})}, nil, nil, nil)
	body := `{"address":"1 Far Away Lane, Penzance","lines":[{"productId":"rice","name":"Rice","unitPrice":300,"quantity":"1","unitKind":"each"}]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/delivery/quote", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp deliveryQuoteResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	assert.Equal(t, delivery.QuoteManual, resp.Quote.Kind)
	assert.Nil(t, resp.Preview)
}

type stubOrders struct {
	listParams  pagination.Params
	listFilters internalorders.ListFilters
	advanceTo   enums.OrderStatus
	advanceErr  error
	active      *internalorders.ActiveOrderView
}

func (s *stubOrders) Get(_ context.Context, id uuid.UUID) (*internalorders.StaffOrderView, error) {
	return &internalorders.StaffOrderView{ID: id}, nil
}

func (s *stubOrders) List(_ context.Context, params pagination.Params, filters internalorders.ListFilters) (*pagination.Page[internalorders.StaffOrderView], error) {
	s.listParams = params
	s.listFilters = filters
	return &pagination.Page[internalorders.StaffOrderView]{Items: []internalorders.StaffOrderView{}}, nil
}

func (s *stubOrders) ActiveForCustomer(context.Context, uuid.UUID) (*internalorders.ActiveOrderView, error) {
	return s.active, nil
}

func (s *stubOrders) AdvanceStatus(_ context.Context, id uuid.UUID, to enums.OrderStatus) (*internalorders.StaffOrderView, error) {
	s.advanceTo = to
	if s.advanceErr != nil {
		return nil, s.advanceErr
	}
	return &internalorders.StaffOrderView{ID: id, OrderStatus: to}, nil
}

func TestAdminListOrdersParsesQuery(t *testing.T) {
	svc := &stubOrders{}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?limit=5&cursor=abc&status=preparing", nil)
	rec := httptest.NewRecorder()
	AdminListOrders(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, pagination.Params{Limit: 5, Cursor: "abc"}, svc.listParams)
	require.NotNil(t, svc.listFilters.OrderStatus)
	assert.Equal(t, enums.OrderStatusPreparing, *svc.listFilters.OrderStatus)

	for _, query := range []string{"?limit=0", "?limit=500", "?status=LOST"} {
		rec := httptest.NewRecorder()
		AdminListOrders(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestAdminAdvanceOrderStatus(t *testing.T) {
	orderID := uuid.New()
	advance := func(svc *stubOrders, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+orderID.String()+"/status", strings.NewReader(body))
		req = withURLParams(req, map[string]string{"orderId": orderID.String()})
		rec := httptest.NewRecorder()
		AdminAdvanceOrderStatus(svc, nil).ServeHTTP(rec, req)
		return rec
	}

	ok := &stubOrders{}
	rec := advance(ok, `{"status":"preparing"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enums.OrderStatusPreparing, ok.advanceTo)

	conflict := &stubOrders{advanceErr: pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move from PAID to COMPLETED")}
	rec = advance(conflict, `{"status":"COMPLETED"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "STATE_CONFLICT", decodeEnvelope(t, rec).Error.Code)

	rec = advance(&stubOrders{}, `{"status":"TELEPORTED"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActiveOrderReturnsNullWhenNone(t *testing.T) {
	customerID := uuid.New()
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"customerId": customerID.String()})
	rec := httptest.NewRecorder()
	ActiveOrder(&stubOrders{}, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":null}`, rec.Body.String())
}

type stubCustomers struct {
	created customers.CreateInput
	student *bool
}

func (s *stubCustomers) Create(_ context.Context, input customers.CreateInput) (*models.Customer, error) {
	s.created = input
	return &models.Customer{ID: uuid.New(), Name: input.Name, Phone: "07700900123"}, nil
}

func (s *stubCustomers) Get(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
}

func (s *stubCustomers) SetStudent(_ context.Context, id uuid.UUID, isStudent bool) (*models.Customer, error) {
	s.student = &isStudent
	return &models.Customer{ID: id, IsStudent: isStudent}, nil
}

func TestCreateCustomerSanitizesName(t *testing.T) {
	svc := &stubCustomers{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/customers", strings.NewReader(`{"name":"  Ada   Lovelace ","phone":"07700 900123"}`))
	rec := httptest.NewRecorder()
	CreateCustomer(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Ada Lovelace", svc.created.Name)
	var view customerView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &view))
	assert.Equal(t, "Ada Lovelace", view.Name)
	assert.Equal(t, 0, view.FreeDeliveryCredits)
}

func TestGetCustomerNotFound(t *testing.T) {
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"customerId": uuid.NewString()})
	rec := httptest.NewRecorder()
	GetCustomer(&stubCustomers{}, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminSetStudentRequiresFlag(t *testing.T) {
	customerID := uuid.NewString()
	svc := &stubCustomers{}

	req := withURLParams(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{}`)), map[string]string{"customerId": customerID})
	rec := httptest.NewRecorder()
	AdminSetStudent(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.student)

	req = withURLParams(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"isStudent":true}`)), map[string]string{"customerId": customerID})
	rec = httptest.NewRecorder()
	AdminSetStudent(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.student)
	assert.True(t, *svc.student)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	healthy := pingerFunc(func(context.Context) error { return nil })
	broken := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": healthy, "redis": healthy}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": healthy, "redis": broken}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEPENDENCY_ERROR", decodeEnvelope(t, rec).Error.Code)
}
