package checkout

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/justcook/justcook-backend/internal/delivery"
	"github.com/justcook/justcook-backend/internal/pricing"
	"github.com/justcook/justcook-backend/internal/referrals"
	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/db/models"
	"github.com/justcook/justcook-backend/pkg/enums"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/stripe"
)

type stubCustomers struct {
	customer *models.Customer
}

func (s stubCustomers) Get(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	if s.customer == nil || s.customer.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	c := *s.customer
	return &c, nil
}

type stubQuotes struct {
	quote delivery.Quote
	seen  string
}

func (s *stubQuotes) Resolve(_ context.Context, address string) delivery.Quote {
	s.seen = address
	return s.quote
}

type stubReferrals struct {
	owner uuid.UUID
	err   error
}

func (s stubReferrals) Validate(_ context.Context, code string, _ uuid.UUID) (*referrals.Validation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &referrals.Validation{Valid: true, Code: code, OwnerID: s.owner}, nil
}

type recordingProvider struct {
	req   stripe.CheckoutSessionRequest
	calls int
}

func (p *recordingProvider) CreateCheckoutSession(_ context.Context, req stripe.CheckoutSessionRequest) (*stripe.CheckoutSessionResult, error) {
	p.calls++
	p.req = req
	return &stripe.CheckoutSessionResult{ID: "cs_test_123", URL: "https://checkout.stripe.test/cs_test_123"}, nil
}

type outcomes []string

func (o *outcomes) IncCheckout(outcome string) { *o = append(*o, outcome) }

type harness struct {
	svc      *Service
	customer *models.Customer
	quotes   *stubQuotes
	provider *recordingProvider
	metrics  *outcomes
}

func newHarness(t *testing.T, customer models.Customer, quote delivery.Quote, refs ReferralValidator, cfg Config) *harness {
	t.Helper()
	engine, err := pricing.NewEngine(config.PricingConfig{StudentRate: decimal.RequireFromString("0.85"), MinimumCharge: 50})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if refs == nil {
		refs = stubReferrals{owner: uuid.New()}
	}
	if cfg.PublicBaseURL == "" {
		cfg = Config{
			PublicBaseURL: "https://justcook.test/",
			SuccessPath:   "/success?session_id={CHECKOUT_SESSION_ID}",
			CancelPath:    "/cart",
			LineItemName:  "Groceries",
			Currency:      "gbp",
		}
	}
	h := &harness{
		customer: &customer,
		quotes:   &stubQuotes{quote: quote},
		provider: &recordingProvider{},
		metrics:  &outcomes{},
	}
	h.svc, err = NewService(Dependencies{
		Customers: stubCustomers{customer: h.customer},
		Quotes:    h.quotes,
		Referrals: refs,
		Pricing:   engine,
		Payments:  h.provider,
		Metrics:   h.metrics,
	}, cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return h
}

func cartLines() []pricing.CartLine {
	return []pricing.CartLine{
		{ProductID: "milk", Name: "Whole milk 2L", UnitPrice: 175, Quantity: decimal.NewFromInt(2), UnitKind: enums.UnitKindEach},
		{ProductID: "rice", Name: "Basmati rice 1kg", UnitPrice: 300, Quantity: decimal.NewFromInt(1), UnitKind: enums.UnitKindEach},
		{ProductID: "okra", Name: "Okra", UnitPrice: 800, Quantity: decimal.RequireFromString("0.75"), UnitKind: enums.UnitKindWeight},
	}
}

func pricedQuote() delivery.Quote {
	band, _ := delivery.DefaultBands().Classify(4.2)
	return delivery.Priced(4.2, band)
}

func baseRequest(customerID uuid.UUID) Request {
	return Request{
		CustomerID:      customerID,
		Phone:           "+44 7700 900123",
		DeliveryAddress: "  10 Cheltenham Road, Bristol ",
		Lines:           cartLines(),
		IdempotencyKey:  "key-1",
	}
}

func TestCreateSessionTotals(t *testing.T) {
	cases := []struct {
		name     string
		customer models.Customer
		referral string
		total    int64
		discount pricing.Discount
	}{
		{"plain", models.Customer{Name: "Ada"}, "", 1749, pricing.DiscountNone},
		{"student", models.Customer{Name: "Ada", IsStudent: true}, "", 1674, pricing.DiscountStudent},
		{"referral", models.Customer{Name: "Ada"}, "jc-abcd1234", 1250, pricing.DiscountReferral},
		{"credit", models.Customer{Name: "Ada", FreeDeliveryCredits: 2}, "", 1250, pricing.DiscountCredit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.customer.ID = uuid.New()
			h := newHarness(t, tc.customer, pricedQuote(), nil, Config{})

			req := baseRequest(tc.customer.ID)
			req.ReferralCode = tc.referral
			session, err := h.svc.CreateSession(context.Background(), req)
			if err != nil {
				t.Fatalf("create session: %v", err)
			}
			if session.Breakdown.Total != tc.total || session.Breakdown.DeliveryDiscount != tc.discount {
				t.Fatalf("unexpected breakdown %+v", session.Breakdown)
			}
			if h.provider.req.Amount != tc.total {
				t.Fatalf("provider charged %d", h.provider.req.Amount)
			}

			meta, err := DecodeMetadata(h.provider.req.Metadata)
			if err != nil {
				t.Fatalf("decode metadata: %v", err)
			}
			if meta.Total != tc.total || meta.CustomerID != tc.customer.ID || meta.DeliveryBand != "3–6 miles" {
				t.Fatalf("unexpected metadata %+v", meta)
			}
			if tc.referral != "" && meta.ReferralCode != "JC-ABCD1234" {
				t.Fatalf("expected normalized referral code, got %q", meta.ReferralCode)
			}
			if meta.CustomerName != "Ada" || meta.Phone != "447700900123" {
				t.Fatalf("unexpected contact %q %q", meta.CustomerName, meta.Phone)
			}
		})
	}
}

func TestCreateSessionProviderRequest(t *testing.T) {
	customer := models.Customer{ID: uuid.New(), Name: "Ada"}
	h := newHarness(t, customer, pricedQuote(), nil, Config{})

	session, err := h.svc.CreateSession(context.Background(), baseRequest(customer.ID))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.SessionID != "cs_test_123" || session.Quote.Fee != 499 {
		t.Fatalf("unexpected session %+v", session)
	}
	req := h.provider.req
	if req.SuccessURL != "https://justcook.test/success?session_id={CHECKOUT_SESSION_ID}" || req.CancelURL != "https://justcook.test/cart" {
		t.Fatalf("unexpected urls %q %q", req.SuccessURL, req.CancelURL)
	}
	if req.ProductName != "Groceries" || req.Currency != "gbp" || req.ClientReferenceID != customer.ID.String() {
		t.Fatalf("unexpected request %+v", req)
	}
	if !strings.HasSuffix(req.IdempotencyKey, ":key-1") {
		t.Fatalf("unexpected idempotency key %q", req.IdempotencyKey)
	}
	if h.quotes.seen != "10 Cheltenham Road, Bristol" {
		t.Fatalf("address not trimmed: %q", h.quotes.seen)
	}
	if len(*h.metrics) != 1 || (*h.metrics)[0] != "created" {
		t.Fatalf("unexpected metrics %v", *h.metrics)
	}
}

func TestCreateSessionIgnoresClientStudentFlagUnlessTrusted(t *testing.T) {
	customer := models.Customer{ID: uuid.New(), Name: "Ada"}
	req := baseRequest(customer.ID)
	req.IsStudent = true

	h := newHarness(t, customer, pricedQuote(), nil, Config{})
	session, err := h.svc.CreateSession(context.Background(), req)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Breakdown.Total != 1749 {
		t.Fatalf("client flag should be ignored, total %d", session.Breakdown.Total)
	}

	trusted := newHarness(t, customer, pricedQuote(), nil, Config{
		PublicBaseURL:          "https://justcook.test",
		Currency:               "gbp",
		TrustClientStudentFlag: true,
	})
	session, err = trusted.svc.CreateSession(context.Background(), req)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Breakdown.Total != 1674 {
		t.Fatalf("trusted flag should apply, total %d", session.Breakdown.Total)
	}
}

func TestCreateSessionRejections(t *testing.T) {
	customer := models.Customer{ID: uuid.New(), Name: "Ada"}
	cases := []struct {
		name   string
		quote  delivery.Quote
		refs   ReferralValidator
		mutate func(*Request)
		code   pkgerrors.Code
	}{
		{"empty cart", pricedQuote(), nil, func(r *Request) { r.Lines = nil }, pkgerrors.CodeCartEmpty},
		{"short phone", pricedQuote(), nil, func(r *Request) { r.Phone = "1234" }, pkgerrors.CodeValidation},
		{"unknown customer", pricedQuote(), nil, func(r *Request) { r.CustomerID = uuid.New() }, pkgerrors.CodeNotFound},
		{"incomplete address", delivery.Unavailable(delivery.ReasonIncompleteAddress), nil, nil, pkgerrors.CodeValidation},
		{"address not found", delivery.Unavailable(delivery.ReasonAddressNotFound), nil, nil, pkgerrors.CodeValidation},
		{"upstream down", delivery.Unavailable(delivery.ReasonUpstreamUnavailable), nil, nil, pkgerrors.CodeDependency},
		{"manual quote", delivery.ManualQuote(14, delivery.Band{Label: "10+ miles", ManualQuote: true}), nil, nil, pkgerrors.CodeManualQuoteRequired},
		{"self referral", pricedQuote(), stubReferrals{err: pkgerrors.New(pkgerrors.CodeSelfReferral, "self")}, func(r *Request) { r.ReferralCode = "JC-OWN00000" }, pkgerrors.CodeSelfReferral},
		{"used referral", pricedQuote(), stubReferrals{err: pkgerrors.New(pkgerrors.CodeReferralUsed, "used")}, func(r *Request) { r.ReferralCode = "JC-USED0000" }, pkgerrors.CodeReferralUsed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, customer, tc.quote, tc.refs, Config{})
			req := baseRequest(customer.ID)
			if tc.mutate != nil {
				tc.mutate(&req)
			}
			_, err := h.svc.CreateSession(context.Background(), req)
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
			if h.provider.calls != 0 {
				t.Fatal("provider must not be called on rejection")
			}
			want := strings.ToLower(string(tc.code))
			if len(*h.metrics) != 1 || (*h.metrics)[0] != want {
				t.Fatalf("expected outcome %q, got %v", want, *h.metrics)
			}
		})
	}
}
