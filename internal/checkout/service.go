package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/internal/customers"
	"github.com/justcook/justcook-backend/internal/delivery"
	"github.com/justcook/justcook-backend/internal/pricing"
	"github.com/justcook/justcook-backend/internal/referrals"
	"github.com/justcook/justcook-backend/pkg/db/models"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/logger"
	"github.com/justcook/justcook-backend/pkg/stripe"
)

// PaymentProvider creates hosted payment sessions.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req stripe.CheckoutSessionRequest) (*stripe.CheckoutSessionResult, error)
}

type CustomerLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

type ReferralValidator interface {
	Validate(ctx context.Context, code string, customerID uuid.UUID) (*referrals.Validation, error)
}

type CheckoutRecorder interface {
	IncCheckout(outcome string)
}

// Dependencies are the collaborators the orchestrator calls in order.
type Dependencies struct {
	Customers CustomerLoader
	Quotes    delivery.QuoteResolver
	Referrals ReferralValidator
	Pricing   *pricing.Engine
	Payments  PaymentProvider
	Metrics   CheckoutRecorder
	Logger    *logger.Logger
}

type Config struct {
	PublicBaseURL          string
	SuccessPath            string
	CancelPath             string
	LineItemName           string
	Currency               string
	TrustClientStudentFlag bool
}

type Request struct {
	CustomerID      uuid.UUID
	CustomerName    string
	Phone           string
	DeliveryAddress string
	Lines           []pricing.CartLine
	IsStudent       bool
	ReferralCode    string
	IdempotencyKey  string
}

type Session struct {
	SessionID string            `json:"sessionId"`
	URL       string            `json:"url"`
	Breakdown pricing.Breakdown `json:"breakdown"`
	Quote     delivery.Quote    `json:"quote"`
}

type Service struct {
	deps Dependencies
	cfg  Config
}

func NewService(deps Dependencies, cfg Config) (*Service, error) {
	switch {
	case deps.Customers == nil:
		return nil, errors.New("customer loader required")
	case deps.Quotes == nil:
		return nil, errors.New("quote resolver required")
	case deps.Referrals == nil:
		return nil, errors.New("referral validator required")
	case deps.Pricing == nil:
		return nil, errors.New("pricing engine required")
	case deps.Payments == nil:
		return nil, errors.New("payment provider required")
	}
	if strings.TrimSpace(cfg.PublicBaseURL) == "" {
		return nil, errors.New("public base url required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Service{deps: deps, cfg: cfg}, nil
}

// CreateSession recomputes the charge server-side and opens a payment
// session carrying every pricing input in its metadata.
func (s *Service) CreateSession(ctx context.Context, req Request) (*Session, error) {
	session, err := s.createSession(ctx, req)
	s.record(err)
	return session, err
}

func (s *Service) createSession(ctx context.Context, req Request) (*Session, error) {
	if len(req.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCartEmpty, "cart is empty")
	}
	phone, err := customers.NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	customer, err := s.deps.Customers.Get(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	address := strings.TrimSpace(req.DeliveryAddress)
	quote := s.deps.Quotes.Resolve(ctx, address)
	if err := quoteError(quote); err != nil {
		return nil, err
	}

	var (
		referralCode string
		referrerID   *uuid.UUID
	)
	if code := referrals.NormalizeCode(req.ReferralCode); code != "" {
		validation, err := s.deps.Referrals.Validate(ctx, code, customer.ID)
		if err != nil {
			return nil, err
		}
		referralCode = validation.Code
		owner := validation.OwnerID
		referrerID = &owner
	}

	isStudent := customer.IsStudent
	if s.cfg.TrustClientStudentFlag {
		isStudent = isStudent || req.IsStudent
	}
	useCredit := customer.FreeDeliveryCredits > 0

	breakdown, err := s.deps.Pricing.Compute(pricing.Input{
		Lines:           req.Lines,
		Quote:           quote,
		IsStudent:       isStudent,
		UseCredit:       useCredit,
		ReferralApplied: referralCode != "",
	})
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = customer.Name
	}
	meta := SessionMetadata{
		Version:          MetadataVersion,
		CustomerID:       customer.ID,
		CustomerName:     name,
		Phone:            phone,
		DeliveryAddress:  address,
		DistanceMiles:    quote.DistanceMiles,
		DeliveryBand:     quote.Band,
		BaseDeliveryFee:  breakdown.BaseDeliveryFee,
		DeliveryFee:      breakdown.DeliveryFee,
		DeliveryDiscount: breakdown.DeliveryDiscount,
		ItemsSubtotal:    breakdown.ItemsSubtotal,
		Total:            breakdown.Total,
		IsStudent:        isStudent,
		UseCredit:        useCredit,
		ReferralCode:     referralCode,
		ReferrerID:       referrerID,
		Lines:            req.Lines,
	}
	encoded, err := meta.Encode()
	if err != nil {
		return nil, err
	}

	idempotencyKey := ""
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		idempotencyKey = fmt.Sprintf("checkout:%s:%s", customer.ID, key)
	}
	result, err := s.deps.Payments.CreateCheckoutSession(ctx, stripe.CheckoutSessionRequest{
		Amount:            breakdown.Total,
		Currency:          s.cfg.Currency,
		ProductName:       s.cfg.LineItemName,
		SuccessURL:        s.url(s.cfg.SuccessPath),
		CancelURL:         s.url(s.cfg.CancelPath),
		ClientReferenceID: customer.ID.String(),
		Metadata:          encoded,
		IdempotencyKey:    idempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info(s.deps.Logger.WithFields(ctx, map[string]any{
		"customer_id":       customer.ID.String(),
		"session_id":        result.ID,
		"total":             breakdown.Total,
		"delivery_discount": breakdown.DeliveryDiscount,
	}), "checkout.session_created")

	return &Session{SessionID: result.ID, URL: result.URL, Breakdown: breakdown, Quote: quote}, nil
}

func (s *Service) url(path string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (s *Service) record(err error) {
	if s.deps.Metrics == nil {
		return
	}
	if err == nil {
		s.deps.Metrics.IncCheckout("created")
		return
	}
	code := pkgerrors.CodeInternal
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
	}
	s.deps.Metrics.IncCheckout(strings.ToLower(string(code)))
}

// quoteError blocks checkout unless the quote is priced.
func quoteError(q delivery.Quote) error {
	switch q.Kind {
	case delivery.QuotePriced:
		return nil
	case delivery.QuoteManual:
		return pkgerrors.New(pkgerrors.CodeManualQuoteRequired, "delivery distance requires a manual quote").
			WithDetails(map[string]any{"band": q.Band, "distanceMiles": q.DistanceMiles})
	}
	switch q.Reason {
	case delivery.ReasonUpstreamUnavailable:
		return pkgerrors.New(pkgerrors.CodeDependency, "delivery quote unavailable, please retry").
			WithDetails(map[string]any{"reason": q.Reason})
	case delivery.ReasonAddressNotFound:
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery address could not be found").
			WithDetails(map[string]any{"field": "deliveryAddress", "reason": q.Reason})
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery address is incomplete").
			WithDetails(map[string]any{"field": "deliveryAddress", "reason": q.Reason})
	}
}
