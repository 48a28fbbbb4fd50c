package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/internal/checkout"
	"github.com/justcook/justcook-backend/internal/customers"
	"github.com/justcook/justcook-backend/internal/orders"
	"github.com/justcook/justcook-backend/internal/referrals"
	"github.com/justcook/justcook-backend/pkg/db/models"
	"github.com/justcook/justcook-backend/pkg/enums"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/logger"
	"github.com/justcook/justcook-backend/pkg/outbox"
	"github.com/justcook/justcook-backend/pkg/outbox/payloads"
)

const eventSource = "stripe-webhook"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type referralLedger interface {
	EnsureCodeTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) (string, error)
	RedeemTx(ctx context.Context, tx *gorm.DB, code string, redeemer uuid.UUID, now time.Time) (referrals.Outcome, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cartClearer interface {
	Clear(ctx context.Context, customerID uuid.UUID) error
}

type webhookRecorder interface {
	IncWebhookEvent(eventType, outcome string)
	IncRedemption(outcome string)
}

type ServiceParams struct {
	TransactionRunner txRunner
	Orders            orders.Repository
	Customers         customers.Repository
	Referrals         referralLedger
	Outbox            eventEmitter
	Carts             cartClearer
	Metrics           webhookRecorder
	Logger            *logger.Logger
	Clock             func() time.Time
}

type Service struct {
	tx        txRunner
	orders    orders.Repository
	customers customers.Repository
	referrals referralLedger
	outbox    eventEmitter
	carts     cartClearer
	metrics   webhookRecorder
	logg      *logger.Logger
	now       func() time.Time
}

// CommitResult describes what a confirmed payment changed.
type CommitResult struct {
	OrderID           uuid.UUID
	Created           bool
	CreditConsumed    bool
	ReferralOutcome   referrals.Outcome
	PayerCode         string
	ReferralAttempted bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.Customers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "customer repo required")
	}
	if params.Referrals == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "referral ledger required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		tx:        params.TransactionRunner,
		orders:    params.Orders,
		customers: params.Customers,
		referrals: params.Referrals,
		outbox:    params.Outbox,
		carts:     params.Carts,
		metrics:   params.Metrics,
		logg:      logg,
		now:       now,
	}, nil
}

// HandleEvent applies a verified provider event. Unknown types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": eventType})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			s.recordEvent(eventType, "invalid")
			return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "decode checkout session event")
		}
		if event.Type == stripe.EventTypeCheckoutSessionCompleted &&
			session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			s.logg.Info(s.logg.WithField(ctx, "session_id", session.ID), "stripe.session_awaiting_payment")
			s.recordEvent(eventType, "unpaid")
			return nil
		}
		result, err := s.Commit(ctx, &session)
		if err != nil {
			s.recordEvent(eventType, "error")
			return err
		}
		if result.Created {
			s.recordEvent(eventType, "committed")
		} else {
			s.recordEvent(eventType, "duplicate")
		}
		return nil
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		s.logg.Warn(s.logg.WithField(ctx, "object_id", event.GetObjectValue("id")), "stripe.session_not_paid")
		s.recordEvent(eventType, "not_paid")
		return nil
	default:
		s.recordEvent(eventType, "ignored")
		return nil
	}
}

// Commit turns a paid session into an order exactly once. Replays of the same
// session find the existing order and change nothing else.
func (s *Service) Commit(ctx context.Context, session *stripe.CheckoutSession) (*CommitResult, error) {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "checkout session id missing")
	}
	meta, err := checkout.DecodeMetadata(session.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "invalid checkout session metadata").
			WithDetails(map[string]any{"sessionId": session.ID})
	}
	ctx = s.logg.WithCustomerID(s.logg.WithField(ctx, "session_id", session.ID), meta.CustomerID.String())

	paidAt := s.now()
	result := &CommitResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.customers.WithTx(tx).FindByID(ctx, meta.CustomerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeIntegrity, "checkout session references an unknown customer")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer")
		}

		orderRepo := s.orders.WithTx(tx)
		order := buildOrder(session, meta)
		created, err := orderRepo.CreateIfAbsent(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if !created {
			existing, err := orderRepo.FindBySessionID(ctx, session.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load existing order")
			}
			order = existing
		}
		result.Created = created
		result.OrderID = order.ID

		code, err := s.referrals.EnsureCodeTx(ctx, tx, meta.CustomerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ensure referral code")
		}
		result.PayerCode = code

		if meta.ReferralCode != "" {
			result.ReferralAttempted = true
			outcome, err := s.referrals.RedeemTx(ctx, tx, meta.ReferralCode, meta.CustomerID, paidAt)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "redeem referral")
			}
			result.ReferralOutcome = outcome
		}

		if !created {
			return nil
		}

		consumed, err := s.customers.WithTx(tx).ConsumeCredit(ctx, meta.CustomerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume delivery credit")
		}
		result.CreditConsumed = consumed

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        eventSource,
			OccurredAt:    paidAt,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				CustomerID:       order.CustomerID,
				StripeSessionID:  order.StripeSessionID,
				TotalAmount:      order.TotalAmount,
				Currency:         order.Currency,
				DeliveryFee:      order.DeliveryFee,
				DeliveryBand:     order.DeliveryBand,
				DeliveryDiscount: order.DeliveryDiscount,
				CreditApplied:    consumed,
				PaidAt:           paidAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid")
		}

		if result.ReferralOutcome == referrals.OutcomeRedeemed && meta.ReferrerID != nil {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReferralRedeemed,
				AggregateType: enums.AggregateCustomer,
				AggregateID:   *meta.ReferrerID,
				Source:        eventSource,
				OccurredAt:    paidAt,
				Data: payloads.ReferralRedeemedEvent{
					Code:       meta.ReferralCode,
					ReferrerID: *meta.ReferrerID,
					RedeemerID: meta.CustomerID,
					OrderID:    order.ID,
					RedeemedAt: paidAt,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit referral redeemed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.ReferralAttempted {
		if s.metrics != nil {
			s.metrics.IncRedemption(string(result.ReferralOutcome))
		}
		s.logg.Info(s.logg.WithField(ctx, "referral_outcome", string(result.ReferralOutcome)), "referral.redeem_attempted")
	}
	if session.AmountTotal != 0 && session.AmountTotal != meta.Total {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"amount_total":   session.AmountTotal,
			"metadata_total": meta.Total,
		}), "stripe.amount_mismatch")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":        result.OrderID.String(),
		"created":         result.Created,
		"credit_consumed": result.CreditConsumed,
	}), "order.committed")

	if s.carts != nil && result.Created {
		if err := s.carts.Clear(ctx, meta.CustomerID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart.clear_failed")
		}
	}
	return result, nil
}

func (s *Service) recordEvent(eventType, outcome string) {
	if s.metrics != nil {
		s.metrics.IncWebhookEvent(eventType, outcome)
	}
}

func buildOrder(session *stripe.CheckoutSession, meta *checkout.SessionMetadata) *models.Order {
	lines := make([]models.OrderLine, 0, len(meta.Lines))
	for _, line := range meta.Lines {
		lines = append(lines, models.OrderLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			UnitKind:  line.UnitKind,
		})
	}

	total := meta.Total
	if session.AmountTotal > 0 {
		total = session.AmountTotal
	}
	currency := strings.ToLower(string(session.Currency))

	order := &models.Order{
		CustomerID:       meta.CustomerID,
		StripeSessionID:  session.ID,
		CustomerName:     meta.CustomerName,
		CustomerPhone:    meta.Phone,
		DeliveryAddress:  meta.DeliveryAddress,
		Lines:            lines,
		ItemsSubtotal:    meta.ItemsSubtotal,
		BaseDeliveryFee:  meta.BaseDeliveryFee,
		DeliveryFee:      meta.DeliveryFee,
		DeliveryBand:     meta.DeliveryBand,
		DistanceMiles:    meta.DistanceMiles,
		DeliveryDiscount: string(meta.DeliveryDiscount),
		TotalAmount:      total,
		Currency:         currency,
		PaymentStatus:    enums.PaymentStatusPaid,
		OrderStatus:      enums.OrderStatusPaid,
		ReferrerID:       meta.ReferrerID,
		IsStudent:        meta.IsStudent,
		CreditApplied:    meta.UseCredit,
	}
	if meta.ReferralCode != "" {
		code := meta.ReferralCode
		order.ReferralCodeUsed = &code
	}
	return order
}
