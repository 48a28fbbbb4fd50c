package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidEvent is emitted once when the payment webhook commits an order.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	CustomerID       uuid.UUID `json:"customer_id"`
	StripeSessionID  string    `json:"stripe_session_id"`
	TotalAmount      int64     `json:"total_amount"`
	Currency         string    `json:"currency"`
	DeliveryFee      int64     `json:"delivery_fee"`
	DeliveryBand     string    `json:"delivery_band"`
	DeliveryDiscount string    `json:"delivery_discount"`
	CreditApplied    bool      `json:"credit_applied"`
	PaidAt           time.Time `json:"paid_at"`
}

// ReferralRedeemedEvent reports a first redemption of a referral code.
type ReferralRedeemedEvent struct {
	Code       string    `json:"code"`
	ReferrerID uuid.UUID `json:"referrer_id"`
	RedeemerID uuid.UUID `json:"redeemer_id"`
	OrderID    uuid.UUID `json:"order_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}
