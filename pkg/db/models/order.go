package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/pkg/enums"
)

// OrderLine is the persisted snapshot of a cart line at payment time.
type OrderLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice int64           `json:"unitPrice"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitKind  enums.UnitKind  `json:"unitKind"`
}

// Order is created once per payment session by the webhook commit.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID       uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	StripeSessionID  string              `gorm:"column:stripe_session_id;not null;uniqueIndex"`
	CustomerName     string              `gorm:"column:customer_name;not null"`
	CustomerPhone    string              `gorm:"column:customer_phone;not null"`
	DeliveryAddress  string              `gorm:"column:delivery_address;not null"`
	Lines            []OrderLine         `gorm:"column:lines;type:jsonb;serializer:json;not null"`
	ItemsSubtotal    int64               `gorm:"column:items_subtotal;not null"`
	BaseDeliveryFee  int64               `gorm:"column:base_delivery_fee;not null"`
	DeliveryFee      int64               `gorm:"column:delivery_fee;not null"`
	DeliveryBand     string              `gorm:"column:delivery_band;not null"`
	DistanceMiles    float64             `gorm:"column:distance_miles;not null"`
	DeliveryDiscount string              `gorm:"column:delivery_discount;not null"`
	TotalAmount      int64               `gorm:"column:total_amount;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null"`
	OrderStatus      enums.OrderStatus   `gorm:"column:order_status;not null"`
	ReferralCodeUsed *string             `gorm:"column:referral_code_used"`
	ReferrerID       *uuid.UUID          `gorm:"column:referrer_id;type:uuid"`
	IsStudent        bool                `gorm:"column:is_student;not null;default:false"`
	CreditApplied    bool                `gorm:"column:credit_applied;not null;default:false"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
