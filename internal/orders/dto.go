package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/pkg/db/models"
	"github.com/justcook/justcook-backend/pkg/enums"
)

// ListFilters narrow the back-office order list.
type ListFilters struct {
	OrderStatus *enums.OrderStatus
}

// StaffOrderView is the read-only projection shown to staff.
type StaffOrderView struct {
	ID               uuid.UUID           `json:"id"`
	CustomerID       uuid.UUID           `json:"customerId"`
	CustomerName     string              `json:"customerName"`
	CustomerPhone    string              `json:"customerPhone"`
	DeliveryAddress  string              `json:"deliveryAddress"`
	Lines            []models.OrderLine  `json:"lines"`
	ItemsSubtotal    int64               `json:"itemsSubtotal"`
	DeliveryFee      int64               `json:"deliveryFee"`
	DeliveryBand     string              `json:"deliveryBand"`
	DeliveryDiscount string              `json:"deliveryDiscount"`
	TotalAmount      int64               `json:"totalAmount"`
	Currency         string              `json:"currency"`
	PaymentStatus    enums.PaymentStatus `json:"paymentStatus"`
	OrderStatus      enums.OrderStatus   `json:"orderStatus"`
	StatusLabel      string              `json:"statusLabel"`
	ReferralCodeUsed *string             `json:"referralCodeUsed,omitempty"`
	IsStudent        bool                `json:"isStudent"`
	CreditApplied    bool                `json:"creditApplied"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// ActiveOrderView backs the in-progress order banner on the cart page.
type ActiveOrderView struct {
	ID          uuid.UUID         `json:"id"`
	OrderStatus enums.OrderStatus `json:"orderStatus"`
	StatusLabel string            `json:"statusLabel"`
	TotalAmount int64             `json:"totalAmount"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func toStaffView(o models.Order) StaffOrderView {
	return StaffOrderView{
		ID:               o.ID,
		CustomerID:       o.CustomerID,
		CustomerName:     o.CustomerName,
		CustomerPhone:    o.CustomerPhone,
		DeliveryAddress:  o.DeliveryAddress,
		Lines:            o.Lines,
		ItemsSubtotal:    o.ItemsSubtotal,
		DeliveryFee:      o.DeliveryFee,
		DeliveryBand:     o.DeliveryBand,
		DeliveryDiscount: o.DeliveryDiscount,
		TotalAmount:      o.TotalAmount,
		Currency:         o.Currency,
		PaymentStatus:    o.PaymentStatus,
		OrderStatus:      o.OrderStatus,
		StatusLabel:      o.OrderStatus.Label(),
		ReferralCodeUsed: o.ReferralCodeUsed,
		IsStudent:        o.IsStudent,
		CreditApplied:    o.CreditApplied,
		CreatedAt:        o.CreatedAt,
	}
}
