package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/justcook/justcook-backend/internal/delivery"
	"github.com/justcook/justcook-backend/pkg/config"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
)

// Discount names what reduced the delivery fee, if anything.
type Discount string

const (
	DiscountNone     Discount = "none"
	DiscountCredit   Discount = "credit"
	DiscountReferral Discount = "referral"
	DiscountStudent  Discount = "student"
)

// Input carries everything that influences the charge.
type Input struct {
	Lines           []CartLine
	Quote           delivery.Quote
	IsStudent       bool
	UseCredit       bool
	ReferralApplied bool
}

// Breakdown is the priced result in pence.
type Breakdown struct {
	ItemsSubtotal    int64    `json:"itemsSubtotal"`
	BaseDeliveryFee  int64    `json:"baseDeliveryFee"`
	DeliveryFee      int64    `json:"deliveryFee"`
	DeliveryDiscount Discount `json:"deliveryDiscount"`
	Total            int64    `json:"total"`
}

type Engine struct {
	StudentRate   decimal.Decimal
	MinimumCharge int64
}

func NewEngine(cfg config.PricingConfig) (*Engine, error) {
	if !cfg.StudentRate.IsPositive() || cfg.StudentRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, errors.New("student rate must be in (0, 1]")
	}
	if cfg.MinimumCharge < 0 {
		return nil, errors.New("minimum charge must not be negative")
	}
	return &Engine{StudentRate: cfg.StudentRate, MinimumCharge: cfg.MinimumCharge}, nil
}

// Compute prices a cart. A consumed credit wins over a referral, which wins
// over the student rate; discounts never stack.
func (e *Engine) Compute(in Input) (Breakdown, error) {
	if len(in.Lines) == 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeCartEmpty, "cart is empty")
	}
	if lineErrs := ValidateLines(in.Lines); len(lineErrs) > 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "cart contains invalid lines").
			WithDetails(map[string]any{"lines": lineErrs})
	}

	base := in.Quote.BaseFee()
	fee := base
	discount := DiscountNone
	switch {
	case base == 0:
	case in.UseCredit:
		fee, discount = 0, DiscountCredit
	case in.ReferralApplied:
		fee, discount = 0, DiscountReferral
	case in.IsStudent:
		fee = roundHalfUp(decimal.NewFromInt(base).Mul(e.StudentRate))
		discount = DiscountStudent
	}

	sum := decimal.Zero
	for _, line := range in.Lines {
		sum = sum.Add(line.LineTotal())
	}
	if sum.Add(decimal.NewFromInt(fee)).GreaterThan(decimal.NewFromInt(MaxChargeAmount)) {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "order total exceeds the maximum charge").
			WithDetails(map[string]any{"maximum": MaxChargeAmount})
	}
	subtotal := roundHalfUp(sum)
	total := subtotal + fee

	if total < e.MinimumCharge {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeAmountTooLow, "order total is below the minimum charge").
			WithDetails(map[string]any{"total": total, "minimum": e.MinimumCharge})
	}

	return Breakdown{
		ItemsSubtotal:    subtotal,
		BaseDeliveryFee:  base,
		DeliveryFee:      fee,
		DeliveryDiscount: discount,
		Total:            total,
	}, nil
}

// roundHalfUp rounds non-negative pence amounts to the nearest whole penny.
func roundHalfUp(v decimal.Decimal) int64 {
	return v.Round(0).IntPart()
}
