package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/justcook/justcook-backend/pkg/enums"
)

// MaxChargeAmount is the largest amount Stripe accepts for a single charge,
// in pence. It also bounds unit prices and cart totals.
const MaxChargeAmount int64 = 99999999

// WeightStep is the smallest weight increment a shopper can order.
var WeightStep = decimal.RequireFromString("0.25")

// CartLine is one product in a cart, priced by the catalogue at add time.
type CartLine struct {
	ProductID string          `json:"productId" validate:"required,max=64"`
	Name      string          `json:"name" validate:"required,max=200"`
	UnitPrice int64           `json:"unitPrice" validate:"gte=0,lte=99999999"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitKind  enums.UnitKind  `json:"unitKind" validate:"required,oneof=each weight"`
}

// LineError reports why a single cart line was rejected.
type LineError struct {
	Index     int    `json:"index"`
	ProductID string `json:"productId,omitempty"`
	Reason    string `json:"reason"`
}

// Validate checks the quantity rules for the line's unit kind.
func (l CartLine) Validate() error {
	if strings.TrimSpace(l.ProductID) == "" {
		return fmt.Errorf("product id is required")
	}
	if l.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative")
	}
	if l.UnitPrice > MaxChargeAmount {
		return fmt.Errorf("unit price must not exceed %d", MaxChargeAmount)
	}
	if !l.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive")
	}
	switch l.UnitKind {
	case enums.UnitKindEach:
		if !l.Quantity.IsInteger() {
			return fmt.Errorf("quantity must be a whole number")
		}
	case enums.UnitKindWeight:
		if !l.Quantity.Mod(WeightStep).IsZero() {
			return fmt.Errorf("weight must be a multiple of %s", WeightStep)
		}
	default:
		return fmt.Errorf("unknown unit kind %q", l.UnitKind)
	}
	return nil
}

// LineTotal is unitPrice × quantity before rounding.
func (l CartLine) LineTotal() decimal.Decimal {
	return decimal.NewFromInt(l.UnitPrice).Mul(l.Quantity)
}

// ValidateLines collects every invalid line rather than stopping at the first.
func ValidateLines(lines []CartLine) []LineError {
	var out []LineError
	for i, line := range lines {
		if err := line.Validate(); err != nil {
			out = append(out, LineError{Index: i, ProductID: line.ProductID, Reason: err.Error()})
		}
	}
	return out
}
