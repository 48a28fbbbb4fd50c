package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/justcook/justcook-backend/internal/delivery"
	"github.com/justcook/justcook-backend/pkg/config"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/enums"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(config.PricingConfig{StudentRate: decimal.RequireFromString("0.85"), MinimumCharge: 50})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func twelveFiftyCart() []CartLine {
	return []CartLine{
		{ProductID: "milk", Name: "Whole milk 2L", UnitPrice: 175, Quantity: decimal.NewFromInt(2), UnitKind: enums.UnitKindEach},
		{ProductID: "rice", Name: "Basmati rice 1kg", UnitPrice: 300, Quantity: decimal.NewFromInt(1), UnitKind: enums.UnitKindEach},
		{ProductID: "okra", Name: "Okra", UnitPrice: 800, Quantity: decimal.RequireFromString("0.75"), UnitKind: enums.UnitKindWeight},
	}
}

func bandQuote(miles float64) delivery.Quote {
	band, _ := delivery.DefaultBands().Classify(miles)
	return delivery.Priced(miles, band)
}

func TestComputeEndToEndTotals(t *testing.T) {
	e := newTestEngine(t)
	quote := bandQuote(4.2)

	cases := []struct {
		name     string
		in       Input
		fee      int64
		discount Discount
		total    int64
	}{
		{"no discounts", Input{Lines: twelveFiftyCart(), Quote: quote}, 499, DiscountNone, 1749},
		{"student", Input{Lines: twelveFiftyCart(), Quote: quote, IsStudent: true}, 424, DiscountStudent, 1674},
		{"referral", Input{Lines: twelveFiftyCart(), Quote: quote, ReferralApplied: true}, 0, DiscountReferral, 1250},
		{"referral beats student", Input{Lines: twelveFiftyCart(), Quote: quote, ReferralApplied: true, IsStudent: true}, 0, DiscountReferral, 1250},
		{"credit beats referral", Input{Lines: twelveFiftyCart(), Quote: quote, UseCredit: true, ReferralApplied: true}, 0, DiscountCredit, 1250},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Compute(tc.in)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if got.ItemsSubtotal != 1250 {
				t.Fatalf("expected subtotal 1250, got %d", got.ItemsSubtotal)
			}
			if got.BaseDeliveryFee != 499 {
				t.Fatalf("expected base fee 499, got %d", got.BaseDeliveryFee)
			}
			if got.DeliveryFee != tc.fee || got.DeliveryDiscount != tc.discount || got.Total != tc.total {
				t.Fatalf("unexpected breakdown %+v", got)
			}
		})
	}
}

func TestStudentRateRoundsHalfUp(t *testing.T) {
	e := newTestEngine(t)
	cases := map[int64]int64{499: 424, 299: 254, 799: 679, 10: 9, 30: 26}
	for base, want := range cases {
		got := roundHalfUp(decimal.NewFromInt(base).Mul(e.StudentRate))
		if got != want {
			t.Fatalf("student fee for %d = %d, want %d", base, got, want)
		}
	}
}

func TestSubtotalRoundsFractionalWeights(t *testing.T) {
	e := newTestEngine(t)
	lines := []CartLine{
		{ProductID: "lamb", Name: "Lamb", UnitPrice: 1299, Quantity: decimal.RequireFromString("0.25"), UnitKind: enums.UnitKindWeight},
	}
	got, err := e.Compute(Input{Lines: lines, Quote: bandQuote(1)})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.ItemsSubtotal != 325 {
		t.Fatalf("expected 324.75 to round to 325, got %d", got.ItemsSubtotal)
	}
}

func TestComputeRejectsEmptyCart(t *testing.T) {
	_, err := newTestEngine(t).Compute(Input{Quote: bandQuote(1)})
	if !pkgerrors.IsCode(err, pkgerrors.CodeCartEmpty) {
		t.Fatalf("expected CART_EMPTY, got %v", err)
	}
}

func TestComputeRejectsInvalidLines(t *testing.T) {
	lines := []CartLine{
		{ProductID: "eggs", Name: "Eggs", UnitPrice: 250, Quantity: decimal.RequireFromString("1.5"), UnitKind: enums.UnitKindEach},
		{ProductID: "yam", Name: "Yam", UnitPrice: 400, Quantity: decimal.RequireFromString("0.3"), UnitKind: enums.UnitKindWeight},
		{ProductID: "salt", Name: "Salt", UnitPrice: 80, Quantity: decimal.Zero, UnitKind: enums.UnitKindEach},
		{ProductID: "ok", Name: "Fine", UnitPrice: 80, Quantity: decimal.NewFromInt(1), UnitKind: enums.UnitKindEach},
	}
	_, err := newTestEngine(t).Compute(Input{Lines: lines, Quote: bandQuote(1)})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details := typed.Details().(map[string]any)
	lineErrs := details["lines"].([]LineError)
	if len(lineErrs) != 3 {
		t.Fatalf("expected 3 line errors, got %+v", lineErrs)
	}
	if lineErrs[1].Index != 1 || lineErrs[1].ProductID != "yam" {
		t.Fatalf("unexpected line error %+v", lineErrs[1])
	}
}

func TestComputeRejectsTotalsBeyondMaximumCharge(t *testing.T) {
	e := newTestEngine(t)

	pricey := []CartLine{
		{ProductID: "gold", Name: "Saffron", UnitPrice: MaxChargeAmount + 1, Quantity: decimal.NewFromInt(1), UnitKind: enums.UnitKindEach},
	}
	if _, err := e.Compute(Input{Lines: pricey, Quote: bandQuote(1)}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for oversized unit price, got %v", err)
	}

	// Each line is valid but the product would not fit in int64 pence.
	bulk := []CartLine{
		{ProductID: "rice", Name: "Rice", UnitPrice: MaxChargeAmount, Quantity: decimal.RequireFromString("100000000000000000000"), UnitKind: enums.UnitKindEach},
	}
	_, err := e.Compute(Input{Lines: bulk, Quote: bandQuote(1)})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for oversized total, got %v", err)
	}

	atLimit := []CartLine{
		{ProductID: "rice", Name: "Rice", UnitPrice: MaxChargeAmount - 299, Quantity: decimal.NewFromInt(1), UnitKind: enums.UnitKindEach},
	}
	got, err := e.Compute(Input{Lines: atLimit, Quote: bandQuote(1)})
	if err != nil {
		t.Fatalf("expected total at the limit to be accepted, got %v", err)
	}
	if got.Total != MaxChargeAmount {
		t.Fatalf("expected total %d, got %d", MaxChargeAmount, got.Total)
	}
}

func TestComputeEnforcesMinimumCharge(t *testing.T) {
	lines := []CartLine{
		{ProductID: "gum", Name: "Gum", UnitPrice: 30, Quantity: decimal.NewFromInt(1), UnitKind: enums.UnitKindEach},
	}
	_, err := newTestEngine(t).Compute(Input{Lines: lines, Quote: bandQuote(1), UseCredit: true})
	if !pkgerrors.IsCode(err, pkgerrors.CodeAmountTooLow) {
		t.Fatalf("expected AMOUNT_TOO_LOW, got %v", err)
	}
}

func TestComputeWithoutPricedQuoteChargesNoFee(t *testing.T) {
	got, err := newTestEngine(t).Compute(Input{
		Lines: twelveFiftyCart(),
		Quote: delivery.Unavailable(delivery.ReasonUpstreamUnavailable),
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.DeliveryFee != 0 || got.DeliveryDiscount != DiscountNone || got.Total != 1250 {
		t.Fatalf("unexpected breakdown %+v", got)
	}
}

func TestNewEngineValidatesRate(t *testing.T) {
	if _, err := NewEngine(config.PricingConfig{StudentRate: decimal.RequireFromString("1.2")}); err == nil {
		t.Fatal("expected rate above one to fail")
	}
	if _, err := NewEngine(config.PricingConfig{StudentRate: decimal.Zero}); err == nil {
		t.Fatal("expected zero rate to fail")
	}
}
