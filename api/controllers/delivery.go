package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/api/responses"
	"github.com/justcook/justcook-backend/api/validators"
	"github.com/justcook/justcook-backend/internal/checkout"
	"github.com/justcook/justcook-backend/internal/delivery"
	"github.com/justcook/justcook-backend/internal/pricing"
	"github.com/justcook/justcook-backend/pkg/logger"
)

type deliveryQuoteRequest struct {
	Address    string             `json:"address" validate:"required,max=300"`
	CustomerID *uuid.UUID         `json:"customerId,omitempty"`
	Lines      []pricing.CartLine `json:"lines,omitempty" validate:"omitempty,max=200,dive"`
}

type deliveryQuoteResponse struct {
	Quote   delivery.Quote     `json:"quote"`
	Preview *pricing.Breakdown `json:"preview,omitempty"`
}

// DeliveryQuote resolves the delivery band for an address. When cart lines
// are supplied and the quote is priced it also returns a pricing preview,
// using the customer's student status and credit when a customer is named.
func DeliveryQuote(resolver delivery.QuoteResolver, engine *pricing.Engine, loader checkout.CustomerLoader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deliveryQuoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote := resolver.Resolve(r.Context(), req.Address)
		resp := deliveryQuoteResponse{Quote: quote}
		if len(req.Lines) == 0 || !quote.IsPriced() || engine == nil {
			responses.WriteSuccess(w, resp)
			return
		}

		input := pricing.Input{Lines: req.Lines, Quote: quote}
		if req.CustomerID != nil && loader != nil {
			customer, err := loader.Get(r.Context(), *req.CustomerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.IsStudent = customer.IsStudent
			input.UseCredit = customer.FreeDeliveryCredits > 0
		}
		breakdown, err := engine.Compute(input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp.Preview = &breakdown
		responses.WriteSuccess(w, resp)
	}
}
