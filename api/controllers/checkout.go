package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/api/responses"
	"github.com/justcook/justcook-backend/api/validators"
	"github.com/justcook/justcook-backend/internal/cart"
	"github.com/justcook/justcook-backend/internal/checkout"
	"github.com/justcook/justcook-backend/internal/pricing"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/logger"
)

type checkoutService interface {
	CreateSession(ctx context.Context, req checkout.Request) (*checkout.Session, error)
}

type cartReader interface {
	Get(ctx context.Context, customerID uuid.UUID) (*cart.Cart, error)
}

type checkoutRequest struct {
	CustomerID      uuid.UUID          `json:"customerId" validate:"required"`
	CustomerName    string             `json:"customerName" validate:"max=200"`
	Phone           string             `json:"phone" validate:"required,max=32"`
	DeliveryAddress string             `json:"deliveryAddress" validate:"required,max=300"`
	Lines           []pricing.CartLine `json:"lines,omitempty" validate:"omitempty,max=200,dive"`
	IsStudent       bool               `json:"isStudent"`
	ReferralCode    string             `json:"referralCode" validate:"max=32"`
}

// Checkout opens a payment session. Lines default to the stored session cart
// when the request omits them.
func Checkout(svc checkoutService, carts cartReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := req.Lines
		if len(lines) == 0 && carts != nil {
			stored, err := carts.Get(r.Context(), req.CustomerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			lines = stored.Lines
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithCustomerID(ctx, req.CustomerID.String())
		}
		session, err := svc.CreateSession(ctx, checkout.Request{
			CustomerID:      req.CustomerID,
			CustomerName:    validators.SanitizeString(req.CustomerName, maxCustomerNameLen),
			Phone:           req.Phone,
			DeliveryAddress: req.DeliveryAddress,
			Lines:           lines,
			IsStudent:       req.IsStudent,
			ReferralCode:    req.ReferralCode,
			IdempotencyKey:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if session == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout session missing"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}
