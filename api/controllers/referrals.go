package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/api/responses"
	"github.com/justcook/justcook-backend/api/validators"
	"github.com/justcook/justcook-backend/internal/referrals"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/logger"
)

type referralValidator interface {
	Validate(ctx context.Context, code string, customerID uuid.UUID) (*referrals.Validation, error)
}

type validateReferralRequest struct {
	Code       string    `json:"code" validate:"required,max=32"`
	CustomerID uuid.UUID `json:"customerId" validate:"required"`
}

type validateReferralResponse struct {
	Valid   bool           `json:"valid"`
	Code    string         `json:"code,omitempty"`
	OwnerID *uuid.UUID     `json:"ownerId,omitempty"`
	Reason  pkgerrors.Code `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ValidateReferral answers whether a code can be applied at checkout. Business
// rejections are a normal 200 verdict so the storefront can show the reason.
func ValidateReferral(svc referralValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateReferralRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Validate(r.Context(), req.Code, req.CustomerID)
		if err != nil {
			typed := pkgerrors.As(err)
			if typed == nil || !isReferralRejection(typed.Code()) {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, validateReferralResponse{Reason: typed.Code(), Message: typed.Message()})
			return
		}

		owner := result.OwnerID
		responses.WriteSuccess(w, validateReferralResponse{Valid: true, Code: result.Code, OwnerID: &owner})
	}
}

func isReferralRejection(code pkgerrors.Code) bool {
	switch code {
	case pkgerrors.CodeInvalidReferral, pkgerrors.CodeSelfReferral, pkgerrors.CodeReferralUsed:
		return true
	}
	return false
}
