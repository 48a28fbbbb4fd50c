package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/api/responses"
	"github.com/justcook/justcook-backend/api/validators"
	"github.com/justcook/justcook-backend/internal/customers"
	"github.com/justcook/justcook-backend/internal/referrals"
	"github.com/justcook/justcook-backend/pkg/db/models"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/logger"
)

const maxCustomerNameLen = 120

type createCustomerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"required,max=32"`
}

type setStudentRequest struct {
	IsStudent *bool `json:"isStudent" validate:"required"`
}

type customerView struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Phone               string    `json:"phone"`
	ReferralCode        *string   `json:"referralCode,omitempty"`
	FreeDeliveryCredits int       `json:"freeDeliveryCredits"`
	IsStudent           bool      `json:"isStudent"`
	Referred            bool      `json:"referred"`
}

func toCustomerView(c *models.Customer) customerView {
	return customerView{
		ID:                  c.ID,
		Name:                c.Name,
		Phone:               c.Phone,
		ReferralCode:        c.ReferralCode,
		FreeDeliveryCredits: c.FreeDeliveryCredits,
		IsStudent:           c.IsStudent,
		Referred:            c.ReferredBy != nil,
	}
}

type rewardsService interface {
	Summary(ctx context.Context, customerID uuid.UUID) (*referrals.Summary, error)
}

func CreateCustomer(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCustomerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customer, err := svc.Create(r.Context(), customers.CreateInput{
			Name:  validators.SanitizeString(req.Name, maxCustomerNameLen),
			Phone: req.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toCustomerView(customer))
	}
}

func GetCustomer(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customer, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toCustomerView(customer))
	}
}

// CustomerRewards issues the customer's referral code on first visit and
// returns their credit balance.
func CustomerRewards(svc rewardsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func AdminSetStudent(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req setStudentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.IsStudent == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "isStudent is required"))
			return
		}
		customer, err := svc.SetStudent(r.Context(), id, *req.IsStudent)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"customer_id": id.String(),
				"is_student":  customer.IsStudent,
			}), "customer.student_flag_set")
		}
		responses.WriteSuccess(w, toCustomerView(customer))
	}
}
