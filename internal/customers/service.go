package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/pkg/db/models"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
)

// MinPhoneDigits is the shortest phone number accepted after normalization.
const MinPhoneDigits = 8

// Service exposes customer account operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Customer, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	SetStudent(ctx context.Context, id uuid.UUID, isStudent bool) (*models.Customer, error)
}

type CreateInput struct {
	Name  string
	Phone string
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Customer, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	phone, err := NormalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}

	customer := &models.Customer{Name: name, Phone: phone}
	if err := s.repo.Create(ctx, customer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create customer")
	}
	return customer, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	customer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, MapLookupError(err)
	}
	return customer, nil
}

func (s *service) SetStudent(ctx context.Context, id uuid.UUID, isStudent bool) (*models.Customer, error) {
	updated, err := s.repo.SetStudent(ctx, id, isStudent)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update student flag")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	return s.Get(ctx, id)
}

// NormalizePhone strips everything but digits and enforces a minimum length.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < MinPhoneDigits {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number must contain at least 8 digits").
			WithDetails(map[string]any{"field": "phone"})
	}
	return digits, nil
}

// MapLookupError turns a missing row into NOT_FOUND and anything else into
// an internal error.
func MapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer")
}
