package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/internal/pricing"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
)

// Service exposes cart operations.
type Service interface {
	Get(ctx context.Context, customerID uuid.UUID) (*Cart, error)
	Add(ctx context.Context, customerID uuid.UUID, line pricing.CartLine) (*Cart, error)
	Remove(ctx context.Context, customerID uuid.UUID, productID string) (*Cart, error)
	Clear(ctx context.Context, customerID uuid.UUID) error
}

type service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	return &service{store: store, now: time.Now}, nil
}

func (s *service) Get(ctx context.Context, customerID uuid.UUID) (*Cart, error) {
	c, err := s.store.Load(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return c, nil
}

// Add appends the line, or merges its quantity into an existing line for the
// same product. Name and price are refreshed from the incoming line.
func (s *service) Add(ctx context.Context, customerID uuid.UUID, line pricing.CartLine) (*Cart, error) {
	line.ProductID = strings.TrimSpace(line.ProductID)
	if err := line.Validate(); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error()).
			WithDetails(map[string]any{"productId": line.ProductID})
	}

	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	merged := false
	for i, existing := range c.Lines {
		if existing.ProductID != line.ProductID {
			continue
		}
		if existing.UnitKind != line.UnitKind {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit kind does not match the line already in the cart").
				WithDetails(map[string]any{"productId": line.ProductID})
		}
		line.Quantity = existing.Quantity.Add(line.Quantity)
		c.Lines[i] = line
		merged = true
		break
	}
	if !merged {
		c.Lines = append(c.Lines, line)
	}
	return s.save(ctx, c)
}

func (s *service) Remove(ctx context.Context, customerID uuid.UUID, productID string) (*Cart, error) {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	kept := c.Lines[:0]
	for _, line := range c.Lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}
	c.Lines = kept
	return s.save(ctx, c)
}

func (s *service) Clear(ctx context.Context, customerID uuid.UUID) error {
	if err := s.store.Delete(ctx, customerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) save(ctx context.Context, c *Cart) (*Cart, error) {
	c.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, c); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return c, nil
}
