package cart

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/internal/pricing"
)

// Cart is a customer's session-scoped basket.
type Cart struct {
	CustomerID uuid.UUID          `json:"customerId"`
	Lines      []pricing.CartLine `json:"lines"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// Store persists carts by customer. Load returns an empty cart when none
// is stored or the stored one has expired.
type Store interface {
	Load(ctx context.Context, customerID uuid.UUID) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
	Delete(ctx context.Context, customerID uuid.UUID) error
}

func emptyCart(customerID uuid.UUID) *Cart {
	return &Cart{CustomerID: customerID, Lines: []pricing.CartLine{}}
}
