package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justcook/justcook-backend/pkg/redis"
)

const (
	markerProcessing = "processing"
	markerDone       = "done"

	// A crashed attempt holds its claim no longer than this.
	defaultProcessingTTL = 2 * time.Minute
)

// ClaimState is what the guard knows about an event id.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the event and must Complete or Release it.
	ClaimAcquired ClaimState = iota
	// ClaimInFlight means another attempt is still handling the event.
	ClaimInFlight
	// ClaimDone means the event was handled successfully.
	ClaimDone
)

// GuardStore is the Redis surface the guard needs.
type GuardStore interface {
	redis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// IdempotencyGuard is the Redis fast path in front of the order commit. The
// database unique key on the session id stays the source of truth.
type IdempotencyGuard struct {
	store         GuardStore
	ttl           time.Duration
	processingTTL time.Duration
	scope         string
}

func NewIdempotencyGuard(store GuardStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	processingTTL := defaultProcessingTTL
	if ttl < processingTTL {
		processingTTL = ttl
	}
	return &IdempotencyGuard{store: store, ttl: ttl, processingTTL: processingTTL, scope: scope}, nil
}

// Claim marks eventID as in flight unless it is already in flight or done.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (ClaimState, error) {
	if eventID == "" {
		return ClaimInFlight, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	claimed, err := g.store.SetNX(ctx, key, markerProcessing, g.processingTTL)
	if err != nil {
		return ClaimInFlight, fmt.Errorf("claim webhook event: %w", err)
	}
	if claimed {
		return ClaimAcquired, nil
	}

	marker, err := g.store.Get(ctx, key)
	if err != nil && !redis.IsNil(err) {
		return ClaimInFlight, fmt.Errorf("read webhook event marker: %w", err)
	}
	if marker == markerDone {
		return ClaimDone, nil
	}
	// A marker released between SetNX and Get is also reported as in flight;
	// the provider retries and the next attempt claims it.
	return ClaimInFlight, nil
}

// Complete records eventID as handled for the full ttl.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Set(ctx, g.store.IdempotencyKey(g.scope, eventID), markerDone, g.ttl)
}

// Release forgets eventID so a redelivery is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
