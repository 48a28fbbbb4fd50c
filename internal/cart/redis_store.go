package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/justcook/justcook-backend/pkg/redis"
)

// KV is the subset of the redis client the cart store needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(customerID string) string
}

type redisStore struct {
	kv  KV
	ttl time.Duration
}

// NewRedisStore keeps each cart as one JSON value with a sliding TTL.
func NewRedisStore(kv KV, ttl time.Duration) Store {
	return &redisStore{kv: kv, ttl: ttl}
}

func (s *redisStore) Load(ctx context.Context, customerID uuid.UUID) (*Cart, error) {
	raw, err := s.kv.Get(ctx, s.kv.CartKey(customerID.String()))
	if err != nil {
		if redis.IsNil(err) {
			return emptyCart(customerID), nil
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if c.Lines == nil {
		c.Lines = emptyCart(customerID).Lines
	}
	return &c, nil
}

func (s *redisStore) Save(ctx context.Context, c *Cart) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return s.kv.Set(ctx, s.kv.CartKey(c.CustomerID.String()), string(payload), s.ttl)
}

func (s *redisStore) Delete(ctx context.Context, customerID uuid.UUID) error {
	return s.kv.Del(ctx, s.kv.CartKey(customerID.String()))
}
