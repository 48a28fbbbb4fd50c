package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"
)

const cartBucket = "carts"

// BoltStore keeps carts in a single-file embedded database for single-node
// deployments.
type BoltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

func OpenBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cart store dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cart store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cartBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cart bucket: %w", err)
	}
	return &BoltStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load(_ context.Context, customerID uuid.UUID) (*Cart, error) {
	var (
		c     Cart
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(cartBucket)).Get([]byte(customerID.String()))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &c)
	})
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if !found || s.expired(c) {
		return emptyCart(customerID), nil
	}
	if c.Lines == nil {
		c.Lines = emptyCart(customerID).Lines
	}
	return &c, nil
}

func (s *BoltStore) Save(_ context.Context, c *Cart) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(cartBucket)).Put([]byte(c.CustomerID.String()), payload)
	})
}

func (s *BoltStore) Delete(_ context.Context, customerID uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(cartBucket)).Delete([]byte(customerID.String()))
	})
}

func (s *BoltStore) expired(c Cart) bool {
	return s.ttl > 0 && !c.UpdatedAt.IsZero() && s.now().Sub(c.UpdatedAt) > s.ttl
}
