// Package dbtest opens throwaway SQLite databases that mirror the Postgres
// schema closely enough for repository tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  phone TEXT NOT NULL,
  referral_code TEXT UNIQUE,
  free_delivery_credits INTEGER NOT NULL DEFAULT 0 CHECK (free_delivery_credits >= 0),
  referred_by TEXT,
  referred_at DATETIME,
  is_student BOOLEAN NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS referral_codes (
  code TEXT PRIMARY KEY,
  owner_customer_id TEXT NOT NULL UNIQUE,
  redeemed BOOLEAN NOT NULL DEFAULT 0,
  redeemed_by TEXT,
  redeemed_at DATETIME,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  stripe_session_id TEXT NOT NULL UNIQUE,
  customer_name TEXT NOT NULL,
  customer_phone TEXT NOT NULL,
  delivery_address TEXT NOT NULL,
  lines TEXT NOT NULL,
  items_subtotal INTEGER NOT NULL,
  base_delivery_fee INTEGER NOT NULL,
  delivery_fee INTEGER NOT NULL,
  delivery_band TEXT NOT NULL,
  distance_miles REAL NOT NULL,
  delivery_discount TEXT NOT NULL,
  total_amount INTEGER NOT NULL,
  currency TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  order_status TEXT NOT NULL,
  referral_code_used TEXT,
  referrer_id TEXT,
  is_student BOOLEAN NOT NULL DEFAULT 0,
  credit_applied BOOLEAN NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`

// Open returns an isolated in-memory database named after the test, with the
// full application schema applied. A single pooled connection keeps every
// statement on the same in-memory database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn := open(t, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return conn
}

// OpenFile returns a database file in a temp dir that several connections can
// share. Transactions begin IMMEDIATE and wait on the busy timeout, so
// concurrent writers queue instead of failing.
func OpenFile(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "justcook.db")
	conn := open(t, fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL", path))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	return conn
}

func open(t *testing.T, dsn string) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
