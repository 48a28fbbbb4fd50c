package migrate

import (
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	files, err := ValidateFS(Embedded())
	if err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
	want := []string{"create_customers", "create_referral_codes", "create_orders", "create_outbox_events"}
	if len(files) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(files))
	}
	for i, f := range files {
		if f.Name != want[i] {
			t.Fatalf("migration %d: expected %s, got %s", i, want[i], f.Name)
		}
	}
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CONSTRAINT orders_stripe_session_id_key UNIQUE (stripe_session_id)",
		"'PENDING_PAYMENT', 'PAID', 'PREPARING', 'DISPATCHED', 'COMPLETED'",
		"DROP TABLE IF EXISTS orders",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCustomerAndReferralMigrationsGuardInvariants(t *testing.T) {
	customers := readMigration(t, "*_create_customers.sql")
	for _, sub := range []string{
		"referral_code text UNIQUE",
		"CHECK (free_delivery_credits >= 0)",
		"CHECK (referred_by IS NULL OR referred_by <> id)",
	} {
		if !strings.Contains(customers, sub) {
			t.Errorf("customers migration missing %q", sub)
		}
	}

	codes := readMigration(t, "*_create_referral_codes.sql")
	if !strings.Contains(codes, "owner_customer_id uuid NOT NULL UNIQUE") {
		t.Error("referral codes must be unique per owner")
	}
}

func TestCreateSQLMigrationKeepsVersionsMonotonic(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

	first, err := createAt(dir, "Add Delivery Notes!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(first, "20260401093000_add_delivery_notes.sql") {
		t.Fatalf("unexpected filename %q", first)
	}
	second, err := createAt(dir, "index orders by band", now)
	if err != nil {
		t.Fatalf("create second migration: %v", err)
	}
	if !strings.HasSuffix(second, "20260401093001_index_orders_by_band.sql") {
		t.Fatalf("expected bumped version, got %q", second)
	}

	files, err := ValidateFS(os.DirFS(dir))
	if err != nil {
		t.Fatalf("generated migrations should validate: %v", err)
	}
	if len(files) != 2 || files[0].Version >= files[1].Version {
		t.Fatalf("unexpected order %+v", files)
	}
}

func TestValidateRejectsDownBeforeUp(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x();\n"
	if err := os.WriteFile(dir+"/20260101000000_bad.sql", []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected Down-before-Up to be rejected")
	}
	if _, err := createAt(t.TempDir(), "!!!", time.Now()); err == nil {
		t.Fatalf("expected empty sanitized name to fail")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := fs.Glob(Embedded(), pattern)
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := fs.ReadFile(Embedded(), matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
