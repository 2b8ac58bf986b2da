package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("migration validation failed: %v", err)
	}
}

func TestMigrationsCoverCoreTables(t *testing.T) {
	entries, err := os.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	var all strings.Builder
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := os.ReadFile(filepath.Join("migrations", e.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		all.Write(b)
	}

	sql := all.String()
	for _, table := range []string{
		"CREATE TABLE users",
		"CREATE TABLE categories",
		"CREATE TABLE offers",
		"CREATE TABLE orders",
		"CREATE TABLE order_items",
		"CREATE TABLE transactions",
		"CREATE TABLE audit_events",
		"CREATE TABLE outbox_events",
	} {
		if !strings.Contains(sql, table) {
			t.Fatalf("expected migrations to contain %q", table)
		}
	}

	if !strings.Contains(sql, "transactions_order_id_key") {
		t.Fatal("expected unique transaction-per-order index")
	}
	if !strings.Contains(sql, "CHECK (quantity >= 0)") {
		t.Fatal("expected non-negative quantity constraint on offers")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Something New!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	base := filepath.Base(path)
	if !strings.HasSuffix(base, "_add_something_new.sql") {
		t.Fatalf("unexpected filename %q", base)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration failed validation: %v", err)
	}
}
