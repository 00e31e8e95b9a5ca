package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/ppetrack/ppetrack-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestItemsMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_items"), []string{
		"CREATE TABLE IF NOT EXISTS items",
		"CHECK (location1_qty >= 0)",
		"CHECK (location2_qty >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_items_name_key ON items (name_key)",
		"DROP TABLE IF EXISTS items",
	})
}

func TestCatalogMigrationUniqueNames(t *testing.T) {
	assertContains(t, readMigration(t, "create_catalogs"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_employees_name_key",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_machines_name_key",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_suppliers_name_key",
	})
}

func TestStockEventsMigration(t *testing.T) {
	assertContains(t, readMigration(t, "create_stock_events"), []string{
		"CREATE TABLE IF NOT EXISTS usage_events",
		"CREATE TABLE IF NOT EXISTS purchase_events",
		"CHECK (quantity > 0)",
		"CHECK (total_cost >= 0)",
		"total_cost numeric(12,2) NOT NULL",
	})
}

func TestAccountsAndOutboxMigrations(t *testing.T) {
	assertContains(t, readMigration(t, "create_accounts"), []string{
		"CHECK (role IN ('user', 'manager', 'admin'))",
		"ux_user_accounts_email",
	})
	assertContains(t, readMigration(t, "create_outbox_events"), []string{
		"id BIGSERIAL PRIMARY KEY",
		"payload JSONB NOT NULL",
		"WHERE published_at IS NULL",
	})
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	fsys, err := migrate.Files("")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if err := migrate.Validate(fsys); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	onDisk, err := migrate.Files("migrations")
	if err != nil {
		t.Fatalf("Files(migrations): %v", err)
	}
	if err := migrate.Validate(onDisk); err != nil {
		t.Fatalf("Validate on disk: %v", err)
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	header := "-- +goose Up\n-- +goose Down\n"
	cases := map[string]fstest.MapFS{
		"bad name": {"oops.sql": {Data: []byte(header)}},
		"duplicate version": {
			"20250101000000_a.sql": {Data: []byte(header)},
			"20250101000000_b.sql": {Data: []byte(header)},
		},
		"missing down":      {"20250101000000_a.sql": {Data: []byte("-- +goose Up\n")}},
		"unbalanced blocks": {"20250101000000_a.sql": {Data: []byte(header + "-- +goose StatementBegin\n")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := migrate.Validate(fsys); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Item Notes!", now)
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if filepath.Base(path) != "20260501083000_add_item_notes.sql" {
		t.Fatalf("unexpected filename %q", path)
	}
	fsys, _ := migrate.Files(dir)
	if err := migrate.Validate(fsys); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add item notes", now); err == nil {
		t.Fatal("expected existing file to be refused")
	}
	if _, err := migrate.CreateSQLMigration(dir, "  !! ", now); err == nil {
		t.Fatal("expected empty name error")
	}
}
