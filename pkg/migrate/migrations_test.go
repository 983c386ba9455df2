package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/migrate"
)

func readMigrations(t *testing.T) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migrations found")

	var b strings.Builder
	for _, path := range matches {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String()
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Source{}))
	require.NoError(t, migrate.Validate(migrate.Source{Dir: "migrations"}))
}

func TestCreateWritesValidMigration(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, migrate.Create(dir, "Add refund reason index!"))

	matches, err := filepath.Glob(filepath.Join(dir, "*_add_refund_reason_index.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NoError(t, migrate.Validate(migrate.Source{Dir: dir}))

	require.Error(t, migrate.Create(dir, "  !!  "))
}

func TestApplyRequiresDB(t *testing.T) {
	require.Error(t, migrate.Apply(context.Background(), nil, migrate.Source{}, migrate.CommandUp, ""))
}

func TestMigrationsCreateEveryModelTable(t *testing.T) {
	content := readMigrations(t)
	cache := &sync.Map{}
	for _, model := range models.All() {
		s, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		stmt := "CREATE TABLE IF NOT EXISTS " + s.Table + " ("
		require.Contains(t, content, stmt, "missing table for %T", model)
		for _, field := range s.Fields {
			if field.DBName == "" {
				continue
			}
			require.Containsf(t, content, "  "+field.DBName+" ", "table %s missing column %s", s.Table, field.DBName)
		}
	}
}

func TestMigrationsCarryUniquenessConstraints(t *testing.T) {
	content := readMigrations(t)
	checks := []string{
		"ux_purchase_orders_order_supplier ON purchase_orders (order_id, supplier_id)",
		"ux_purchase_order_items_order_item ON purchase_order_items (order_item_id)",
		"ux_refunds_purchase_order ON refunds (purchase_order_id)",
		"ON supplier_payment_allocations (payment_id, purchase_order_id, supplier_id)",
		"ux_payments_provider_ref ON payments (provider_ref)",
		"BEFORE UPDATE OR DELETE ON supplier_ledger_entries",
	}
	for _, sub := range checks {
		require.Contains(t, content, sub)
	}
}
