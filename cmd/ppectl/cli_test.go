package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppetrack/ppetrack-backend/internal/catalog"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
)

type cliFixture struct {
	app    *app
	client *db.Client
	gloves *models.Item
	alice  *models.CatalogEntry
	press  *models.CatalogEntry
	acme   *models.CatalogEntry
	worker *models.UserAccount
	boss   *models.UserAccount
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	client, err := db.OpenSQLite("file:ppectl_" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(client.DB()))
	t.Cleanup(func() { _ = client.Close() })

	conn := client.DB()
	f := &cliFixture{client: client}
	f.gloves = &models.Item{Name: "Gloves", NameKey: "gloves", Category: "Hand", Location1Qty: 10, Location2Qty: 5, LowStockThreshold: 3}
	require.NoError(t, inventory.NewRepository(conn).CreateTx(conn, f.gloves))

	entries := catalog.NewRepository(conn)
	seed := func(kind enums.CatalogKind, name string) *models.CatalogEntry {
		entry := &models.CatalogEntry{Name: name, NameKey: catalog.NameKey(name)}
		require.NoError(t, entries.CreateTx(conn, kind, entry))
		return entry
	}
	f.alice = seed(enums.CatalogEmployees, "Alice")
	f.press = seed(enums.CatalogMachines, "Press 1")
	f.acme = seed(enums.CatalogSuppliers, "Acme")

	f.worker = &models.UserAccount{UID: uuid.New(), Email: "worker@example.com", Role: enums.RoleUser}
	f.boss = &models.UserAccount{UID: uuid.New(), Email: "boss@example.com", Role: enums.RoleAdmin}
	require.NoError(t, conn.Create(f.worker).Error)
	require.NoError(t, conn.Create(f.boss).Error)

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f.app, err = newApp(client, &config.Config{}, logg)
	require.NoError(t, err)
	return f
}

func (f *cliFixture) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), f.app, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (f *cliFixture) stock(t *testing.T) *models.Item {
	t.Helper()
	item, err := inventory.NewRepository(f.client.DB()).FindByID(context.Background(), f.gloves.ID)
	require.NoError(t, err)
	return item
}

func TestUsageRecordGlovesScenario(t *testing.T) {
	f := newCLIFixture(t)
	usage := func(qty string) (int, string, string) {
		return f.run("-as", "worker@example.com", "usage", "record",
			"-item", f.gloves.ID.String(), "-employee", f.alice.ID.String(), "-machine", f.press.ID.String(),
			"-location", "location1", "-qty", qty)
	}

	code, out, _ := usage("4")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, `"quantity": 4`)
	assert.Equal(t, 6, f.stock(t).Location1Qty)

	code, _, errOut := usage("10")
	assert.Equal(t, exitFailed, code)
	assert.True(t, strings.HasPrefix(errOut, "INSUFFICIENT_STOCK: "), errOut)
	assert.Equal(t, 6, f.stock(t).Location1Qty)
}

func TestRestockRequiresManager(t *testing.T) {
	f := newCLIFixture(t)
	args := func(email string) []string {
		return []string{"-as", email, "restock", "apply",
			"-item", f.gloves.ID.String(), "-supplier", f.acme.ID.String(),
			"-location", "location2", "-qty", "20", "-cost", "50.00"}
	}

	code, _, errOut := f.run(args("worker@example.com")...)
	assert.Equal(t, exitFailed, code)
	assert.True(t, strings.HasPrefix(errOut, "PERMISSION_DENIED: "), errOut)
	assert.Equal(t, 5, f.stock(t).Location2Qty)

	code, _, _ = f.run(args("boss@example.com")...)
	require.Equal(t, exitOK, code)
	assert.Equal(t, 25, f.stock(t).Location2Qty)
}

func TestRoleSetAndSelfChange(t *testing.T) {
	f := newCLIFixture(t)

	code, out, _ := f.run("-as", "boss@example.com", "role", "set", "-target-uid", f.worker.UID.String(), "-role", "manager")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, `"role": "manager"`)

	code, _, errOut := f.run("-as", "boss@example.com", "role", "set", "-target-uid", f.boss.UID.String(), "-role", "user")
	assert.Equal(t, exitFailed, code)
	assert.True(t, strings.HasPrefix(errOut, "SELF_ROLE_CHANGE_FORBIDDEN: "), errOut)
}

func TestReportQueryCSV(t *testing.T) {
	f := newCLIFixture(t)
	code, _, _ := f.run("-as", "worker@example.com", "usage", "record",
		"-item", f.gloves.ID.String(), "-employee", f.alice.ID.String(), "-machine", f.press.ID.String(),
		"-location", "location2", "-qty", "2")
	require.Equal(t, exitOK, code)

	code, out, _ := f.run("-as", "worker@example.com", "report", "query", "-dimension", "employee", "-id", f.alice.ID.String(), "-format", "csv")
	require.Equal(t, exitOK, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Gloves")
}

func TestUsageErrors(t *testing.T) {
	f := newCLIFixture(t)
	cases := map[string][]string{
		"missing actor":   {"usage", "record"},
		"unknown command": {"-as", "worker@example.com", "stock", "burn"},
		"bad uuid":        {"-as", "worker@example.com", "usage", "record", "-item", "x", "-employee", "y", "-machine", "z", "-qty", "1"},
		"bad flag":        {"-as", "worker@example.com", "usage", "record", "-colour", "red"},
		"bad format":      {"-as", "worker@example.com", "report", "query", "-dimension", "item", "-id", uuid.NewString(), "-format", "xml"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			code, _, errOut := f.run(args...)
			assert.Equal(t, exitUsage, code)
			assert.Contains(t, errOut, "usage: ppectl")
		})
	}

	code, _, errOut := f.run("-as", "ghost@example.com", "role", "set", "-target-uid", uuid.NewString(), "-role", "user")
	assert.Equal(t, exitFailed, code)
	assert.True(t, strings.HasPrefix(errOut, "NOT_FOUND: "), errOut)
}
