package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/catalog"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

var (
	manager = access.Actor{UID: uuid.New(), Email: "m@example.com", Role: enums.RoleManager}
	worker  = access.Actor{UID: uuid.New(), Email: "w@example.com", Role: enums.RoleUser}
)

type fixture struct {
	svc    Service
	client *db.Client
	gloves *models.Item
	alice  *models.CatalogEntry
	bob    *models.CatalogEntry
	press  *models.CatalogEntry
	acme   *models.CatalogEntry
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newFixture(t *testing.T, runner func(*db.Client) txRunner) *fixture {
	t.Helper()
	client, err := db.OpenSQLite("file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(client.DB()))
	t.Cleanup(func() { _ = client.Close() })
	return seedFixture(t, client, runner)
}

// seedFixture stocks Gloves with 10 at location1 and 5 at location2 and adds
// two employees, a machine and a supplier.
func seedFixture(t *testing.T, client *db.Client, runner func(*db.Client) txRunner) *fixture {
	t.Helper()
	conn := client.DB()
	items := inventory.NewRepository(conn)
	entries := catalog.NewRepository(conn)

	f := &fixture{client: client}
	f.gloves = &models.Item{Name: "Gloves", NameKey: "gloves", Category: "Hand", Location1Qty: 10, Location2Qty: 5, LowStockThreshold: 3}
	require.NoError(t, items.CreateTx(conn, f.gloves))
	f.alice = seedEntry(t, entries, conn, enums.CatalogEmployees, "Alice")
	f.bob = seedEntry(t, entries, conn, enums.CatalogEmployees, "Bob")
	f.press = seedEntry(t, entries, conn, enums.CatalogMachines, "Press 1")
	f.acme = seedEntry(t, entries, conn, enums.CatalogSuppliers, "Acme")

	var dbRunner txRunner = client
	if runner != nil {
		dbRunner = runner(client)
	}
	clock := &stepClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Items:   items,
		Catalog: entries,
		DB:      dbRunner,
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		Config:  config.LedgerConfig{MaxRetries: 2, BaseBackoff: time.Millisecond, TxTimeout: 5 * time.Second},
		Clock:   clock.Now,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func seedEntry(t *testing.T, repo *catalog.Repository, conn *gorm.DB, kind enums.CatalogKind, name string) *models.CatalogEntry {
	t.Helper()
	entry := &models.CatalogEntry{Name: name, NameKey: catalog.NameKey(name)}
	require.NoError(t, repo.CreateTx(conn, kind, entry))
	return entry
}

func (f *fixture) item(t *testing.T) *models.Item {
	t.Helper()
	item, err := inventory.NewRepository(f.client.DB()).FindByID(context.Background(), f.gloves.ID)
	require.NoError(t, err)
	return item
}

func (f *fixture) usage(qty int, location string) RecordUsageInput {
	return RecordUsageInput{
		ItemID:     f.gloves.ID,
		EmployeeID: f.alice.ID,
		MachineID:  f.press.ID,
		Location:   location,
		Quantity:   qty,
	}
}

func TestRecordUsageGlovesScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	event, err := f.svc.RecordUsage(ctx, worker, f.usage(4, "location1"))
	require.NoError(t, err)
	assert.Equal(t, "Gloves", event.ItemName)
	assert.Equal(t, "Alice", event.EmployeeName)
	assert.Equal(t, "Press 1", event.MachineName)
	assert.Equal(t, worker.Email, event.LoggedByEmail)
	assert.Equal(t, time.UTC, event.Timestamp.Location())

	item := f.item(t)
	assert.Equal(t, 6, item.Location1Qty)
	assert.Equal(t, 5, item.Location2Qty)
	assert.Equal(t, enums.StockInStock, inventory.FromModel(item).Status)

	_, err = f.svc.RecordUsage(ctx, worker, f.usage(10, "location1"))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, map[string]any{"available": 6}, pkgerrors.As(err).Details())

	item = f.item(t)
	assert.Equal(t, 6, item.Location1Qty)

	var usageCount int64
	require.NoError(t, f.client.DB().Model(&models.UsageEvent{}).Count(&usageCount).Error)
	assert.EqualValues(t, 1, usageCount)

	var changes []models.OutboxEvent
	require.NoError(t, f.client.DB().Order("id").Find(&changes).Error)
	require.Len(t, changes, 2)
	assert.Equal(t, enums.CollectionUsageLog, changes[0].Collection)
	assert.Equal(t, enums.CollectionItems, changes[1].Collection)
	assert.Contains(t, changes[1].Payload, `"location1Qty":6`)
}

func TestRecordRestockScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	event, err := f.svc.RecordRestock(ctx, manager, RecordRestockInput{
		ItemID:     f.gloves.ID,
		SupplierID: f.acme.ID,
		Location:   "location2",
		Quantity:   20,
		TotalCost:  decimal.RequireFromString("50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "50.00", event.TotalCost)
	assert.Equal(t, "Acme", event.SupplierName)

	item := f.item(t)
	assert.Equal(t, 25, item.Location2Qty)
	assert.Equal(t, 10, item.Location1Qty)

	var purchases []models.PurchaseEvent
	require.NoError(t, f.client.DB().Find(&purchases).Error)
	require.Len(t, purchases, 1)
	assert.True(t, purchases[0].TotalCost.Equal(decimal.RequireFromString("50.00")))
}

func TestRecordRestockDeniedForUser(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.RecordRestock(context.Background(), worker, RecordRestockInput{
		ItemID:     f.gloves.ID,
		SupplierID: f.acme.ID,
		Location:   "location1",
		Quantity:   5,
		TotalCost:  decimal.Zero,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodePermissionDenied))

	item := f.item(t)
	assert.Equal(t, 10, item.Location1Qty)
	assert.Equal(t, 5, item.Location2Qty)
}

func TestConcurrentUsageNeverOverdraws(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RecordUsage(ctx, worker, f.usage(6, "location1"))
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.Is(err, pkgerrors.CodeInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 4, f.item(t).Location1Qty)
}

func TestStockMatchesLedger(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.RecordUsage(ctx, worker, f.usage(3, "loc1"))
	require.NoError(t, err)
	_, err = f.svc.RecordUsage(ctx, worker, f.usage(2, "loc2"))
	require.NoError(t, err)
	_, err = f.svc.RecordRestock(ctx, manager, RecordRestockInput{
		ItemID: f.gloves.ID, SupplierID: f.acme.ID, Location: "loc1", Quantity: 7, TotalCost: decimal.RequireFromString("12.5"),
	})
	require.NoError(t, err)

	// deleting a usage entry leaves stock as it was
	res, err := f.svc.DeleteUsageEvent(ctx, manager, first.ID)
	require.NoError(t, err)
	assert.False(t, res.StockAdjusted)

	item := f.item(t)
	assert.Equal(t, 10+7-3, item.Location1Qty)
	assert.Equal(t, 5-2, item.Location2Qty)
	assert.Equal(t, 15+7-3-2, item.TotalStock())
}

func TestValidationRunsBeforeStoreAccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := map[string]RecordUsageInput{
		"zero quantity":  f.usage(0, "location1"),
		"bad location":   f.usage(1, "dock"),
		"missing item":   {EmployeeID: f.alice.ID, MachineID: f.press.ID, Location: "location1", Quantity: 1},
		"missing worker": {ItemID: f.gloves.ID, MachineID: f.press.ID, Location: "location1", Quantity: 1},
	}
	long := f.usage(1, "location1")
	long.Notes = strings.Repeat("n", maxNotesLength+1)
	cases["notes too long"] = long

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.RecordUsage(ctx, worker, input)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := f.svc.RecordRestock(ctx, manager, RecordRestockInput{
		ItemID: f.gloves.ID, SupplierID: f.acme.ID, Location: "location1", Quantity: 1, TotalCost: decimal.RequireFromString("1.005"),
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	_, err = f.svc.RecordRestock(ctx, manager, RecordRestockInput{
		ItemID: f.gloves.ID, SupplierID: f.acme.ID, Location: "location1", Quantity: 1, TotalCost: decimal.NewFromInt(-1),
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	assert.Equal(t, 10, f.item(t).Location1Qty)
}

func TestUnknownReferencesAreNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	input := f.usage(1, "location1")
	input.MachineID = uuid.New()
	_, err := f.svc.RecordUsage(ctx, worker, input)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	assert.Equal(t, "machine not found", pkgerrors.As(err).Message())

	input = f.usage(1, "location1")
	input.ItemID = uuid.New()
	_, err = f.svc.RecordUsage(ctx, worker, input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = f.svc.RecordRestock(ctx, manager, RecordRestockInput{
		ItemID: f.gloves.ID, SupplierID: uuid.New(), Location: "location1", Quantity: 1, TotalCost: decimal.Zero,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	assert.Equal(t, 10, f.item(t).Location1Qty)
}

func TestEditUsageEventLeavesStock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	event, err := f.svc.RecordUsage(ctx, worker, f.usage(2, "location1"))
	require.NoError(t, err)

	edit := EditUsageInput{EmployeeID: f.bob.ID, Quantity: 5, Location: "location2"}
	_, err = f.svc.EditUsageEvent(ctx, worker, event.ID, edit)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodePermissionDenied))

	updated, err := f.svc.EditUsageEvent(ctx, manager, event.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, "Bob", updated.EmployeeName)
	assert.Equal(t, 5, updated.Quantity)
	assert.Equal(t, enums.Location2, updated.Location)
	assert.True(t, event.Timestamp.Equal(updated.Timestamp))

	item := f.item(t)
	assert.Equal(t, 8, item.Location1Qty)
	assert.Equal(t, 5, item.Location2Qty)

	_, err = f.svc.EditUsageEvent(ctx, manager, uuid.New(), edit)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	_, err = f.svc.DeleteUsageEvent(ctx, manager, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestListUsageNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		event, err := f.svc.RecordUsage(ctx, worker, f.usage(1, "location1"))
		require.NoError(t, err)
		ids = append(ids, event.ID)
	}

	page, err := f.svc.ListUsage(ctx, pagination.Params{Limit: 2}, LogFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].ID)
	assert.Equal(t, ids[1], page.Items[1].ID)
	require.NotEmpty(t, page.NextCursor)

	next, err := f.svc.ListUsage(ctx, pagination.Params{Limit: 2, Cursor: page.NextCursor}, LogFilter{})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, ids[0], next.Items[0].ID)
	assert.Empty(t, next.NextCursor)

	_, err = f.svc.ListUsage(ctx, pagination.Params{Cursor: "%%%"}, LogFilter{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

type flakyRunner struct {
	client   *db.Client
	failures int
	calls    int
}

func (r *flakyRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.calls++
	if r.calls <= r.failures {
		return errors.New("database is locked")
	}
	return r.client.WithTx(ctx, fn)
}

func TestLockContentionIsRetried(t *testing.T) {
	runner := &flakyRunner{failures: 2}
	f := newFixture(t, func(c *db.Client) txRunner {
		runner.client = c
		return runner
	})

	_, err := f.svc.RecordUsage(context.Background(), worker, f.usage(1, "location1"))
	require.NoError(t, err)
	assert.Equal(t, 3, runner.calls)
	assert.Equal(t, 9, f.item(t).Location1Qty)
}

func TestRetryExhaustionIsTransactionConflict(t *testing.T) {
	runner := &flakyRunner{failures: 100}
	f := newFixture(t, func(c *db.Client) txRunner {
		runner.client = c
		return runner
	})

	_, err := f.svc.RecordUsage(context.Background(), worker, f.usage(1, "location1"))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeTxConflict))
	assert.Equal(t, 3, runner.calls)
	assert.Equal(t, 10, f.item(t).Location1Qty)
}

func TestCanceledCallerDoesNotAbortTransaction(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.RecordUsage(ctx, worker, f.usage(1, "location1"))
	require.NoError(t, err)
	assert.Equal(t, 9, f.item(t).Location1Qty)
}

func TestListUsageFiltersBeforeLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conn := f.client.DB()
	repo := NewRepository(conn)

	masks := &models.Item{Name: "Masks", NameKey: "masks", Category: "Face"}
	require.NoError(t, inventory.NewRepository(conn).CreateTx(conn, masks))

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	insert := func(item *models.Item, at time.Time) *models.UsageEvent {
		event := &models.UsageEvent{
			ItemID: item.ID, ItemName: item.Name,
			EmployeeID: f.alice.ID, EmployeeName: f.alice.Name,
			MachineID: f.press.ID, MachineName: f.press.Name,
			Location: enums.Location1, Quantity: 1,
			LoggedBy: worker.UID, LoggedByEmail: worker.Email, Timestamp: at,
		}
		require.NoError(t, repo.InsertUsageTx(conn, event))
		return event
	}
	oldest := insert(f.gloves, base)
	for i := 1; i <= 5; i++ {
		insert(masks, base.Add(time.Duration(i)*time.Hour))
	}

	page, err := f.svc.ListUsage(ctx, pagination.Params{Limit: 2}, LogFilter{Field: "itemId", Value: f.gloves.ID.String()})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, oldest.ID, page.Items[0].ID)

	page, err = f.svc.ListUsage(ctx, pagination.Params{Limit: 10}, LogFilter{Field: "itemName", Value: "MASKS"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)

	from, to := base.Add(2*time.Hour), base.Add(4*time.Hour)
	page, err = f.svc.ListUsage(ctx, pagination.Params{Limit: 10}, LogFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	page, err = f.svc.ListUsage(ctx, pagination.Params{Limit: 10}, LogFilter{Field: "itemId", Value: "not-a-uuid"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = f.svc.ListUsage(ctx, pagination.Params{Limit: 10}, LogFilter{Field: "itemId"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestQuantityAboveColumnRangeIsValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordRestock(ctx, manager, RecordRestockInput{
		ItemID: f.gloves.ID, SupplierID: f.acme.ID, Location: "location2", Quantity: math.MaxInt64, TotalCost: decimal.Zero,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)

	// fits on its own but not on top of the 5 already at location2
	_, err = f.svc.RecordRestock(ctx, manager, RecordRestockInput{
		ItemID: f.gloves.ID, SupplierID: f.acme.ID, Location: "location2", Quantity: inventory.MaxQuantity - 1, TotalCost: decimal.Zero,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = f.svc.RecordUsage(ctx, worker, f.usage(inventory.MaxQuantity+1, "location1"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	event, err := f.svc.RecordUsage(ctx, worker, f.usage(1, "location1"))
	require.NoError(t, err)
	_, err = f.svc.EditUsageEvent(ctx, manager, event.ID, EditUsageInput{EmployeeID: f.alice.ID, Location: "location1", Quantity: math.MaxInt64})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	item := f.item(t)
	assert.Equal(t, 9, item.Location1Qty)
	assert.Equal(t, 5, item.Location2Qty)
}

// stockThief drains location1 of the Gloves row just before the first
// item update, inside the same transaction.
func stockThief(t *testing.T, f *fixture) {
	t.Helper()
	armed := true
	err := f.client.DB().Callback().Update().Before("gorm:update").Register("test:drain_stock", func(tx *gorm.DB) {
		if !armed || tx.Statement.Table != "items" {
			return
		}
		armed = false
		drain := tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE items SET location1_qty = 0 WHERE id = ?", f.gloves.ID)
		require.NoError(t, drain.Error)
	})
	require.NoError(t, err)
}

func TestGuardedDecrementRereadsStock(t *testing.T) {
	f := newFixture(t, nil)
	stockThief(t, f)

	_, err := f.svc.RecordUsage(context.Background(), worker, f.usage(6, "location1"))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	assert.Equal(t, map[string]any{"available": 0}, pkgerrors.As(err).Details())

	var usageCount int64
	require.NoError(t, f.client.DB().Model(&models.UsageEvent{}).Count(&usageCount).Error)
	assert.Zero(t, usageCount)
	assert.Equal(t, 10, f.item(t).Location1Qty, "transaction rolled back")
}

func TestRestockOfVanishedItemIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	armed := true
	err := f.client.DB().Callback().Update().Before("gorm:update").Register("test:drop_item", func(tx *gorm.DB) {
		if !armed || tx.Statement.Table != "items" {
			return
		}
		armed = false
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).
			Exec("DELETE FROM items WHERE id = ?", f.gloves.ID).Error)
	})
	require.NoError(t, err)

	_, err = f.svc.RecordRestock(context.Background(), manager, RecordRestockInput{
		ItemID: f.gloves.ID, SupplierID: f.acme.ID, Location: "location1", Quantity: 3, TotalCost: decimal.Zero,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)

	var purchases int64
	require.NoError(t, f.client.DB().Model(&models.PurchaseEvent{}).Count(&purchases).Error)
	assert.Zero(t, purchases)
}

func TestHistoryKeepsNamesOfDeletedCatalogEntries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordUsage(ctx, worker, f.usage(2, "location1"))
	require.NoError(t, err)
	_, err = f.svc.RecordRestock(ctx, manager, RecordRestockInput{
		ItemID: f.gloves.ID, SupplierID: f.acme.ID, Location: "location1", Quantity: 4, TotalCost: decimal.RequireFromString("8"),
	})
	require.NoError(t, err)

	conn := f.client.DB()
	entries, err := catalog.NewService(catalog.NewRepository(conn), f.client, outbox.NewService(outbox.NewRepository(conn), nil), nil)
	require.NoError(t, err)
	require.NoError(t, entries.Delete(ctx, manager, enums.CatalogEmployees, f.alice.ID))
	require.NoError(t, entries.Delete(ctx, manager, enums.CatalogMachines, f.press.ID))
	require.NoError(t, entries.Delete(ctx, manager, enums.CatalogSuppliers, f.acme.ID))

	usage, err := f.svc.ListUsage(ctx, pagination.Params{}, LogFilter{})
	require.NoError(t, err)
	require.Len(t, usage.Items, 1)
	assert.Equal(t, f.alice.ID, usage.Items[0].EmployeeID)
	assert.Equal(t, "Alice", usage.Items[0].EmployeeName)
	assert.Equal(t, "Press 1", usage.Items[0].MachineName)

	purchases, err := f.svc.ListPurchases(ctx, pagination.Params{}, LogFilter{Field: "supplierName", Value: "acme"})
	require.NoError(t, err)
	require.Len(t, purchases.Items, 1)
	assert.Equal(t, "Acme", purchases.Items[0].SupplierName)
}
