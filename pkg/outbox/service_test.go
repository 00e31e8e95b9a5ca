package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

func openTestDB(t *testing.T) *db.Client {
	t.Helper()
	client, err := db.OpenSQLite("file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(client.DB()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEmitStoresRowsInTransaction(t *testing.T) {
	client := openTestDB(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	ctx := context.Background()
	itemID := uuid.New()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			Collection: enums.CollectionItems,
			Op:         enums.ChangeUpsert,
			RecordID:   itemID,
			Data:       map[string]any{"name": "Gloves"},
		}); err != nil {
			return err
		}
		return svc.Emit(ctx, tx, DomainEvent{
			Collection: enums.CollectionItems,
			Op:         enums.ChangeDelete,
			RecordID:   itemID,
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublishedForPublish(client.DB(), 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Less(t, rows[0].ID, rows[1].ID)
	assert.JSONEq(t, `{"name":"Gloves"}`, rows[0].Payload)
	assert.Equal(t, enums.ChangeDelete, rows[1].Op)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	client := openTestDB(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			Collection: enums.CollectionUsageLog,
			Op:         enums.ChangeUpsert,
			RecordID:   uuid.New(),
			Data:       map[string]any{"quantity": 2},
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	rows, err := repo.FetchUnpublishedForPublish(client.DB(), 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitValidatesInput(t *testing.T) {
	client := openTestDB(t)
	svc := NewService(NewRepository(client.DB()), nil)
	ctx := context.Background()

	assert.Error(t, svc.Emit(ctx, nil, DomainEvent{}))
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		assert.Error(t, svc.Emit(ctx, tx, DomainEvent{Collection: "bogus", RecordID: uuid.New()}))
		assert.Error(t, svc.Emit(ctx, tx, DomainEvent{Collection: enums.CollectionItems, Op: enums.ChangeUpsert}))
		assert.Error(t, svc.Emit(ctx, tx, DomainEvent{Collection: enums.CollectionItems, Op: enums.ChangeUpsert, RecordID: uuid.New()}))
		return nil
	})
	require.NoError(t, err)
}

func TestRepositoryMarksAndPrunes(t *testing.T) {
	client := openTestDB(t)
	repo := NewRepository(client.DB())
	conn := client.DB()

	first := &models.OutboxEvent{Collection: enums.CollectionItems, Op: enums.ChangeUpsert, RecordID: uuid.New(), Payload: "{}"}
	second := &models.OutboxEvent{Collection: enums.CollectionItems, Op: enums.ChangeUpsert, RecordID: uuid.New(), Payload: "{}"}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	require.NoError(t, repo.MarkPublishedTx(conn, first.ID))
	require.NoError(t, repo.MarkTerminalTx(conn, second.ID, errors.New("gone"), 3))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)

	pruned, err := repo.PruneDelivered(conn, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)
}

func TestRedisSinkPublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	sink, err := NewRedisSink(pub, "ppe:channel:changes")
	require.NoError(t, err)

	require.NoError(t, sink.Deliver(context.Background(), Change{Seq: 4, Collection: enums.CollectionItems, Op: enums.ChangeDelete, ID: "abc"}))
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "ppe:channel:changes", pub.channel)
	assert.JSONEq(t, `{"seq":4,"collection":"items","op":"delete","id":"abc","occurredAt":"0001-01-01T00:00:00Z"}`, string(pub.payloads[0]))

	_, err = NewRedisSink(nil, "x")
	assert.Error(t, err)
}

type recordingPublisher struct {
	channel  string
	payloads [][]byte
}

func (r *recordingPublisher) Publish(_ context.Context, channel string, payload any) error {
	r.channel = channel
	r.payloads = append(r.payloads, payload.([]byte))
	return nil
}
