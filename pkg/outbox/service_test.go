package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
)

func TestEmitWrapsPayloadInEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), logger.Nop())

	poID := uuid.New()
	actor := &outbox.ActorRef{UserID: uuid.New(), Role: string(enums.ActorRoleSupplier)}
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseOrderCreated,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   poID,
			Actor:         actor,
			Data: payloads.PurchaseOrderCreatedEvent{
				PurchaseOrderID: poID,
				AmountOwedMinor: 420000,
			},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, poID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal([]byte(rows[0].Payload), &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)

	var data payloads.PurchaseOrderCreatedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, int64(420000), data.AmountOwedMinor)
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), logger.Nop())

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventType("bogus"),
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
		})
	})
	require.Error(t, err)

	err = svc.Emit(context.Background(), nil, outbox.DomainEvent{})
	require.Error(t, err)
}

func TestEmitIfNotExistsSkipsDuplicates(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), logger.Nop())

	orderID := uuid.New()
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          payloads.OrderPaidEvent{OrderID: orderID},
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)

	base := time.Now().UTC().Add(-time.Minute)
	first := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		CreatedAt:     base,
	}
	second := first
	second.ID = uuid.New()
	second.CreatedAt = base.Add(time.Second)
	exhausted := first
	exhausted.ID = uuid.New()
	exhausted.AttemptCount = 3
	exhausted.CreatedAt = base.Add(2 * time.Second)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		for _, row := range []models.OutboxEvent{first, second, exhausted} {
			if err := repo.Insert(tx, row); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, first.ID, rows[0].ID)
		assert.Equal(t, second.ID, rows[1].ID)

		require.NoError(t, repo.MarkPublishedTx(tx, first.ID))
		require.NoError(t, repo.MarkFailedTx(tx, second.ID, errors.New("broker down")))
		return nil
	}))

	var reloaded models.OutboxEvent
	require.NoError(t, conn.First(&reloaded, "id = ?", second.ID).Error)
	assert.Equal(t, 1, reloaded.AttemptCount)
	require.NotNil(t, reloaded.LastError)
	assert.Equal(t, "broker down", *reloaded.LastError)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return repo.MarkTerminalTx(tx, second.ID, errors.New("gave up"), 3)
	}))
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		assert.Empty(t, rows)
		return nil
	}))
}

func TestDeletePublishedBeforeKeepsPendingRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)

	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)
	rows := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &old},
		{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &recent},
		{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: old},
	}
	require.NoError(t, conn.Create(&rows).Error)

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(tx, now.Add(-30*24*time.Hour))
		return err
	}))
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

func TestDLQRepositoryTruncatesAndPurges(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(conn)
	now := time.Now().UTC()

	// 1023 ASCII bytes then a two-byte rune straddling the limit
	msg := strings.Repeat("x", 1023) + "é" + strings.Repeat("y", 1000)
	insert := func(failedAt time.Time) uuid.UUID {
		id := uuid.New()
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return dlq.InsertTx(tx, models.OutboxDLQ{
				EventID:       id,
				EventType:     enums.EventRefundClosed,
				AggregateType: enums.AggregateRefund,
				AggregateID:   uuid.New(),
				Payload:       []byte(`{}`),
				ErrorReason:   enums.OutboxDLQReasonNonRetryable,
				ErrorMessage:  &msg,
				FailedAt:      failedAt,
			})
		}))
		return id
	}
	old := insert(now.Add(-100 * 24 * time.Hour))
	recent := insert(now)

	var stored models.OutboxDLQ
	require.NoError(t, conn.Where("event_id = ?", recent).First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, strings.Repeat("x", 1023), *stored.ErrorMessage)

	var purged int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) (err error) {
		purged, err = dlq.DeleteFailedBefore(tx, now.Add(-90*24*time.Hour))
		return err
	}))
	assert.Equal(t, int64(1), purged)

	var remaining []models.OutboxDLQ
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent, remaining[0].EventID)
	assert.NotEqual(t, old, remaining[0].EventID)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{EventID: uuid.New(), ErrorReason: "gave_up"})
	})
	assert.Error(t, err)
}
