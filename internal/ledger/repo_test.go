package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

func TestRepositoryTotalsAndBalance(t *testing.T) {
	client, conn := dbtest.Client(t)
	ctx := context.Background()
	supplierID := uuid.New()
	otherSupplier := uuid.New()

	allocations := []models.SupplierPaymentAllocation{
		{PaymentID: uuid.New(), PurchaseOrderID: uuid.New(), SupplierID: supplierID, AmountMinor: 1000, Status: enums.AllocationStatusPaid},
		{PaymentID: uuid.New(), PurchaseOrderID: uuid.New(), SupplierID: supplierID, AmountMinor: 500, Status: enums.AllocationStatusPending},
		{PaymentID: uuid.New(), PurchaseOrderID: uuid.New(), SupplierID: otherSupplier, AmountMinor: 9000, Status: enums.AllocationStatusPaid},
	}
	require.NoError(t, conn.Create(&allocations).Error)

	repo := NewRepository(conn)
	svc, err := NewService(repo, client, outbox.NewService(outbox.NewRepository(conn), logger.Nop()), nil, logger.Nop())
	require.NoError(t, err)

	refundID := uuid.New()
	admin := adminActor()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := svc.RecordEntry(ctx, tx, EntryInput{
			SupplierID:  supplierID,
			Type:        enums.LedgerEntryTypeRefundDebit,
			AmountMinor: 200,
			RefundID:    &refundID,
			Actor:       admin,
		})
		return err
	}))

	balance, err := svc.Balance(ctx, supplierID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.CreditsMinor)
	assert.Equal(t, int64(200), balance.DebitsMinor)
	assert.Equal(t, int64(800), balance.NetMinor)
	assert.Equal(t, int64(800), balance.AvailableBalanceMinor)
	assert.Equal(t, int64(0), balance.OutstandingDebtMinor)
	assert.Equal(t, int64(500), balance.Allocations.PendingMinor)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventLedgerEntryRecorded).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := svc.RecordEntry(ctx, tx, EntryInput{
			SupplierID:  supplierID,
			Type:        enums.LedgerEntryTypeRefundDebit,
			AmountMinor: 200,
			RefundID:    &refundID,
			Actor:       admin,
		})
		return err
	})
	require.Error(t, err)
	assert.Equal(t, "ledger_entry_exists", pkgerrors.ReasonOf(err))
}

func TestRepositoryListPaginates(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	supplierID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		entry := models.SupplierLedgerEntry{
			SupplierID:  supplierID,
			Type:        enums.LedgerEntryTypeAdjustmentCredit,
			AmountMinor: int64(100 * (i + 1)),
			CreatedBy:   uuid.New(),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, conn.Create(&entry).Error)
	}

	repo := NewRepository(conn)
	svc, err := NewService(repo, dbtestRunner{conn: conn}, &recordingOutbox{}, nil, nil)
	require.NoError(t, err)

	first, err := svc.ListEntries(ctx, ListParams{SupplierID: supplierID, Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.Equal(t, int64(300), first.Entries[0].AmountMinor)
	assert.Equal(t, int64(200), first.Entries[1].AmountMinor)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListEntries(ctx, ListParams{SupplierID: supplierID, Params: pagination.Params{Limit: 2, Cursor: first.NextCursor}})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, int64(100), second.Entries[0].AmountMinor)
	assert.Empty(t, second.NextCursor)
}

type dbtestRunner struct {
	conn *gorm.DB
}

func (r dbtestRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn.WithContext(ctx).Transaction(fn)
}
