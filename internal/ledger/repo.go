package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Repository manages persistence for supplier ledger entries and the
// allocation totals balances are replayed from.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.SupplierLedgerEntry) error
	List(ctx context.Context, query listQuery) ([]models.SupplierLedgerEntry, error)
	EntryTotals(ctx context.Context, supplierID uuid.UUID) (map[enums.LedgerEntryType]int64, error)
	AllocationTotals(ctx context.Context, supplierID uuid.UUID) (map[enums.AllocationStatus]int64, error)
}

type listQuery struct {
	supplierID uuid.UUID
	limit      int
	cursor     *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.SupplierLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.SupplierLedgerEntry, error) {
	q := r.db.WithContext(ctx).
		Model(&models.SupplierLedgerEntry{}).
		Where("supplier_id = ?", query.supplierID)
	var entries []models.SupplierLedgerEntry
	if err := q.Scopes(pagination.Before(query.cursor), pagination.Newest(query.limit)).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

type entryTotalRow struct {
	Type  enums.LedgerEntryType
	Total int64
}

func (r *repository) EntryTotals(ctx context.Context, supplierID uuid.UUID) (map[enums.LedgerEntryType]int64, error) {
	var rows []entryTotalRow
	err := r.db.WithContext(ctx).
		Model(&models.SupplierLedgerEntry{}).
		Select("type, COALESCE(SUM(amount_minor), 0) AS total").
		Where("supplier_id = ?", supplierID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	totals := make(map[enums.LedgerEntryType]int64, len(rows))
	for _, row := range rows {
		totals[row.Type] += row.Total
	}
	return totals, nil
}

type allocationTotalRow struct {
	Status enums.AllocationStatus
	Total  int64
}

func (r *repository) AllocationTotals(ctx context.Context, supplierID uuid.UUID) (map[enums.AllocationStatus]int64, error) {
	var rows []allocationTotalRow
	err := r.db.WithContext(ctx).
		Model(&models.SupplierPaymentAllocation{}).
		Select("status, COALESCE(SUM(amount_minor), 0) AS total").
		Where("supplier_id = ?", supplierID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	totals := make(map[enums.AllocationStatus]int64, len(rows))
	for _, row := range rows {
		totals[row.Status] += row.Total
	}
	return totals, nil
}
