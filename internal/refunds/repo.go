package refunds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Repository persists refunds, their items and the audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListPurchaseOrders(ctx context.Context, orderID uuid.UUID) ([]models.PurchaseOrder, error)
	LockPurchaseOrder(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	ExistsForPurchaseOrder(ctx context.Context, purchaseOrderID uuid.UUID) (bool, error)
	Create(ctx context.Context, refund *models.Refund) error
	AppendEvent(ctx context.Context, event *models.RefundEvent) error
	MarkRefundRequested(ctx context.Context, purchaseOrderID uuid.UUID, at time.Time) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.RefundStatus, fields map[string]any) (bool, error)
	ListForSupplier(ctx context.Context, query listQuery) ([]models.Refund, error)
	ListEvents(ctx context.Context, refundID uuid.UUID) ([]models.RefundEvent, error)
}

type listQuery struct {
	supplierID uuid.UUID
	status     *enums.RefundStatus
	limit      int
	cursor     *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListPurchaseOrders(ctx context.Context, orderID uuid.UUID) ([]models.PurchaseOrder, error) {
	var pos []models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&pos).Error
	return pos, err
}

func (r *repository) LockPurchaseOrder(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&po).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repository) ExistsForPurchaseOrder(ctx context.Context, purchaseOrderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("purchase_order_id = ?", purchaseOrderID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) AppendEvent(ctx context.Context, event *models.RefundEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// MarkRefundRequested stamps the flag once and leaves canceled purchase
// orders alone.
func (r *repository) MarkRefundRequested(ctx context.Context, purchaseOrderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ? AND status <> ? AND refund_requested_at IS NULL", purchaseOrderID, enums.PurchaseOrderStatusCanceled).
		Updates(map[string]any{
			"refund_requested_at": at,
			"updated_at":          at,
		}).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.RefundStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListForSupplier(ctx context.Context, query listQuery) ([]models.Refund, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("supplier_id = ?", query.supplierID)
	if query.status != nil {
		q = q.Where("status = ?", *query.status)
	}
	var refunds []models.Refund
	if err := q.Scopes(pagination.Before(query.cursor), pagination.Newest(query.limit)).Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}

func (r *repository) ListEvents(ctx context.Context, refundID uuid.UUID) ([]models.RefundEvent, error) {
	var events []models.RefundEvent
	err := r.db.WithContext(ctx).
		Where("refund_id = ?", refundID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
