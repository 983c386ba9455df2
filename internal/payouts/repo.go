package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Repository reads the release preconditions and moves allocations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPurchaseOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	HasVerifiedChallenge(ctx context.Context, purchaseOrderID uuid.UUID) (bool, error)
	HasOpenRefund(ctx context.Context, purchaseOrderID uuid.UUID) (bool, error)
	FindProfile(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error)
	FindPaidPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindAllocation(ctx context.Context, paymentID, purchaseOrderID, supplierID uuid.UUID) (*models.SupplierPaymentAllocation, error)
	ListAllocationsForPurchaseOrder(ctx context.Context, paymentID, purchaseOrderID, supplierID uuid.UUID) ([]models.SupplierPaymentAllocation, error)
	CreateAllocation(ctx context.Context, allocation *models.SupplierPaymentAllocation) error
	ResyncAllocationAmount(ctx context.Context, id uuid.UUID, amountMinor int64) (bool, error)
	ReleaseAllocation(ctx context.Context, id uuid.UUID, releasedAt time.Time, releasedBy *uuid.UUID) (bool, error)
	MarkPurchaseOrderReleased(ctx context.Context, id uuid.UUID, at time.Time) error
	ListAllocations(ctx context.Context, query listQuery) ([]models.SupplierPaymentAllocation, error)
}

type listQuery struct {
	supplierID uuid.UUID
	status     *enums.AllocationStatus
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

func (r *repository) FindPurchaseOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
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

func (r *repository) HasVerifiedChallenge(ctx context.Context, purchaseOrderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryChallenge{}).
		Where("purchase_order_id = ? AND verified_at IS NOT NULL", purchaseOrderID).
		Count(&count).Error
	return count > 0, err
}

// HasOpenRefund reports whether the purchase order has a refund case that has
// not been closed.
func (r *repository) HasOpenRefund(ctx context.Context, purchaseOrderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("purchase_order_id = ? AND status <> ?", purchaseOrderID, enums.RefundStatusClosed).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindProfile(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error) {
	var profile models.SupplierPayoutProfile
	err := r.db.WithContext(ctx).Where("supplier_id = ?", supplierID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) FindPaidPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPaid).
		Order("confirmed_at DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindAllocation(ctx context.Context, paymentID, purchaseOrderID, supplierID uuid.UUID) (*models.SupplierPaymentAllocation, error) {
	var allocation models.SupplierPaymentAllocation
	err := r.db.WithContext(ctx).
		Where("payment_id = ? AND purchase_order_id = ? AND supplier_id = ?", paymentID, purchaseOrderID, supplierID).
		First(&allocation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

func (r *repository) ListAllocationsForPurchaseOrder(ctx context.Context, paymentID, purchaseOrderID, supplierID uuid.UUID) ([]models.SupplierPaymentAllocation, error) {
	var allocations []models.SupplierPaymentAllocation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ? AND purchase_order_id = ? AND supplier_id = ?", paymentID, purchaseOrderID, supplierID).
		Order("created_at ASC, id ASC").
		Find(&allocations).Error
	return allocations, err
}

func (r *repository) CreateAllocation(ctx context.Context, allocation *models.SupplierPaymentAllocation) error {
	return r.db.WithContext(ctx).Create(allocation).Error
}

// ResyncAllocationAmount rewrites the amount of an allocation that has not
// progressed past approval.
func (r *repository) ResyncAllocationAmount(ctx context.Context, id uuid.UUID, amountMinor int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SupplierPaymentAllocation{}).
		Where("id = ? AND status IN ?", id, enums.ReleasableAllocationStatuses).
		Update("amount_minor", amountMinor)
	return result.RowsAffected == 1, result.Error
}

// ReleaseAllocation moves an eligible allocation to paid. It reports false
// when another release won the race.
func (r *repository) ReleaseAllocation(ctx context.Context, id uuid.UUID, releasedAt time.Time, releasedBy *uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SupplierPaymentAllocation{}).
		Where("id = ? AND status IN ?", id, enums.ReleasableAllocationStatuses).
		Updates(map[string]any{
			"status":      enums.AllocationStatusPaid,
			"released_at": releasedAt,
			"released_by": releasedBy,
		})
	return result.RowsAffected == 1, result.Error
}

func (r *repository) MarkPurchaseOrderReleased(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payout_status": enums.PayoutStatusReleased,
			"paid_out_at":   at,
		}).Error
}

func (r *repository) ListAllocations(ctx context.Context, query listQuery) ([]models.SupplierPaymentAllocation, error) {
	q := r.db.WithContext(ctx).
		Model(&models.SupplierPaymentAllocation{}).
		Where("supplier_id = ?", query.supplierID)
	if query.status != nil {
		q = q.Where("status = ?", *query.status)
	}
	var allocations []models.SupplierPaymentAllocation
	if err := q.Scopes(pagination.Before(query.cursor), pagination.Newest(query.limit)).Find(&allocations).Error; err != nil {
		return nil, err
	}
	return allocations, nil
}
