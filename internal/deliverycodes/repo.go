package deliverycodes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Repository persists delivery challenges and the delivery stamp on purchase
// orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPurchaseOrder(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	FindPurchaseOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LatestChallenge(ctx context.Context, purchaseOrderID uuid.UUID) (*models.DeliveryChallenge, error)
	ActiveChallenge(ctx context.Context, purchaseOrderID uuid.UUID) (*models.DeliveryChallenge, error)
	ActiveChallengeForUpdate(ctx context.Context, purchaseOrderID uuid.UUID) (*models.DeliveryChallenge, error)
	SupersedeActive(ctx context.Context, purchaseOrderID uuid.UUID, at time.Time) error
	CreateChallenge(ctx context.Context, challenge *models.DeliveryChallenge) error
	RecordFailedAttempt(ctx context.Context, id uuid.UUID, attempts int, lockedUntil *time.Time) error
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time, by uuid.UUID) (bool, error)
	MarkDelivered(ctx context.Context, purchaseOrderID uuid.UUID, at time.Time, by uuid.UUID) error
	ClearDeliveryUnverified(ctx context.Context, purchaseOrderID uuid.UUID) error
	PurgeUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
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

func (r *repository) FindPurchaseOrder(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		return nil, err
	}
	return &po, nil
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

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// LatestChallenge returns the most recent issuance, superseded or not, or nil.
func (r *repository) LatestChallenge(ctx context.Context, purchaseOrderID uuid.UUID) (*models.DeliveryChallenge, error) {
	return r.first(r.db.WithContext(ctx).Where("purchase_order_id = ?", purchaseOrderID))
}

// ActiveChallenge returns the challenge that has not been superseded, or nil.
func (r *repository) ActiveChallenge(ctx context.Context, purchaseOrderID uuid.UUID) (*models.DeliveryChallenge, error) {
	return r.first(r.db.WithContext(ctx).
		Where("purchase_order_id = ? AND superseded_at IS NULL", purchaseOrderID))
}

func (r *repository) ActiveChallengeForUpdate(ctx context.Context, purchaseOrderID uuid.UUID) (*models.DeliveryChallenge, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("purchase_order_id = ? AND superseded_at IS NULL", purchaseOrderID))
}

func (r *repository) first(q *gorm.DB) (*models.DeliveryChallenge, error) {
	var challenge models.DeliveryChallenge
	err := q.Order("issued_at DESC, id DESC").First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// SupersedeActive retires every unverified challenge still active for the
// purchase order. Rows are kept for audit.
func (r *repository) SupersedeActive(ctx context.Context, purchaseOrderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryChallenge{}).
		Where("purchase_order_id = ? AND superseded_at IS NULL AND verified_at IS NULL", purchaseOrderID).
		Update("superseded_at", at).Error
}

func (r *repository) CreateChallenge(ctx context.Context, challenge *models.DeliveryChallenge) error {
	return r.db.WithContext(ctx).Create(challenge).Error
}

func (r *repository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, attempts int, lockedUntil *time.Time) error {
	updates := map[string]any{"attempts": attempts}
	if lockedUntil != nil {
		updates["locked_until"] = *lockedUntil
	}
	return r.db.WithContext(ctx).
		Model(&models.DeliveryChallenge{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkVerified stamps the challenge once. It reports false when another
// request verified it first.
func (r *repository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time, by uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DeliveryChallenge{}).
		Where("id = ? AND verified_at IS NULL", id).
		Updates(map[string]any{
			"verified_at": at,
			"verified_by": by,
			"consumed_at": at,
		})
	return result.RowsAffected == 1, result.Error
}

// MarkDelivered moves a purchase order to delivered. Already delivered rows
// keep their original timestamp and actor.
func (r *repository) MarkDelivered(ctx context.Context, purchaseOrderID uuid.UUID, at time.Time, by uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ? AND status <> ?", purchaseOrderID, enums.PurchaseOrderStatusDelivered).
		Updates(map[string]any{
			"status":              enums.PurchaseOrderStatusDelivered,
			"delivered_at":        at,
			"delivered_by":        by,
			"delivery_unverified": false,
		}).Error
	if err != nil {
		return err
	}
	links := r.db.Model(&models.PurchaseOrderItem{}).Select("order_item_id").Where("purchase_order_id = ?", purchaseOrderID)
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id IN (?)", links).
		Update("fulfillment_status", enums.PurchaseOrderStatusDelivered).Error
}

func (r *repository) ClearDeliveryUnverified(ctx context.Context, purchaseOrderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ?", purchaseOrderID).
		Update("delivery_unverified", false).Error
}

// PurgeUnverifiedBefore deletes challenges that were never verified and ended
// before the cutoff, either by expiring or by being superseded. Verified
// challenges are kept as the delivery proof payouts rely on.
func (r *repository) PurgeUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("verified_at IS NULL").
		Where("expires_at < ? OR superseded_at < ?", cutoff, cutoff).
		Delete(&models.DeliveryChallenge{})
	return res.RowsAffected, res.Error
}
