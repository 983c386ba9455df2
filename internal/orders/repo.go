package orders

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

type repository struct {
	db *gorm.DB
}

// NewRepository returns a repository backed by the provided GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindPaymentByRef returns nil, nil when no payment carries the reference.
func (r *repository) FindPaymentByRef(ctx context.Context, providerRef string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_ref = ?", providerRef).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status enums.PaymentStatus, confirmedAt *time.Time) error {
	updates := map[string]any{"status": status}
	if confirmedAt != nil {
		updates["confirmed_at"] = *confirmedAt
	}
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(updates).Error
}

func (r *repository) HasSuccessfulPayment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status IN ?", orderID, []enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusRefunded}).
		Count(&count).Error
	return count > 0, err
}

// UpdateOrderStatus moves the order only from the expected status and stamps
// paid_at or canceled_at to match the target.
func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	switch to {
	case enums.OrderStatusPaid:
		updates["paid_at"] = at
	case enums.OrderStatusCanceled:
		updates["canceled_at"] = at
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

// Restock returns quantity units to the offer's stock row and recomputes its
// in_stock flag. It reports false when the offer row no longer exists.
func (r *repository) Restock(ctx context.Context, offer models.Offer, quantity int, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Table(offer.Table()).
		Where("id = ?", offer.ID()).
		Updates(map[string]any{
			"stock_qty":  gorm.Expr("stock_qty + ?", quantity),
			"in_stock":   gorm.Expr("stock_qty + ? > 0", quantity),
			"updated_at": at,
		})
	return result.RowsAffected == 1, result.Error
}

func (r *repository) ClearReservation(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Update("inventory_reserved", false).Error
}
