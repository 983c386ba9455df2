package purchaseorders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Repository persists purchase orders and their item links.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindPaidPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PurchaseOrder, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	Create(ctx context.Context, po *models.PurchaseOrder) error
	CreateItemLinks(ctx context.Context, links []models.PurchaseOrderItem) error
	UpdateAmountOwed(ctx context.Context, id uuid.UUID, amountMinor int64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PurchaseOrderStatus, fields map[string]any) (bool, error)
	UpdateItemFulfillment(ctx context.Context, poID uuid.UUID, status enums.PurchaseOrderStatus) error
	ListForSupplier(ctx context.Context, query listQuery) ([]models.PurchaseOrder, error)
}

type listQuery struct {
	supplierID uuid.UUID
	status     *enums.PurchaseOrderStatus
	limit      int
	cursor     *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the purchase order repository to a GORM handle.
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

// FindPaidPayment returns nil, nil when the order has no paid payment.
func (r *repository) FindPaidPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPaid).
		Order("confirmed_at ASC, created_at ASC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PurchaseOrder, error) {
	var pos []models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&pos).Error
	return pos, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	if err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&po).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
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

func (r *repository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("supplier_reference = ?", reference).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Create(ctx context.Context, po *models.PurchaseOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(po).Error
}

func (r *repository) CreateItemLinks(ctx context.Context, links []models.PurchaseOrderItem) error {
	if len(links) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&links).Error
}

func (r *repository) UpdateAmountOwed(ctx context.Context, id uuid.UUID, amountMinor int64) error {
	return r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ?", id).
		Update("amount_owed_minor", amountMinor).Error
}

// UpdateStatus moves a purchase order only if it is still in the expected
// status, reporting whether a row changed. fields are written alongside.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PurchaseOrderStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) UpdateItemFulfillment(ctx context.Context, poID uuid.UUID, status enums.PurchaseOrderStatus) error {
	links := r.db.Model(&models.PurchaseOrderItem{}).Select("order_item_id").Where("purchase_order_id = ?", poID)
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id IN (?)", links).
		Update("fulfillment_status", status).Error
}

func (r *repository) ListForSupplier(ctx context.Context, query listQuery) ([]models.PurchaseOrder, error) {
	q := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Preload("Items").
		Where("supplier_id = ?", query.supplierID)
	if query.status != nil {
		q = q.Where("status = ?", *query.status)
	}
	var pos []models.PurchaseOrder
	if err := q.Scopes(pagination.Before(query.cursor), pagination.Newest(query.limit)).Find(&pos).Error; err != nil {
		return nil, err
	}
	return pos, nil
}
