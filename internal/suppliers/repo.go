package suppliers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

// Repository persists supplier payout profiles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProfile(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error)
	FindProfileForUpdate(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error)
	SaveProfile(ctx context.Context, profile *models.SupplierPayoutProfile) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the supplier repository to a GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindProfile returns nil, nil when the supplier has no profile yet.
func (r *repository) FindProfile(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error) {
	return r.find(r.db.WithContext(ctx), supplierID)
}

func (r *repository) FindProfileForUpdate(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), supplierID)
}

func (r *repository) find(q *gorm.DB, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error) {
	var profile models.SupplierPayoutProfile
	err := q.Where("supplier_id = ?", supplierID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) SaveProfile(ctx context.Context, profile *models.SupplierPayoutProfile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}
