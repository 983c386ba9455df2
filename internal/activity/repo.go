package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// Subject types recorded on activity log rows.
const (
	SubjectOrder         = "order"
	SubjectPurchaseOrder = "purchase_order"
	SubjectRefund        = "refund"
	SubjectSupplier      = "supplier"
)

// Entry describes one activity log row to append.
type Entry struct {
	SubjectType string
	SubjectID   uuid.UUID
	Action      string
	ActorID     *uuid.UUID
	Metadata    map[string]any
}

// Repository appends and lists activity logs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, entry Entry) error
	ListForSubject(ctx context.Context, subjectType string, subjectID uuid.UUID) ([]models.ActivityLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the activity log repository to a GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Record(ctx context.Context, entry Entry) error {
	if entry.SubjectType == "" || entry.SubjectID == uuid.Nil || entry.Action == "" {
		return fmt.Errorf("activity subject and action are required")
	}
	row := models.ActivityLog{
		SubjectType: entry.SubjectType,
		SubjectID:   entry.SubjectID,
		Action:      entry.Action,
		ActorID:     entry.ActorID,
	}
	if len(entry.Metadata) > 0 {
		payload, err := types.MarshalJSONValue(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
		row.Metadata = payload
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *repository) ListForSubject(ctx context.Context, subjectType string, subjectID uuid.UUID) ([]models.ActivityLog, error) {
	var rows []models.ActivityLog
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
