package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// ActivityLog is an operational audit record for actions and side-effect failures.
type ActivityLog struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SubjectType string     `gorm:"column:subject_type;type:text;not null;index:idx_activity_logs_subject" json:"subject_type"`
	SubjectID   uuid.UUID  `gorm:"column:subject_id;type:uuid;not null;index:idx_activity_logs_subject" json:"subject_id"`
	Action      string     `gorm:"column:action;type:text;not null" json:"action"`
	ActorID     *uuid.UUID `gorm:"column:actor_id;type:uuid" json:"actor_id,omitempty"`
	Metadata    types.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (m *ActivityLog) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
