package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Payment records the gateway confirmation for an order.
type Payment struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID     uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProviderRef string              `gorm:"column:provider_ref;type:text;not null;uniqueIndex:ux_payments_provider_ref" json:"provider_ref"`
	AmountMinor int64               `gorm:"column:amount_minor;not null" json:"amount_minor"`
	Status      enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'" json:"status"`
	ConfirmedAt *time.Time          `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (m *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
