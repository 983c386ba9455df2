package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// SupplierPaymentAllocation is the money owed to one supplier for one purchase
// order, sourced from one order payment.
type SupplierPaymentAllocation struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PaymentID       uuid.UUID              `gorm:"column:payment_id;type:uuid;not null;uniqueIndex:ux_allocations_payment_po_supplier" json:"payment_id"`
	PurchaseOrderID uuid.UUID              `gorm:"column:purchase_order_id;type:uuid;not null;uniqueIndex:ux_allocations_payment_po_supplier;index" json:"purchase_order_id"`
	SupplierID      uuid.UUID              `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_allocations_payment_po_supplier;index" json:"supplier_id"`
	AmountMinor     int64                  `gorm:"column:amount_minor;not null" json:"amount_minor"`
	Status          enums.AllocationStatus `gorm:"column:status;type:allocation_status;not null;default:'pending'" json:"status"`
	ReleasedAt      *time.Time             `gorm:"column:released_at" json:"released_at,omitempty"`
	ReleasedBy      *uuid.UUID             `gorm:"column:released_by;type:uuid" json:"released_by,omitempty"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (m *SupplierPaymentAllocation) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
