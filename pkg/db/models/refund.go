package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Refund is the single refund case allowed against a purchase order.
type Refund struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID         uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	PurchaseOrderID uuid.UUID              `gorm:"column:purchase_order_id;type:uuid;not null;uniqueIndex:ux_refunds_purchase_order" json:"purchase_order_id"`
	SupplierID      uuid.UUID              `gorm:"column:supplier_id;type:uuid;not null;index" json:"supplier_id"`
	RequestedBy     uuid.UUID              `gorm:"column:requested_by;type:uuid;not null" json:"requested_by"`
	RequesterRole   enums.ActorRole        `gorm:"column:requester_role;type:text;not null" json:"requester_role"`
	SourceKind      enums.RefundSourceKind `gorm:"column:source_kind;type:text;not null" json:"source_kind"`
	Reason          string                 `gorm:"column:reason;type:text;not null" json:"reason"`
	ItemsMinor      int64                  `gorm:"column:items_minor;not null" json:"items_minor"`
	TaxMinor        int64                  `gorm:"column:tax_minor;not null;default:0" json:"tax_minor"`
	FeesMinor       int64                  `gorm:"column:fees_minor;not null;default:0" json:"fees_minor"`
	TotalMinor      int64                  `gorm:"column:total_minor;not null" json:"total_minor"`
	Status          enums.RefundStatus     `gorm:"column:status;type:refund_status;not null;default:'REQUESTED'" json:"status"`
	SupplierNote    *string                `gorm:"column:supplier_note;type:text" json:"supplier_note,omitempty"`
	ResolutionNote  *string                `gorm:"column:resolution_note;type:text" json:"resolution_note,omitempty"`
	RespondedAt     *time.Time             `gorm:"column:responded_at" json:"responded_at,omitempty"`
	ClosedAt        *time.Time             `gorm:"column:closed_at" json:"closed_at,omitempty"`
	ClosedBy        *uuid.UUID             `gorm:"column:closed_by;type:uuid" json:"closed_by,omitempty"`
	Items           []RefundItem           `gorm:"foreignKey:RefundID" json:"items,omitempty"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (m *Refund) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// RefundItem records which order item and quantity a refund covers.
type RefundItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RefundID    uuid.UUID `gorm:"column:refund_id;type:uuid;not null;index" json:"refund_id"`
	OrderItemID uuid.UUID `gorm:"column:order_item_id;type:uuid;not null" json:"order_item_id"`
	Quantity    int       `gorm:"column:quantity;not null" json:"quantity"`
	AmountMinor int64     `gorm:"column:amount_minor;not null" json:"amount_minor"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (m *RefundItem) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// RefundEvent is the append-only audit trail of refund transitions.
type RefundEvent struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RefundID   uuid.UUID           `gorm:"column:refund_id;type:uuid;not null;index" json:"refund_id"`
	FromStatus *enums.RefundStatus `gorm:"column:from_status;type:refund_status" json:"from_status,omitempty"`
	ToStatus   enums.RefundStatus  `gorm:"column:to_status;type:refund_status;not null" json:"to_status"`
	ActorID    uuid.UUID           `gorm:"column:actor_id;type:uuid;not null" json:"actor_id"`
	ActorRole  enums.ActorRole     `gorm:"column:actor_role;type:text;not null" json:"actor_role"`
	Note       *string             `gorm:"column:note;type:text" json:"note,omitempty"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (m *RefundEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
