package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// PurchaseOrder is one supplier's slice of an order.
type PurchaseOrder struct {
	ID                 uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID            uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_purchase_orders_order_supplier" json:"order_id"`
	SupplierID         uuid.UUID                 `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_purchase_orders_order_supplier;index" json:"supplier_id"`
	SupplierReference  string                    `gorm:"column:supplier_reference;type:text;not null;uniqueIndex:ux_purchase_orders_supplier_reference" json:"supplier_reference"`
	AmountOwedMinor    int64                     `gorm:"column:amount_owed_minor;not null;default:0" json:"amount_owed_minor"`
	Status             enums.PurchaseOrderStatus `gorm:"column:status;type:purchase_order_status;not null;default:'pending'" json:"status"`
	PayoutStatus       enums.PayoutStatus        `gorm:"column:payout_status;type:payout_status;not null;default:'unpaid'" json:"payout_status"`
	ShippedAt          *time.Time                `gorm:"column:shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time                `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	DeliveredBy        *uuid.UUID                `gorm:"column:delivered_by;type:uuid" json:"delivered_by,omitempty"`
	DeliveryUnverified bool                      `gorm:"column:delivery_unverified;not null;default:false" json:"delivery_unverified"`
	RefundRequestedAt  *time.Time                `gorm:"column:refund_requested_at" json:"refund_requested_at,omitempty"`
	PaidOutAt          *time.Time                `gorm:"column:paid_out_at" json:"paid_out_at,omitempty"`
	Items              []PurchaseOrderItem       `gorm:"foreignKey:PurchaseOrderID" json:"items,omitempty"`
	CreatedAt          time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                 `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (m *PurchaseOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// PurchaseOrderItem links an order item to the purchase order that covers it.
type PurchaseOrderItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PurchaseOrderID uuid.UUID `gorm:"column:purchase_order_id;type:uuid;not null;index" json:"purchase_order_id"`
	OrderItemID     uuid.UUID `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex:ux_purchase_order_items_order_item" json:"order_item_id"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (m *PurchaseOrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
