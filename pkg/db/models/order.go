package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// Order represents one customer checkout.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CustomerID      uuid.UUID         `gorm:"column:customer_id;type:uuid;not null;index" json:"customer_id"`
	Status          enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'created'" json:"status"`
	Currency        string            `gorm:"column:currency;type:text;not null;default:'NGN'" json:"currency"`
	SubtotalMinor   int64             `gorm:"column:subtotal_minor;not null" json:"subtotal_minor"`
	TaxMinor        int64             `gorm:"column:tax_minor;not null;default:0" json:"tax_minor"`
	ServiceFeeMinor int64             `gorm:"column:service_fee_minor;not null;default:0" json:"service_fee_minor"`
	TotalMinor      int64             `gorm:"column:total_minor;not null" json:"total_minor"`
	ShippingAddress *types.Address    `gorm:"column:shipping_address;type:jsonb" json:"shipping_address,omitempty"`
	PaidAt          *time.Time        `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CanceledAt      *time.Time        `gorm:"column:canceled_at" json:"canceled_at,omitempty"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (m *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// OrderItem is one line of an order, bound to the supplier offer chosen to fulfill it.
type OrderItem struct {
	ID                    uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID               uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductRef            string                    `gorm:"column:product_ref;type:text;not null" json:"product_ref"`
	VariantRef            *string                   `gorm:"column:variant_ref;type:text" json:"variant_ref,omitempty"`
	Quantity              int                       `gorm:"column:quantity;not null" json:"quantity"`
	UnitPriceMinor        int64                     `gorm:"column:unit_price_minor;not null" json:"unit_price_minor"`
	OfferKind             enums.OfferKind           `gorm:"column:offer_kind;type:offer_kind;not null" json:"offer_kind"`
	OfferID               uuid.UUID                 `gorm:"column:offer_id;type:uuid;not null" json:"offer_id"`
	SupplierID            uuid.UUID                 `gorm:"column:supplier_id;type:uuid;not null;index" json:"supplier_id"`
	SupplierUnitCostMinor int64                     `gorm:"column:supplier_unit_cost_minor;not null" json:"supplier_unit_cost_minor"`
	InventoryReserved     bool                      `gorm:"column:inventory_reserved;not null;default:false" json:"inventory_reserved"`
	FulfillmentStatus     enums.PurchaseOrderStatus `gorm:"column:fulfillment_status;type:purchase_order_status;not null;default:'pending'" json:"fulfillment_status"`
	CreatedAt             time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time                 `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (m *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// Offer returns the tagged offer reference this item was fulfilled from.
func (m OrderItem) Offer() (Offer, error) {
	return NewOffer(m.OfferKind, m.OfferID)
}

// SupplierCostMinor is the amount owed to the supplier for this line.
func (m OrderItem) SupplierCostMinor() int64 {
	return m.SupplierUnitCostMinor * int64(m.Quantity)
}
