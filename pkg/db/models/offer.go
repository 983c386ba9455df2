package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Offer identifies the supplier stock row an order item draws from. It is either
// a base offer or a variant offer; the zero value is invalid.
type Offer struct {
	kind enums.OfferKind
	id   uuid.UUID
}

// BaseOffer references a row in supplier_offers.
func BaseOffer(id uuid.UUID) Offer {
	return Offer{kind: enums.OfferKindBase, id: id}
}

// VariantOffer references a row in supplier_variant_offers.
func VariantOffer(id uuid.UUID) Offer {
	return Offer{kind: enums.OfferKindVariant, id: id}
}

// NewOffer rebuilds an Offer from its persisted columns.
func NewOffer(kind enums.OfferKind, id uuid.UUID) (Offer, error) {
	if id == uuid.Nil {
		return Offer{}, fmt.Errorf("offer id is required")
	}
	switch kind {
	case enums.OfferKindBase:
		return BaseOffer(id), nil
	case enums.OfferKindVariant:
		return VariantOffer(id), nil
	default:
		return Offer{}, fmt.Errorf("invalid offer kind %q", kind)
	}
}

func (o Offer) Kind() enums.OfferKind { return o.kind }

func (o Offer) ID() uuid.UUID { return o.id }

// Table returns the inventory table backing the offer.
func (o Offer) Table() string {
	switch o.kind {
	case enums.OfferKindVariant:
		return SupplierVariantOffer{}.TableName()
	default:
		return SupplierOffer{}.TableName()
	}
}

func (o Offer) String() string {
	return fmt.Sprintf("%s(%s)", o.kind, o.id)
}

// SupplierOffer is a supplier's stock of a base product.
type SupplierOffer struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SupplierID uuid.UUID `gorm:"column:supplier_id;type:uuid;not null;index" json:"supplier_id"`
	ProductRef string    `gorm:"column:product_ref;type:text;not null" json:"product_ref"`
	StockQty   int       `gorm:"column:stock_qty;not null;default:0" json:"stock_qty"`
	InStock    bool      `gorm:"column:in_stock;not null;default:false" json:"in_stock"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (SupplierOffer) TableName() string { return "supplier_offers" }

func (m *SupplierOffer) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// SupplierVariantOffer is a supplier's stock of one product variant.
type SupplierVariantOffer struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SupplierID uuid.UUID `gorm:"column:supplier_id;type:uuid;not null;index" json:"supplier_id"`
	ProductRef string    `gorm:"column:product_ref;type:text;not null" json:"product_ref"`
	VariantRef string    `gorm:"column:variant_ref;type:text;not null" json:"variant_ref"`
	StockQty   int       `gorm:"column:stock_qty;not null;default:0" json:"stock_qty"`
	InStock    bool      `gorm:"column:in_stock;not null;default:false" json:"in_stock"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (SupplierVariantOffer) TableName() string { return "supplier_variant_offers" }

func (m *SupplierVariantOffer) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
