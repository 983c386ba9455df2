package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// ErrLedgerEntryImmutable is returned when an update targets a ledger entry.
var ErrLedgerEntryImmutable = errors.New("supplier ledger entries are append-only")

// SupplierLedgerEntry is an append-only manual adjustment to a supplier balance.
// Credits carry a positive amount and debits a negative one.
type SupplierLedgerEntry struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SupplierID      uuid.UUID             `gorm:"column:supplier_id;type:uuid;not null;index" json:"supplier_id"`
	Type            enums.LedgerEntryType `gorm:"column:type;type:ledger_entry_type;not null" json:"type"`
	AmountMinor     int64                 `gorm:"column:amount_minor;not null" json:"amount_minor"`
	PurchaseOrderID *uuid.UUID            `gorm:"column:purchase_order_id;type:uuid" json:"purchase_order_id,omitempty"`
	OrderID         *uuid.UUID            `gorm:"column:order_id;type:uuid" json:"order_id,omitempty"`
	RefundID        *uuid.UUID            `gorm:"column:refund_id;type:uuid;uniqueIndex:ux_supplier_ledger_entries_refund" json:"refund_id,omitempty"`
	Metadata        types.JSON            `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedBy       uuid.UUID             `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (m *SupplierLedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

func (m *SupplierLedgerEntry) BeforeUpdate(*gorm.DB) error {
	return ErrLedgerEntryImmutable
}
