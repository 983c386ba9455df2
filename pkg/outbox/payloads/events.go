package payloads

import (
	"time"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderPaidEvent signals a confirmed payment for an order.
type OrderPaidEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	PaymentRef  string    `json:"payment_ref"`
	AmountMinor int64     `json:"amount_minor"`
	PaidAt      time.Time `json:"paid_at"`
}

// OrderCanceledEvent is emitted when an admin cancels an unpaid order.
type OrderCanceledEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	CanceledBy     uuid.UUID `json:"canceled_by"`
	CanceledAt     time.Time `json:"canceled_at"`
	RestockedItems int       `json:"restocked_items"`
}

// PurchaseOrderCreatedEvent announces a new per-supplier purchase order.
type PurchaseOrderCreatedEvent struct {
	PurchaseOrderID   uuid.UUID `json:"purchase_order_id"`
	OrderID           uuid.UUID `json:"order_id"`
	SupplierID        uuid.UUID `json:"supplier_id"`
	SupplierReference string    `json:"supplier_reference"`
	AmountOwedMinor   int64     `json:"amount_owed_minor"`
}

// PurchaseOrderShippedEvent reports supplier-driven shipment progress.
type PurchaseOrderShippedEvent struct {
	PurchaseOrderID uuid.UUID                 `json:"purchase_order_id"`
	OrderID         uuid.UUID                 `json:"order_id"`
	SupplierID      uuid.UUID                 `json:"supplier_id"`
	Status          enums.PurchaseOrderStatus `json:"status"`
	ShippedAt       *time.Time                `json:"shipped_at,omitempty"`
}

// DeliveryCodeIssuedEvent records a new delivery challenge. The code itself is never included.
type DeliveryCodeIssuedEvent struct {
	PurchaseOrderID uuid.UUID `json:"purchase_order_id"`
	ChallengeID     uuid.UUID `json:"challenge_id"`
	IssuedBy        uuid.UUID `json:"issued_by"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// DeliveryConfirmedEvent is emitted once a delivery code is verified.
type DeliveryConfirmedEvent struct {
	PurchaseOrderID uuid.UUID `json:"purchase_order_id"`
	OrderID         uuid.UUID `json:"order_id"`
	SupplierID      uuid.UUID `json:"supplier_id"`
	ChallengeID     uuid.UUID `json:"challenge_id"`
	VerifiedBy      uuid.UUID `json:"verified_by"`
	DeliveredAt     time.Time `json:"delivered_at"`
}

// PayoutReleasedEvent is emitted when an allocation moves to paid.
type PayoutReleasedEvent struct {
	PurchaseOrderID uuid.UUID `json:"purchase_order_id"`
	AllocationID    uuid.UUID `json:"allocation_id"`
	SupplierID      uuid.UUID `json:"supplier_id"`
	AmountMinor     int64     `json:"amount_minor"`
	ReleasedBy      uuid.UUID `json:"released_by"`
	ReleasedAt      time.Time `json:"released_at"`
}

// RefundRequestedEvent opens a refund against one purchase order.
type RefundRequestedEvent struct {
	RefundID        uuid.UUID              `json:"refund_id"`
	OrderID         uuid.UUID              `json:"order_id"`
	PurchaseOrderID uuid.UUID              `json:"purchase_order_id"`
	SupplierID      uuid.UUID              `json:"supplier_id"`
	SourceKind      enums.RefundSourceKind `json:"source_kind"`
	TotalMinor      int64                  `json:"total_minor"`
	RequestedBy     uuid.UUID              `json:"requested_by"`
	Status          enums.RefundStatus     `json:"status"`
}

type RefundRespondedEvent struct {
	RefundID        uuid.UUID          `json:"refund_id"`
	PurchaseOrderID uuid.UUID          `json:"purchase_order_id"`
	SupplierID      uuid.UUID          `json:"supplier_id"`
	Action          enums.RefundAction `json:"action"`
	Status          enums.RefundStatus `json:"status"`
}

// RefundClosedEvent carries the admin resolution and any ledger debit.
type RefundClosedEvent struct {
	RefundID        uuid.UUID  `json:"refund_id"`
	PurchaseOrderID uuid.UUID  `json:"purchase_order_id"`
	SupplierID      uuid.UUID  `json:"supplier_id"`
	Approved        bool       `json:"approved"`
	LedgerEntryID   *uuid.UUID `json:"ledger_entry_id,omitempty"`
}

// LedgerEntryRecordedEvent mirrors an appended supplier ledger row.
type LedgerEntryRecordedEvent struct {
	EntryID         uuid.UUID             `json:"entry_id"`
	SupplierID      uuid.UUID             `json:"supplier_id"`
	Type            enums.LedgerEntryType `json:"type"`
	AmountMinor     int64                 `json:"amount_minor"`
	PurchaseOrderID *uuid.UUID            `json:"purchase_order_id,omitempty"`
}
