package models

import "github.com/google/uuid"

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&Order{},
		&OrderItem{},
		&SupplierOffer{},
		&SupplierVariantOffer{},
		&Payment{},
		&PurchaseOrder{},
		&PurchaseOrderItem{},
		&DeliveryChallenge{},
		&SupplierPaymentAllocation{},
		&SupplierLedgerEntry{},
		&SupplierPayoutProfile{},
		&Refund{},
		&RefundItem{},
		&RefundEvent{},
		&ActivityLog{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
