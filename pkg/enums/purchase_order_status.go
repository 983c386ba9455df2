package enums

import "fmt"

// PurchaseOrderStatus tracks a supplier's slice of an order through fulfillment.
type PurchaseOrderStatus string

const (
	PurchaseOrderStatusPending        PurchaseOrderStatus = "pending"
	PurchaseOrderStatusAccepted       PurchaseOrderStatus = "accepted"
	PurchaseOrderStatusProcessing     PurchaseOrderStatus = "processing"
	PurchaseOrderStatusShipped        PurchaseOrderStatus = "shipped"
	PurchaseOrderStatusOutForDelivery PurchaseOrderStatus = "out_for_delivery"
	PurchaseOrderStatusDelivered      PurchaseOrderStatus = "delivered"
	PurchaseOrderStatusCanceled       PurchaseOrderStatus = "canceled"
)

var validPurchaseOrderStatuses = []PurchaseOrderStatus{
	PurchaseOrderStatusPending,
	PurchaseOrderStatusAccepted,
	PurchaseOrderStatusProcessing,
	PurchaseOrderStatusShipped,
	PurchaseOrderStatusOutForDelivery,
	PurchaseOrderStatusDelivered,
	PurchaseOrderStatusCanceled,
}

// String implements fmt.Stringer.
func (s PurchaseOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PurchaseOrderStatus.
func (s PurchaseOrderStatus) IsValid() bool {
	for _, candidate := range validPurchaseOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further fulfillment can happen.
func (s PurchaseOrderStatus) IsTerminal() bool {
	return s == PurchaseOrderStatusCanceled
}

// CanTransitionTo reports whether next is a legal successor of s. Delivered is
// only reached through delivery code verification and never left.
func (s PurchaseOrderStatus) CanTransitionTo(next PurchaseOrderStatus) bool {
	switch s {
	case PurchaseOrderStatusPending:
		return next == PurchaseOrderStatusAccepted || next == PurchaseOrderStatusCanceled
	case PurchaseOrderStatusAccepted:
		return next == PurchaseOrderStatusProcessing || next == PurchaseOrderStatusShipped || next == PurchaseOrderStatusCanceled
	case PurchaseOrderStatusProcessing:
		return next == PurchaseOrderStatusShipped || next == PurchaseOrderStatusCanceled
	case PurchaseOrderStatusShipped:
		return next == PurchaseOrderStatusOutForDelivery || next == PurchaseOrderStatusDelivered
	case PurchaseOrderStatusOutForDelivery:
		return next == PurchaseOrderStatusDelivered
	case PurchaseOrderStatusDelivered, PurchaseOrderStatusCanceled:
		return false
	default:
		return false
	}
}

// ParsePurchaseOrderStatus converts raw input into a PurchaseOrderStatus.
func ParsePurchaseOrderStatus(value string) (PurchaseOrderStatus, error) {
	for _, candidate := range validPurchaseOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase order status %q", value)
}

// PayoutStatus tracks whether a purchase order's funds were released.
type PayoutStatus string

const (
	PayoutStatusUnpaid   PayoutStatus = "unpaid"
	PayoutStatusReleased PayoutStatus = "released"
)

// IsValid reports whether the value is a known PayoutStatus.
func (s PayoutStatus) IsValid() bool {
	return s == PayoutStatusUnpaid || s == PayoutStatusReleased
}
