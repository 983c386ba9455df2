package enums

import "fmt"

// RefundStatus tracks a refund case through supplier review.
type RefundStatus string

const (
	RefundStatusRequested        RefundStatus = "REQUESTED"
	RefundStatusSupplierReview   RefundStatus = "SUPPLIER_REVIEW"
	RefundStatusSupplierAccepted RefundStatus = "SUPPLIER_ACCEPTED"
	RefundStatusSupplierRejected RefundStatus = "SUPPLIER_REJECTED"
	RefundStatusEscalated        RefundStatus = "ESCALATED"
	RefundStatusClosed           RefundStatus = "CLOSED"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusRequested,
	RefundStatusSupplierReview,
	RefundStatusSupplierAccepted,
	RefundStatusSupplierRejected,
	RefundStatusEscalated,
	RefundStatusClosed,
}

// String implements fmt.Stringer.
func (r RefundStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundStatus.
func (r RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// AwaitingSupplier reports whether a supplier may still respond.
func (r RefundStatus) AwaitingSupplier() bool {
	return r == RefundStatusRequested || r == RefundStatusSupplierReview
}

// Closable reports whether an admin may close the refund.
func (r RefundStatus) Closable() bool {
	switch r {
	case RefundStatusSupplierAccepted, RefundStatusSupplierRejected, RefundStatusEscalated:
		return true
	default:
		return false
	}
}

// ParseRefundStatus converts raw input into a RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	for _, candidate := range validRefundStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}

// RefundAction is a supplier's response to a refund request.
type RefundAction string

const (
	RefundActionAccept   RefundAction = "ACCEPT"
	RefundActionReject   RefundAction = "REJECT"
	RefundActionEscalate RefundAction = "ESCALATE"
)

// Next returns the status a refund moves to when the supplier takes action.
func (r RefundStatus) Next(action RefundAction) (RefundStatus, bool) {
	if !r.AwaitingSupplier() {
		return "", false
	}
	switch action {
	case RefundActionAccept:
		return RefundStatusSupplierAccepted, true
	case RefundActionReject:
		return RefundStatusSupplierRejected, true
	case RefundActionEscalate:
		return RefundStatusEscalated, true
	default:
		return "", false
	}
}

// ParseRefundAction converts raw input into a RefundAction.
func ParseRefundAction(value string) (RefundAction, error) {
	switch RefundAction(value) {
	case RefundActionAccept, RefundActionReject, RefundActionEscalate:
		return RefundAction(value), nil
	}
	return "", fmt.Errorf("invalid refund action %q", value)
}

// RefundSourceKind names how a refund selected the order items it covers.
type RefundSourceKind string

const (
	RefundSourceWholePurchaseOrder RefundSourceKind = "whole_purchase_order"
	RefundSourceItemSubset         RefundSourceKind = "item_subset"
)
