package enums

import "testing"

func TestPurchaseOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to PurchaseOrderStatus
		ok       bool
	}{
		{PurchaseOrderStatusPending, PurchaseOrderStatusAccepted, true},
		{PurchaseOrderStatusAccepted, PurchaseOrderStatusShipped, true},
		{PurchaseOrderStatusShipped, PurchaseOrderStatusOutForDelivery, true},
		{PurchaseOrderStatusOutForDelivery, PurchaseOrderStatusDelivered, true},
		{PurchaseOrderStatusDelivered, PurchaseOrderStatusShipped, false},
		{PurchaseOrderStatusCanceled, PurchaseOrderStatusDelivered, false},
		{PurchaseOrderStatusShipped, PurchaseOrderStatusCanceled, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestAllocationStatusTransitions(t *testing.T) {
	if !AllocationStatusPending.CanTransitionTo(AllocationStatusPaid) {
		t.Fatal("pending allocations must be payable")
	}
	if AllocationStatusPaid.CanTransitionTo(AllocationStatusPaid) {
		t.Fatal("paid allocations must not transition again")
	}
	if AllocationStatusHeld.IsReleasable() || !AllocationStatusApproved.IsReleasable() {
		t.Fatal("unexpected releasable set")
	}
}

func TestRefundStatusNext(t *testing.T) {
	next, ok := RefundStatusSupplierReview.Next(RefundActionEscalate)
	if !ok || next != RefundStatusEscalated {
		t.Fatalf("expected escalated, got %q ok=%v", next, ok)
	}
	if _, ok := RefundStatusSupplierAccepted.Next(RefundActionReject); ok {
		t.Fatal("responded refunds must not accept a second action")
	}
	if !RefundStatusEscalated.Closable() || RefundStatusSupplierReview.Closable() {
		t.Fatal("unexpected closable set")
	}
}

func TestLedgerEntryDirection(t *testing.T) {
	if LedgerEntryTypeRefundDebit.Direction() != LedgerDirectionDebit {
		t.Fatal("refund debits must be debits")
	}
	if LedgerEntryTypeReversalCredit.Direction() != LedgerDirectionCredit {
		t.Fatal("reversal credits must be credits")
	}
	if _, err := ParseLedgerEntryType("bonus"); err == nil {
		t.Fatal("expected unknown ledger type to fail")
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := ParseRefundAction("accept"); err == nil {
		t.Fatal("refund actions are case sensitive")
	}
	if role, err := ParseActorRole("supplier"); err != nil || role != ActorRoleSupplier {
		t.Fatalf("unexpected role %q err=%v", role, err)
	}
	if !PaymentStatusRefunded.IsSuccessful() || PaymentStatusPending.IsSuccessful() {
		t.Fatal("unexpected payment success set")
	}
}
