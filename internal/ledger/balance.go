package ledger

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// AllocationBreakdown sums allocation amounts per status.
type AllocationBreakdown struct {
	PendingMinor  int64 `json:"pending_minor"`
	ApprovedMinor int64 `json:"approved_minor"`
	HeldMinor     int64 `json:"held_minor"`
	PaidOutMinor  int64 `json:"paid_out_minor"`
	FailedMinor   int64 `json:"failed_minor"`
}

// Balance is a supplier's position replayed from allocations and ledger entries.
type Balance struct {
	SupplierID            uuid.UUID           `json:"supplier_id"`
	PaidOutMinor          int64               `json:"paid_out_minor"`
	LedgerCreditsMinor    int64               `json:"ledger_credits_minor"`
	LedgerDebitsMinor     int64               `json:"ledger_debits_minor"`
	CreditsMinor          int64               `json:"credits_minor"`
	DebitsMinor           int64               `json:"debits_minor"`
	NetMinor              int64               `json:"net_minor"`
	AvailableBalanceMinor int64               `json:"available_balance_minor"`
	OutstandingDebtMinor  int64               `json:"outstanding_debt_minor"`
	Allocations           AllocationBreakdown `json:"allocations"`
}

// ComputeBalance derives a balance from per-status allocation totals and
// per-type ledger totals. Paid allocations are the only allocation credit;
// ledger amounts are classified by entry type regardless of their stored sign.
func ComputeBalance(supplierID uuid.UUID, allocations map[enums.AllocationStatus]int64, entries map[enums.LedgerEntryType]int64) Balance {
	b := Balance{
		SupplierID: supplierID,
		Allocations: AllocationBreakdown{
			PendingMinor:  allocations[enums.AllocationStatusPending],
			ApprovedMinor: allocations[enums.AllocationStatusApproved],
			HeldMinor:     allocations[enums.AllocationStatusHeld],
			PaidOutMinor:  allocations[enums.AllocationStatusPaid],
			FailedMinor:   allocations[enums.AllocationStatusFailed],
		},
	}
	b.PaidOutMinor = b.Allocations.PaidOutMinor

	for entryType, total := range entries {
		switch entryType.Direction() {
		case enums.LedgerDirectionCredit:
			b.LedgerCreditsMinor += abs(total)
		case enums.LedgerDirectionDebit:
			b.LedgerDebitsMinor += abs(total)
		}
	}

	b.CreditsMinor = b.PaidOutMinor + b.LedgerCreditsMinor
	b.DebitsMinor = b.LedgerDebitsMinor
	b.NetMinor = b.CreditsMinor - b.DebitsMinor
	if b.NetMinor > 0 {
		b.AvailableBalanceMinor = b.NetMinor
	}
	if b.NetMinor < 0 {
		b.OutstandingDebtMinor = -b.NetMinor
	}
	return b
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// SignedAmount returns the stored amount for an entry of the given type:
// positive for credits, negative for debits.
func SignedAmount(entryType enums.LedgerEntryType, magnitude int64) int64 {
	magnitude = abs(magnitude)
	if entryType.Direction() == enums.LedgerDirectionDebit {
		return -magnitude
	}
	return magnitude
}
