package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

func TestComputeBalancePaidAllocationsAndDebits(t *testing.T) {
	supplierID := uuid.New()
	balance := ComputeBalance(supplierID,
		map[enums.AllocationStatus]int64{
			enums.AllocationStatusPaid:    1000,
			enums.AllocationStatusPending: 500,
		},
		map[enums.LedgerEntryType]int64{
			enums.LedgerEntryTypeRefundDebit: -200,
		},
	)

	assert.Equal(t, supplierID, balance.SupplierID)
	assert.Equal(t, int64(1000), balance.CreditsMinor)
	assert.Equal(t, int64(200), balance.DebitsMinor)
	assert.Equal(t, int64(800), balance.NetMinor)
	assert.Equal(t, int64(800), balance.AvailableBalanceMinor)
	assert.Equal(t, int64(0), balance.OutstandingDebtMinor)
	assert.Equal(t, int64(500), balance.Allocations.PendingMinor)
	assert.Equal(t, int64(1000), balance.Allocations.PaidOutMinor)
}

func TestComputeBalanceOutstandingDebt(t *testing.T) {
	balance := ComputeBalance(uuid.New(),
		map[enums.AllocationStatus]int64{
			enums.AllocationStatusPaid:     300,
			enums.AllocationStatusApproved: 700,
			enums.AllocationStatusHeld:     50,
			enums.AllocationStatusFailed:   25,
		},
		map[enums.LedgerEntryType]int64{
			enums.LedgerEntryTypePenaltyDebit:     -400,
			enums.LedgerEntryTypeAdjustmentCredit: 50,
		},
	)

	assert.Equal(t, int64(350), balance.CreditsMinor)
	assert.Equal(t, int64(50), balance.LedgerCreditsMinor)
	assert.Equal(t, int64(400), balance.DebitsMinor)
	assert.Equal(t, int64(-50), balance.NetMinor)
	assert.Equal(t, int64(0), balance.AvailableBalanceMinor)
	assert.Equal(t, int64(50), balance.OutstandingDebtMinor)
	assert.Equal(t, int64(700), balance.Allocations.ApprovedMinor)
	assert.Equal(t, int64(50), balance.Allocations.HeldMinor)
	assert.Equal(t, int64(25), balance.Allocations.FailedMinor)
}

func TestComputeBalanceEmpty(t *testing.T) {
	balance := ComputeBalance(uuid.New(), nil, nil)
	assert.Zero(t, balance.NetMinor)
	assert.Zero(t, balance.AvailableBalanceMinor)
	assert.Zero(t, balance.OutstandingDebtMinor)
}

func TestSignedAmount(t *testing.T) {
	assert.Equal(t, int64(-150), SignedAmount(enums.LedgerEntryTypeWithdrawalDebit, 150))
	assert.Equal(t, int64(150), SignedAmount(enums.LedgerEntryTypeReversalCredit, -150))
}
