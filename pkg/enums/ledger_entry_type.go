package enums

import "fmt"

// LedgerDirection classifies a ledger entry as adding to or taking from a balance.
type LedgerDirection string

const (
	LedgerDirectionCredit LedgerDirection = "credit"
	LedgerDirectionDebit  LedgerDirection = "debit"
)

// LedgerEntryType enumerates manual supplier balance adjustments.
type LedgerEntryType string

const (
	LedgerEntryTypeRefundDebit      LedgerEntryType = "refund_debit"
	LedgerEntryTypeWithdrawalDebit  LedgerEntryType = "withdrawal_debit"
	LedgerEntryTypePenaltyDebit     LedgerEntryType = "penalty_debit"
	LedgerEntryTypeAdjustmentCredit LedgerEntryType = "adjustment_credit"
	LedgerEntryTypeReversalCredit   LedgerEntryType = "reversal_credit"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeRefundDebit,
	LedgerEntryTypeWithdrawalDebit,
	LedgerEntryTypePenaltyDebit,
	LedgerEntryTypeAdjustmentCredit,
	LedgerEntryTypeReversalCredit,
}

// String implements fmt.Stringer.
func (t LedgerEntryType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known LedgerEntryType.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Direction reports whether the entry type credits or debits a supplier.
func (t LedgerEntryType) Direction() LedgerDirection {
	switch t {
	case LedgerEntryTypeAdjustmentCredit, LedgerEntryTypeReversalCredit:
		return LedgerDirectionCredit
	default:
		return LedgerDirectionDebit
	}
}

// ParseLedgerEntryType converts raw input into a LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
