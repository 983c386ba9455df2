package enums

import "fmt"

// AllocationStatus tracks money owed to a supplier for one purchase order.
type AllocationStatus string

const (
	AllocationStatusPending  AllocationStatus = "pending"
	AllocationStatusApproved AllocationStatus = "approved"
	AllocationStatusHeld     AllocationStatus = "held"
	AllocationStatusPaid     AllocationStatus = "paid"
	AllocationStatusFailed   AllocationStatus = "failed"
)

var validAllocationStatuses = []AllocationStatus{
	AllocationStatusPending,
	AllocationStatusApproved,
	AllocationStatusHeld,
	AllocationStatusPaid,
	AllocationStatusFailed,
}

// ReleasableAllocationStatuses lists the statuses a payout release may consume.
var ReleasableAllocationStatuses = []AllocationStatus{
	AllocationStatusPending,
	AllocationStatusApproved,
}

// String implements fmt.Stringer.
func (s AllocationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AllocationStatus.
func (s AllocationStatus) IsValid() bool {
	for _, candidate := range validAllocationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsReleasable reports whether the allocation can move to paid.
func (s AllocationStatus) IsReleasable() bool {
	return s == AllocationStatusPending || s == AllocationStatusApproved
}

// CanTransitionTo reports whether next is a legal successor of s. Paid and
// failed are final.
func (s AllocationStatus) CanTransitionTo(next AllocationStatus) bool {
	switch s {
	case AllocationStatusPending:
		return next == AllocationStatusApproved || next == AllocationStatusHeld || next == AllocationStatusPaid || next == AllocationStatusFailed
	case AllocationStatusApproved:
		return next == AllocationStatusHeld || next == AllocationStatusPaid || next == AllocationStatusFailed
	case AllocationStatusHeld:
		return next == AllocationStatusApproved || next == AllocationStatusFailed
	case AllocationStatusPaid, AllocationStatusFailed:
		return false
	default:
		return false
	}
}

// ParseAllocationStatus converts raw input into an AllocationStatus.
func ParseAllocationStatus(value string) (AllocationStatus, error) {
	for _, candidate := range validAllocationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid allocation status %q", value)
}
