package enums

import "fmt"

// PayoutVerificationStatus gates whether a supplier may receive funds.
type PayoutVerificationStatus string

const (
	PayoutVerificationUnverified PayoutVerificationStatus = "unverified"
	PayoutVerificationPending    PayoutVerificationStatus = "pending"
	PayoutVerificationVerified   PayoutVerificationStatus = "verified"
	PayoutVerificationRejected   PayoutVerificationStatus = "rejected"
)

var validPayoutVerificationStatuses = []PayoutVerificationStatus{
	PayoutVerificationUnverified,
	PayoutVerificationPending,
	PayoutVerificationVerified,
	PayoutVerificationRejected,
}

// IsValid reports whether the value is a known PayoutVerificationStatus.
func (s PayoutVerificationStatus) IsValid() bool {
	for _, candidate := range validPayoutVerificationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePayoutVerificationStatus converts raw input into a PayoutVerificationStatus.
func ParsePayoutVerificationStatus(value string) (PayoutVerificationStatus, error) {
	for _, candidate := range validPayoutVerificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout verification status %q", value)
}
