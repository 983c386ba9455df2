package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// SupplierPayoutProfile holds the bank details a supplier is paid into.
type SupplierPayoutProfile struct {
	SupplierID         uuid.UUID                      `gorm:"column:supplier_id;type:uuid;primaryKey" json:"supplier_id"`
	ContactEmail       string                         `gorm:"column:contact_email;type:text;not null" json:"contact_email"`
	ContactPhone       *string                        `gorm:"column:contact_phone;type:text" json:"contact_phone,omitempty"`
	BankName           string                         `gorm:"column:bank_name;type:text;not null;default:''" json:"bank_name"`
	BankCode           string                         `gorm:"column:bank_code;type:text;not null;default:''" json:"bank_code"`
	AccountNumber      string                         `gorm:"column:account_number;type:text;not null;default:''" json:"account_number"`
	AccountName        string                         `gorm:"column:account_name;type:text;not null;default:''" json:"account_name"`
	VerificationStatus enums.PayoutVerificationStatus `gorm:"column:verification_status;type:payout_verification_status;not null;default:'unverified'" json:"verification_status"`
	CreatedAt          time.Time                      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// HasCompleteBankDetails reports whether every bank field is filled in.
func (m SupplierPayoutProfile) HasCompleteBankDetails() bool {
	for _, v := range []string{m.BankName, m.BankCode, m.AccountNumber, m.AccountName} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// IsPayoutReady reports whether funds may be released to the supplier.
func (m SupplierPayoutProfile) IsPayoutReady() bool {
	return m.VerificationStatus == enums.PayoutVerificationVerified && m.HasCompleteBankDetails()
}
