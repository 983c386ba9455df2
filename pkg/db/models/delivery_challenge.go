package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// DeliveryChallenge is one issued delivery code for a purchase order. Only the
// salted hash of the code is stored.
type DeliveryChallenge struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PurchaseOrderID uuid.UUID  `gorm:"column:purchase_order_id;type:uuid;not null;index" json:"purchase_order_id"`
	CodeHash        string     `gorm:"column:code_hash;type:text;not null" json:"-"`
	IssuedBy        uuid.UUID  `gorm:"column:issued_by;type:uuid;not null" json:"issued_by"`
	IssuedAt        time.Time  `gorm:"column:issued_at;not null" json:"issued_at"`
	ExpiresAt       time.Time  `gorm:"column:expires_at;not null" json:"expires_at"`
	Attempts        int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LockedUntil     *time.Time `gorm:"column:locked_until" json:"locked_until,omitempty"`
	VerifiedAt      *time.Time `gorm:"column:verified_at" json:"verified_at,omitempty"`
	VerifiedBy      *uuid.UUID `gorm:"column:verified_by;type:uuid" json:"verified_by,omitempty"`
	ConsumedAt      *time.Time `gorm:"column:consumed_at" json:"consumed_at,omitempty"`
	SupersededAt    *time.Time `gorm:"column:superseded_at" json:"superseded_at,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (m *DeliveryChallenge) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// State derives the challenge state at the given instant.
func (m *DeliveryChallenge) State(now time.Time) enums.ChallengeState {
	switch {
	case m == nil:
		return enums.ChallengeStateNone
	case m.VerifiedAt != nil:
		return enums.ChallengeStateVerified
	case m.LockedUntil != nil && now.Before(*m.LockedUntil):
		return enums.ChallengeStateLocked
	case !now.Before(m.ExpiresAt):
		return enums.ChallengeStateExpired
	default:
		return enums.ChallengeStateIssued
	}
}
