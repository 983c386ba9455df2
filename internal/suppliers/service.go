package suppliers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages the payout profile that gates supplier payouts.
type Service interface {
	GetPayoutProfile(ctx context.Context, supplierID uuid.UUID, actor auth.Actor) (*models.SupplierPayoutProfile, error)
	UpsertPayoutProfile(ctx context.Context, input UpsertProfileInput) (*models.SupplierPayoutProfile, error)
	SetVerification(ctx context.Context, input VerificationInput) (*models.SupplierPayoutProfile, error)
	Contact(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error)
}

// UpsertProfileInput carries the bank details a supplier submits.
type UpsertProfileInput struct {
	SupplierID    uuid.UUID
	ContactEmail  string
	ContactPhone  *string
	BankName      string
	BankCode      string
	AccountNumber string
	AccountName   string
	Actor         auth.Actor
}

// VerificationInput is an admin review decision on a payout profile.
type VerificationInput struct {
	SupplierID uuid.UUID
	Status     enums.PayoutVerificationStatus
	Actor      auth.Actor
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService builds the supplier profile service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("suppliers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) GetPayoutProfile(ctx context.Context, supplierID uuid.UUID, actor auth.Actor) (*models.SupplierPayoutProfile, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context required")
	}
	if !actor.CanManageSupplier(supplierID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier access denied")
	}
	profile, err := s.repo.FindProfile(ctx, supplierID)
	if err != nil {
		return nil, pkgerrors.Storage(err, "load payout profile")
	}
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout profile not found")
	}
	return profile, nil
}

// UpsertPayoutProfile stores bank details. Changing any bank field sends the
// profile back to pending review.
func (s *service) UpsertPayoutProfile(ctx context.Context, input UpsertProfileInput) (*models.SupplierPayoutProfile, error) {
	if input.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context required")
	}
	if !input.Actor.ActsForSupplier(input.SupplierID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the supplier may edit its payout profile")
	}
	email := strings.TrimSpace(input.ContactEmail)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact email required")
	}

	var saved *models.SupplierPayoutProfile
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		profile, err := repo.FindProfileForUpdate(ctx, input.SupplierID)
		if err != nil {
			return pkgerrors.Storage(err, "load payout profile")
		}
		if profile == nil {
			profile = &models.SupplierPayoutProfile{
				SupplierID:         input.SupplierID,
				VerificationStatus: enums.PayoutVerificationUnverified,
			}
		}

		bankChanged := profile.BankName != strings.TrimSpace(input.BankName) ||
			profile.BankCode != strings.TrimSpace(input.BankCode) ||
			profile.AccountNumber != strings.TrimSpace(input.AccountNumber) ||
			profile.AccountName != strings.TrimSpace(input.AccountName)

		profile.ContactEmail = email
		profile.ContactPhone = input.ContactPhone
		profile.BankName = strings.TrimSpace(input.BankName)
		profile.BankCode = strings.TrimSpace(input.BankCode)
		profile.AccountNumber = strings.TrimSpace(input.AccountNumber)
		profile.AccountName = strings.TrimSpace(input.AccountName)
		if bankChanged {
			profile.VerificationStatus = enums.PayoutVerificationUnverified
			if profile.HasCompleteBankDetails() {
				profile.VerificationStatus = enums.PayoutVerificationPending
			}
		}

		if err := repo.SaveProfile(ctx, profile); err != nil {
			return pkgerrors.Storage(err, "save payout profile")
		}
		saved = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) SetVerification(ctx context.Context, input VerificationInput) (*models.SupplierPayoutProfile, error) {
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid verification status")
	}

	var saved *models.SupplierPayoutProfile
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		profile, err := repo.FindProfileForUpdate(ctx, input.SupplierID)
		if err != nil {
			return pkgerrors.Storage(err, "load payout profile")
		}
		if profile == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payout profile not found")
		}
		if input.Status == enums.PayoutVerificationVerified && !profile.HasCompleteBankDetails() {
			return pkgerrors.Reason(pkgerrors.CodeConflict, "incomplete_bank_details", "bank details incomplete")
		}
		profile.VerificationStatus = input.Status
		if err := repo.SaveProfile(ctx, profile); err != nil {
			return pkgerrors.Storage(err, "save payout profile")
		}
		saved = profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"supplier_id": input.SupplierID.String(),
		"status":      string(input.Status),
	})
	s.logg.Info(logCtx, "supplier.payout_profile_reviewed")
	return saved, nil
}

// Contact returns the supplier profile for notification routing, or nil when
// the supplier has none.
func (s *service) Contact(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error) {
	profile, err := s.repo.FindProfile(ctx, supplierID)
	if err != nil {
		return nil, pkgerrors.Storage(err, "load supplier contact")
	}
	return profile, nil
}
