package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/suppliers"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type payoutProfileService interface {
	GetPayoutProfile(ctx context.Context, supplierID uuid.UUID, actor auth.Actor) (*models.SupplierPayoutProfile, error)
	UpsertPayoutProfile(ctx context.Context, input suppliers.UpsertProfileInput) (*models.SupplierPayoutProfile, error)
	SetVerification(ctx context.Context, input suppliers.VerificationInput) (*models.SupplierPayoutProfile, error)
}

type payoutProfileRequest struct {
	ContactEmail  string  `json:"contact_email" validate:"required,email"`
	ContactPhone  *string `json:"contact_phone" validate:"omitempty,max=32"`
	BankName      string  `json:"bank_name" validate:"max=128"`
	BankCode      string  `json:"bank_code" validate:"max=32"`
	AccountNumber string  `json:"account_number" validate:"omitempty,numeric,max=34"`
	AccountName   string  `json:"account_name" validate:"max=128"`
}

type verificationRequest struct {
	Status string `json:"status" validate:"required,oneof=pending verified rejected"`
}

func SupplierPayoutProfile(svc payoutProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "suppliers service unavailable"))
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		supplierID, ok := supplierScope(w, r, logg, actor)
		if !ok {
			return
		}

		profile, err := svc.GetPayoutProfile(r.Context(), supplierID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// UpsertSupplierPayoutProfile saves the calling supplier's contact and bank details.
func UpsertSupplierPayoutProfile(svc payoutProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "suppliers service unavailable"))
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if actor.SupplierID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "supplier access required"))
			return
		}

		var body payoutProfileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := suppliers.UpsertProfileInput{
			SupplierID:    *actor.SupplierID,
			ContactEmail:  strings.ToLower(strings.TrimSpace(body.ContactEmail)),
			BankName:      validators.SanitizeString(body.BankName, 128),
			BankCode:      validators.SanitizeString(body.BankCode, 32),
			AccountNumber: strings.TrimSpace(body.AccountNumber),
			AccountName:   validators.SanitizeString(body.AccountName, 128),
			Actor:         actor,
		}
		if body.ContactPhone != nil {
			phone := strings.TrimSpace(*body.ContactPhone)
			input.ContactPhone = &phone
		}

		profile, err := svc.UpsertPayoutProfile(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// AdminSupplierVerification records the review decision on a payout profile.
func AdminSupplierVerification(svc payoutProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "suppliers service unavailable"))
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		supplierID, err := validators.ParseURLUUID(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body verificationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParsePayoutVerificationStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid verification status"))
			return
		}

		profile, err := svc.SetVerification(r.Context(), suppliers.VerificationInput{
			SupplierID: supplierID,
			Status:     status,
			Actor:      actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}
