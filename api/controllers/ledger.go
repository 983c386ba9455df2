package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/ledger"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type ledgerService interface {
	Balance(ctx context.Context, supplierID uuid.UUID) (*ledger.Balance, error)
	ListEntries(ctx context.Context, params ledger.ListParams) (*ledger.EntryList, error)
	RecordAdjustment(ctx context.Context, input ledger.AdjustmentInput) (*models.SupplierLedgerEntry, error)
}

type ledgerAdjustmentRequest struct {
	Type            string  `json:"type" validate:"required"`
	AmountMinor     int64   `json:"amount_minor" validate:"gt=0"`
	PurchaseOrderID *string `json:"purchase_order_id" validate:"omitempty,uuid"`
	Note            string  `json:"note" validate:"required,max=1000"`
}

// SupplierBalance returns paid-out allocations net of ledger entries.
func SupplierBalance(svc ledgerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
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

		balance, err := svc.Balance(r.Context(), supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

func SupplierLedger(svc ledgerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
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
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListEntries(r.Context(), ledger.ListParams{SupplierID: supplierID, Params: page})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminLedgerAdjustment appends a manual credit or debit for a supplier.
func AdminLedgerAdjustment(svc ledgerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
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

		var body ledgerAdjustmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entryType, err := enums.ParseLedgerEntryType(strings.TrimSpace(body.Type))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry type"))
			return
		}

		input := ledger.AdjustmentInput{
			SupplierID:  supplierID,
			Type:        entryType,
			AmountMinor: body.AmountMinor,
			Note:        validators.SanitizeString(body.Note, maxRefundNoteLength),
			Actor:       actor,
		}
		if body.PurchaseOrderID != nil {
			poID, err := uuid.Parse(strings.TrimSpace(*body.PurchaseOrderID))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid purchase order id"))
				return
			}
			input.PurchaseOrderID = &poID
		}

		entry, err := svc.RecordAdjustment(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}
