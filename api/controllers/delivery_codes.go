package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/deliverycodes"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type deliveryCodeService interface {
	Issue(ctx context.Context, input deliverycodes.IssueInput) (*deliverycodes.IssueResult, error)
	Verify(ctx context.Context, input deliverycodes.VerifyInput) (*deliverycodes.VerifyResult, error)
	Status(ctx context.Context, purchaseOrderID uuid.UUID, actor auth.Actor) (*deliverycodes.StatusResult, error)
}

type verifyDeliveryCodeRequest struct {
	Code string `json:"code" validate:"required,numeric"`
}

// IssueDeliveryCode starts a new delivery challenge. The code goes to the
// customer; the response only confirms issuance.
func IssueDeliveryCode(svc deliveryCodeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery codes service unavailable"))
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		poID, err := validators.ParseURLUUID(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Issue(r.Context(), deliverycodes.IssueInput{PurchaseOrderID: poID, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func VerifyDeliveryCode(svc deliveryCodeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery codes service unavailable"))
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		poID, err := validators.ParseURLUUID(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body verifyDeliveryCodeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Verify(r.Context(), deliverycodes.VerifyInput{
			PurchaseOrderID: poID,
			Code:            strings.TrimSpace(body.Code),
			Actor:           actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func DeliveryCodeStatus(svc deliveryCodeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery codes service unavailable"))
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		poID, err := validators.ParseURLUUID(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.Status(r.Context(), poID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
