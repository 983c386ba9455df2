package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/actioncodes"
	internalorders "github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type actionCodeIssuer interface {
	Issue(ctx context.Context, action actioncodes.Action, subjectID uuid.UUID, actor auth.Actor) (*actioncodes.IssuedCode, error)
}

type actionCodeConsumer interface {
	Consume(ctx context.Context, action actioncodes.Action, subjectID uuid.UUID, code string, actor auth.Actor) error
}

type orderCanceler interface {
	Cancel(ctx context.Context, input internalorders.CancelInput) (*internalorders.CancelResult, error)
}

type cancelOrderRequest struct {
	Code string `json:"code" validate:"required,numeric"`
}

// AdminOrderCancelCode issues the one-time code that authorizes a cancellation.
func AdminOrderCancelCode(codes actionCodeIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if codes == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "action codes unavailable"))
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		issued, err := codes.Issue(r.Context(), actioncodes.ActionOrderCancel, orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, issued)
	}
}

// AdminCancelOrder consumes the cancel code and then cancels the unpaid order.
func AdminCancelOrder(codes actionCodeConsumer, svc orderCanceler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if codes == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := codes.Consume(r.Context(), actioncodes.ActionOrderCancel, orderID, strings.TrimSpace(body.Code), actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), internalorders.CancelInput{OrderID: orderID, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
