package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	internalorders "github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/purchaseorders"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, input internalorders.PaymentConfirmedInput) (*internalorders.PaymentConfirmedResult, error)
}

type orderSplitter interface {
	Split(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*purchaseorders.SplitResult, error)
}

type paymentConfirmedRequest struct {
	OrderID     string `json:"order_id" validate:"required,uuid"`
	PaymentRef  string `json:"payment_ref" validate:"required,max=128"`
	AmountMinor int64  `json:"amount_minor" validate:"gt=0"`
	Status      string `json:"status" validate:"required,oneof=pending paid failed refunded"`
}

// InternalPaymentConfirmed records a gateway payment signal for an order.
func InternalPaymentConfirmed(svc paymentConfirmer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body paymentConfirmedRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(body.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}
		status, err := enums.ParsePaymentStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status"))
			return
		}

		result, err := svc.ConfirmPayment(r.Context(), internalorders.PaymentConfirmedInput{
			PaymentRef:  strings.TrimSpace(body.PaymentRef),
			OrderID:     orderID,
			AmountMinor: body.AmountMinor,
			Status:      status,
			Actor:       actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// InternalSplitOrder re-runs the purchase order split for a paid order.
func InternalSplitOrder(svc orderSplitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase orders service unavailable"))
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

		result, err := svc.Split(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if len(result.Created) > 0 {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}
