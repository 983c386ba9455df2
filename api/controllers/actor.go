package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return auth.Actor{}, false
	}
	return actor, true
}

// supplierScope resolves which supplier a read targets. Suppliers always read
// their own records; admins must name one with ?supplier_id=.
func supplierScope(w http.ResponseWriter, r *http.Request, logg *logger.Logger, actor auth.Actor) (uuid.UUID, bool) {
	requested, err := validators.ParseQueryUUID(r, "supplier_id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}

	if actor.IsAdmin() {
		if requested == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "supplier_id is required").WithDetails(map[string]any{"field": "supplier_id"}))
			return uuid.Nil, false
		}
		return *requested, true
	}

	if actor.SupplierID == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "supplier access required"))
		return uuid.Nil, false
	}
	if requested != nil && *requested != *actor.SupplierID {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot read another supplier"))
		return uuid.Nil, false
	}
	return *actor.SupplierID, true
}
