package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Actor is the authenticated principal a domain operation runs on behalf of.
type Actor struct {
	UserID     uuid.UUID
	SupplierID *uuid.UUID
	Role       enums.ActorRole
}

// ActorFromClaims builds an Actor from verified token claims.
func ActorFromClaims(claims *AccessTokenClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{
		UserID:     claims.UserID,
		SupplierID: claims.SupplierID,
		Role:       claims.Role,
	}
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.ActorRoleAdmin
}

// IsPrivileged reports whether the actor is an admin or an internal service.
func (a Actor) IsPrivileged() bool {
	return a.Role == enums.ActorRoleAdmin || a.Role == enums.ActorRoleService
}

// ActsForSupplier reports whether the actor is the given supplier.
func (a Actor) ActsForSupplier(supplierID uuid.UUID) bool {
	return a.Role == enums.ActorRoleSupplier && a.SupplierID != nil && *a.SupplierID == supplierID
}

// CanManageSupplier reports whether the actor may act on the supplier's records.
func (a Actor) CanManageSupplier(supplierID uuid.UUID) bool {
	return a.IsAdmin() || a.ActsForSupplier(supplierID)
}

// UserRef returns the user id as a pointer, nil for the zero id.
func (a Actor) UserRef() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
