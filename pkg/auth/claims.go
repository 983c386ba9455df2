package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// AccessTokenPayload is what the identity side supplies when minting.
type AccessTokenPayload struct {
	UserID     uuid.UUID
	SupplierID *uuid.UUID
	Role       enums.ActorRole
	JTI        string
}

// AccessTokenClaims is the token body. Suppliers always carry the supplier
// they act for.
type AccessTokenClaims struct {
	UserID     uuid.UUID       `json:"user_id"`
	SupplierID *uuid.UUID      `json:"supplier_id,omitempty"`
	Role       enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

var (
	errMissingUser     = errors.New("token has no user id")
	errMissingSupplier = errors.New("supplier token has no supplier id")
)

// Validate runs after the registered claims check, both when minting and
// when parsing.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errMissingUser
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid actor role %q", c.Role)
	}
	if c.Role == enums.ActorRoleSupplier && (c.SupplierID == nil || *c.SupplierID == uuid.Nil) {
		return errMissingSupplier
	}
	return nil
}
