package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID     uuid.UUID  `json:"userId"`
	SupplierID *uuid.UUID `json:"supplierId,omitempty"`
	Role       string     `json:"role,omitempty"`
}

// ActorOf converts an authenticated actor into an envelope reference.
func ActorOf(actor auth.Actor) *ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &ActorRef{
		UserID:     actor.UserID,
		SupplierID: actor.SupplierID,
		Role:       actor.Role.String(),
	}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
