package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/purchaseorders"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// PaymentConfirmedInput is the gateway signal that a payment changed state.
type PaymentConfirmedInput struct {
	PaymentRef  string
	OrderID     uuid.UUID
	AmountMinor int64
	Status      enums.PaymentStatus
	Actor       auth.Actor
}

// PaymentConfirmedResult reports the stored payment and, for paid signals,
// the purchase orders the order was split into.
type PaymentConfirmedResult struct {
	Payment     models.Payment              `json:"payment"`
	OrderStatus enums.OrderStatus           `json:"order_status"`
	Split       *purchaseorders.SplitResult `json:"split,omitempty"`
}

// CancelInput identifies the order an admin cancels. The one-time code is
// consumed at the HTTP boundary before Cancel runs.
type CancelInput struct {
	OrderID uuid.UUID
	Actor   auth.Actor
}

// CancelResult summarizes a completed cancellation.
type CancelResult struct {
	Order          models.Order `json:"order"`
	RestockedItems int          `json:"restocked_items"`
}
