package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/purchaseorders"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
)

// Repository defines persistence operations for orders, payments and the
// inventory reserved by order items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindPaymentByRef(ctx context.Context, providerRef string) (*models.Payment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status enums.PaymentStatus, confirmedAt *time.Time) error
	HasSuccessfulPayment(ctx context.Context, orderID uuid.UUID) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
	Restock(ctx context.Context, offer models.Offer, quantity int, at time.Time) (bool, error)
	ClearReservation(ctx context.Context, itemID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Splitter materializes purchase orders for a paid order inside the caller's
// transaction.
type Splitter interface {
	SplitTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor) (*purchaseorders.SplitResult, error)
	AfterSplit(ctx context.Context, result *purchaseorders.SplitResult)
}
