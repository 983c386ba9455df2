package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Rejection reasons reported in error details.
const (
	ReasonNotDelivered          = "not_delivered"
	ReasonDeliveryNotVerified   = "delivery_not_verified"
	ReasonPayoutProfileNotReady = "payout_profile_not_ready"
	ReasonOrderNotPaid          = "order_not_paid"
	ReasonNothingToRelease      = "nothing_to_release"
	ReasonRefundPending         = "refund_pending"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type contactResolver interface {
	Contact(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error)
}

// Service releases supplier payouts and keeps allocations in step with
// purchase orders.
type Service interface {
	Release(ctx context.Context, input ReleaseInput) (*ReleaseResult, error)
	EnsureAllocation(ctx context.Context, tx *gorm.DB, payment models.Payment, po models.PurchaseOrder) error
	ListAllocations(ctx context.Context, params ListParams) (*AllocationList, error)
}

type ReleaseInput struct {
	PurchaseOrderID uuid.UUID
	Actor           auth.Actor
}

// ReleaseResult describes the allocation that was paid. AlreadyReleased is set
// when an earlier request had already released it.
type ReleaseResult struct {
	PurchaseOrderID uuid.UUID  `json:"purchase_order_id"`
	AllocationID    uuid.UUID  `json:"allocation_id"`
	SupplierID      uuid.UUID  `json:"supplier_id"`
	AmountMinor     int64      `json:"amount_minor"`
	AlreadyReleased bool       `json:"already_released"`
	ReleasedAt      *time.Time `json:"released_at,omitempty"`
}

type ListParams struct {
	SupplierID uuid.UUID
	Status     *enums.AllocationStatus
	pagination.Params
}

type AllocationList struct {
	Allocations []models.SupplierPaymentAllocation `json:"allocations"`
	NextCursor  string                             `json:"next_cursor,omitempty"`
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	contacts contactResolver
	notifier notifications.Notifier
	metrics  *metrics.FulfillmentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the payout service.
func NewService(repo Repository, tx txRunner, outboxPublisher outboxPublisher, contacts contactResolver, notifier notifications.Notifier, m *metrics.FulfillmentMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxPublisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if contacts == nil {
		return nil, fmt.Errorf("contact resolver required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outboxPublisher,
		contacts: contacts,
		notifier: notifier,
		metrics:  m,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func rejection(reason, message string) error {
	return pkgerrors.Reason(pkgerrors.CodeConflict, reason, message)
}

// Release pays out the eligible allocation of a delivered purchase order.
// Preconditions are checked in a fixed order so callers always see the first
// unmet one.
func (s *service) Release(ctx context.Context, input ReleaseInput) (*ReleaseResult, error) {
	if input.PurchaseOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order id required")
	}

	var (
		result *ReleaseResult
		po     *models.PurchaseOrder
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		po, err = repo.FindPurchaseOrderForUpdate(ctx, input.PurchaseOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
			}
			return pkgerrors.Storage(err, "load purchase order")
		}
		if !input.Actor.CanManageSupplier(po.SupplierID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "purchase order access denied")
		}

		if po.Status != enums.PurchaseOrderStatusDelivered {
			return rejection(ReasonNotDelivered, "purchase order has not been delivered")
		}
		// refund_requested_at stays set after the case closes, so the refund
		// row decides.
		refundOpen, err := repo.HasOpenRefund(ctx, po.ID)
		if err != nil {
			return pkgerrors.Storage(err, "load refund case")
		}
		if refundOpen {
			return rejection(ReasonRefundPending, "purchase order has an open refund case")
		}
		verified, err := repo.HasVerifiedChallenge(ctx, po.ID)
		if err != nil {
			return pkgerrors.Storage(err, "load delivery challenge")
		}
		if !verified || po.DeliveryUnverified {
			return rejection(ReasonDeliveryNotVerified, "delivery has not been confirmed with a delivery code")
		}
		profile, err := repo.FindProfile(ctx, po.SupplierID)
		if err != nil {
			return pkgerrors.Storage(err, "load payout profile")
		}
		if profile == nil || !profile.IsPayoutReady() {
			return rejection(ReasonPayoutProfileNotReady, "supplier payout profile is not verified")
		}
		payment, err := repo.FindPaidPayment(ctx, po.OrderID)
		if err != nil {
			return pkgerrors.Storage(err, "load order payment")
		}
		if payment == nil {
			return rejection(ReasonOrderNotPaid, "order has no confirmed payment")
		}

		allocations, err := repo.ListAllocationsForPurchaseOrder(ctx, payment.ID, po.ID, po.SupplierID)
		if err != nil {
			return pkgerrors.Storage(err, "load allocations")
		}
		eligible, paid := pickAllocations(allocations)
		if eligible == nil {
			if paid != nil {
				result = releaseResult(po, paid, true)
				return nil
			}
			return rejection(ReasonNothingToRelease, "no allocation is eligible for release")
		}

		now := s.now().UTC()
		ok, err := repo.ReleaseAllocation(ctx, eligible.ID, now, input.Actor.UserRef())
		if err != nil {
			return pkgerrors.Storage(err, "release allocation")
		}
		if !ok {
			return pkgerrors.Reason(pkgerrors.CodeConflict, pkgerrors.ReasonRetry, "allocation changed concurrently, try again")
		}
		if err := repo.MarkPurchaseOrderReleased(ctx, po.ID, now); err != nil {
			return pkgerrors.Storage(err, "mark purchase order released")
		}
		eligible.Status = enums.AllocationStatusPaid
		eligible.ReleasedAt = &now
		po.PayoutStatus = enums.PayoutStatusReleased
		po.PaidOutAt = &now

		event := outbox.DomainEvent{
			EventType:     enums.EventPayoutReleased,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   po.ID,
			Actor:         outbox.ActorOf(input.Actor),
			Data: payloads.PayoutReleasedEvent{
				PurchaseOrderID: po.ID,
				AllocationID:    eligible.ID,
				SupplierID:      po.SupplierID,
				AmountMinor:     eligible.AmountMinor,
				ReleasedBy:      input.Actor.UserID,
				ReleasedAt:      now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payout released")
		}
		result = releaseResult(po, eligible, false)
		return nil
	})
	if err != nil {
		if reason := pkgerrors.ReasonOf(err); reason != "" && reason != pkgerrors.ReasonRetry {
			s.metrics.PayoutRejected(reason)
		}
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"purchase_order_id": result.PurchaseOrderID.String(),
		"allocation_id":     result.AllocationID.String(),
		"supplier_id":       result.SupplierID.String(),
		"amount_minor":      result.AmountMinor,
	})
	if result.AlreadyReleased {
		s.logg.Info(logCtx, "payout.already_released")
		return result, nil
	}
	s.logg.Info(logCtx, "payout.released")
	s.metrics.PayoutReleased(result.AmountMinor)

	contact, err := s.contacts.Contact(ctx, po.SupplierID)
	if err != nil {
		s.logg.Warn(logCtx, "supplier contact lookup failed")
	}
	s.notifier.Notify(ctx, notifications.PayoutReleased(*po, result.AmountMinor, contact))
	return result, nil
}

// pickAllocations returns the first releasable allocation and the first paid
// one, if any.
func pickAllocations(allocations []models.SupplierPaymentAllocation) (eligible, paid *models.SupplierPaymentAllocation) {
	for i := range allocations {
		a := &allocations[i]
		switch {
		case a.Status.IsReleasable() && eligible == nil:
			eligible = a
		case a.Status == enums.AllocationStatusPaid && paid == nil:
			paid = a
		}
	}
	return eligible, paid
}

func releaseResult(po *models.PurchaseOrder, allocation *models.SupplierPaymentAllocation, already bool) *ReleaseResult {
	return &ReleaseResult{
		PurchaseOrderID: po.ID,
		AllocationID:    allocation.ID,
		SupplierID:      po.SupplierID,
		AmountMinor:     allocation.AmountMinor,
		AlreadyReleased: already,
		ReleasedAt:      allocation.ReleasedAt,
	}
}

// EnsureAllocation creates the pending allocation for a paid purchase order or
// resyncs its amount while it is still pending or approved. Held, paid and
// failed allocations are left alone.
func (s *service) EnsureAllocation(ctx context.Context, tx *gorm.DB, payment models.Payment, po models.PurchaseOrder) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if !payment.Status.IsSuccessful() {
		return nil
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindAllocation(ctx, payment.ID, po.ID, po.SupplierID)
	if err != nil {
		return pkgerrors.Storage(err, "load allocation")
	}
	if existing == nil {
		allocation := &models.SupplierPaymentAllocation{
			PaymentID:       payment.ID,
			PurchaseOrderID: po.ID,
			SupplierID:      po.SupplierID,
			AmountMinor:     po.AmountOwedMinor,
			Status:          enums.AllocationStatusPending,
		}
		if err := repo.CreateAllocation(ctx, allocation); err != nil {
			if db.IsUniqueViolation(err, "ux_allocations_payment_po_supplier") {
				return pkgerrors.Reason(pkgerrors.CodeConflict, pkgerrors.ReasonRetry, "allocation created concurrently, try again")
			}
			return pkgerrors.Storage(err, "create allocation")
		}
		return nil
	}

	if !existing.Status.IsReleasable() || existing.AmountMinor == po.AmountOwedMinor {
		return nil
	}
	if _, err := repo.ResyncAllocationAmount(ctx, existing.ID, po.AmountOwedMinor); err != nil {
		return pkgerrors.Storage(err, "resync allocation")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"allocation_id": existing.ID.String(),
		"from_minor":    existing.AmountMinor,
		"to_minor":      po.AmountOwedMinor,
	})
	s.logg.Info(logCtx, "allocation.resynced")
	return nil
}

func (s *service) ListAllocations(ctx context.Context, params ListParams) (*AllocationList, error) {
	if params.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context required")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	query := listQuery{
		supplierID: params.SupplierID,
		status:     params.Status,
		limit:      pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.ListAllocations(ctx, query)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list allocations")
	}
	page, next := pagination.Trim(rows, params.Limit, func(a models.SupplierPaymentAllocation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return &AllocationList{Allocations: page, NextCursor: next}, nil
}
