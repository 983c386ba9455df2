package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/activity"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
)

// Cancellation and payment reasons reported in error details.
const (
	ReasonAmountMismatch   = "amount_mismatch"
	ReasonPaymentMismatch  = "payment_order_mismatch"
	ReasonPaymentCompleted = "payment_completed"
	ReasonOrderCompleted   = "order_completed"
	ReasonOrderCanceled    = "order_canceled"
)

// ActionCanceled is the activity log action written on cancellation.
const ActionCanceled = "order.canceled"

// Service defines order-level operations driven by payment signals and admins.
type Service interface {
	ConfirmPayment(ctx context.Context, input PaymentConfirmedInput) (*PaymentConfirmedResult, error)
	Cancel(ctx context.Context, input CancelInput) (*CancelResult, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	splitter Splitter
	activity activity.Repository
	notifier notifications.Notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, splitter Splitter, activityRepo activity.Repository, notifier notifications.Notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if splitter == nil {
		return nil, fmt.Errorf("purchase order splitter required")
	}
	if activityRepo == nil {
		return nil, fmt.Errorf("activity repository required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outbox,
		splitter: splitter,
		activity: activityRepo,
		notifier: notifier,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// ConfirmPayment records a payment signal keyed by the provider reference.
// A paid signal marks the order paid and splits it in the same transaction,
// so replays of the same signal change nothing.
func (s *service) ConfirmPayment(ctx context.Context, input PaymentConfirmedInput) (*PaymentConfirmedResult, error) {
	ref := strings.TrimSpace(input.PaymentRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	if input.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	var (
		result    *PaymentConfirmedResult
		newlyPaid bool
		rejection error
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Storage(err, "load order")
		}
		if input.AmountMinor != order.TotalMinor {
			return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonAmountMismatch, "payment amount does not match order total").
				WithDetail("expected_minor", order.TotalMinor).
				WithDetail("received_minor", input.AmountMinor)
		}

		now := s.now().UTC()
		payment, err := s.upsertPayment(ctx, repo, order, ref, input, now)
		if err != nil {
			return err
		}
		result = &PaymentConfirmedResult{Payment: *payment, OrderStatus: order.Status}
		if payment.Status != enums.PaymentStatusPaid {
			return nil
		}

		switch order.Status {
		case enums.OrderStatusCanceled:
			// The payment is kept for reconciliation; the order is not revived.
			rejection = pkgerrors.Reason(pkgerrors.CodeStateConflict, ReasonOrderCanceled, "order was canceled before payment")
			return nil
		case enums.OrderStatusCreated:
			ok, err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusCreated, enums.OrderStatusPaid, now)
			if err != nil {
				return pkgerrors.Storage(err, "mark order paid")
			}
			if !ok {
				return pkgerrors.Reason(pkgerrors.CodeConflict, pkgerrors.ReasonRetry, "order changed concurrently, try again")
			}
			newlyPaid = true
			result.OrderStatus = enums.OrderStatusPaid

			event := outbox.DomainEvent{
				EventType:     enums.EventOrderPaid,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         outbox.ActorOf(input.Actor),
				Data: payloads.OrderPaidEvent{
					OrderID:     order.ID,
					PaymentID:   payment.ID,
					PaymentRef:  payment.ProviderRef,
					AmountMinor: payment.AmountMinor,
					PaidAt:      now,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid")
			}
		}

		split, err := s.splitter.SplitTx(ctx, tx, order.ID, input.Actor)
		if err != nil {
			return err
		}
		result.Split = split
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		s.logg.Warn(s.logg.WithField(ctx, "order_id", input.OrderID.String()), "payment received for canceled order")
		return nil, rejection
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       input.OrderID.String(),
		"payment_id":     result.Payment.ID.String(),
		"payment_status": string(result.Payment.Status),
	})
	if newlyPaid {
		s.logg.Info(logCtx, "order.paid")
	} else {
		s.logg.Info(logCtx, "payment.recorded")
	}
	if result.Split != nil {
		s.splitter.AfterSplit(ctx, result.Split)
	}
	return result, nil
}

func (s *service) upsertPayment(ctx context.Context, repo Repository, order *models.Order, ref string, input PaymentConfirmedInput, now time.Time) (*models.Payment, error) {
	var confirmedAt *time.Time
	if input.Status == enums.PaymentStatusPaid {
		confirmedAt = &now
	}

	payment, err := repo.FindPaymentByRef(ctx, ref)
	if err != nil {
		return nil, pkgerrors.Storage(err, "load payment")
	}
	if payment == nil {
		payment = &models.Payment{
			OrderID:     order.ID,
			ProviderRef: ref,
			AmountMinor: input.AmountMinor,
			Status:      input.Status,
			ConfirmedAt: confirmedAt,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "ux_payments_provider_ref") {
				return nil, pkgerrors.Reason(pkgerrors.CodeConflict, pkgerrors.ReasonRetry, "payment recorded concurrently, try again")
			}
			return nil, pkgerrors.Storage(err, "create payment")
		}
		return payment, nil
	}

	if payment.OrderID != order.ID {
		return nil, pkgerrors.Reason(pkgerrors.CodeValidation, ReasonPaymentMismatch, "payment reference belongs to another order")
	}
	if !paymentAdvances(payment.Status, input.Status) {
		return payment, nil
	}
	if payment.ConfirmedAt != nil {
		confirmedAt = nil
	}
	if err := repo.UpdatePaymentStatus(ctx, payment.ID, input.Status, confirmedAt); err != nil {
		return nil, pkgerrors.Storage(err, "update payment")
	}
	payment.Status = input.Status
	if confirmedAt != nil {
		payment.ConfirmedAt = confirmedAt
	}
	return payment, nil
}

// paymentAdvances reports whether a stored payment may move to next. Paid
// payments only move to refunded and refunded is final.
func paymentAdvances(current, next enums.PaymentStatus) bool {
	switch current {
	case next, enums.PaymentStatusRefunded:
		return false
	case enums.PaymentStatusPaid:
		return next == enums.PaymentStatusRefunded
	default:
		return true
	}
}

// Cancel returns reserved inventory and cancels an order that was never paid.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*CancelResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can cancel orders")
	}

	var result *CancelResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Storage(err, "load order")
		}

		paid, err := repo.HasSuccessfulPayment(ctx, order.ID)
		if err != nil {
			return pkgerrors.Storage(err, "load payments")
		}
		if paid || order.Status == enums.OrderStatusPaid {
			return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonPaymentCompleted, "order has a completed payment")
		}
		switch order.Status {
		case enums.OrderStatusCompleted:
			return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonOrderCompleted, "order is already completed")
		case enums.OrderStatusCanceled:
			return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonOrderCanceled, "order is already canceled")
		}

		now := s.now().UTC()
		restocked := 0
		for _, item := range order.Items {
			if !item.InventoryReserved {
				continue
			}
			offer, err := item.Offer()
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve item offer")
			}
			ok, err := repo.Restock(ctx, offer, item.Quantity, now)
			if err != nil {
				return pkgerrors.Storage(err, "restock offer")
			}
			if !ok {
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
					"order_item_id": item.ID.String(),
					"offer":         offer.String(),
				}), "restock skipped, offer missing")
			} else {
				restocked++
			}
			if err := repo.ClearReservation(ctx, item.ID); err != nil {
				return pkgerrors.Storage(err, "clear reservation")
			}
		}

		ok, err := repo.UpdateOrderStatus(ctx, order.ID, order.Status, enums.OrderStatusCanceled, now)
		if err != nil {
			return pkgerrors.Storage(err, "cancel order")
		}
		if !ok {
			return pkgerrors.Reason(pkgerrors.CodeConflict, pkgerrors.ReasonRetry, "order changed concurrently, try again")
		}
		order.Status = enums.OrderStatusCanceled
		order.CanceledAt = &now

		if err := s.activity.WithTx(tx).Record(ctx, activity.Entry{
			SubjectType: activity.SubjectOrder,
			SubjectID:   order.ID,
			Action:      ActionCanceled,
			ActorID:     input.Actor.UserRef(),
			Metadata:    map[string]any{"restocked_items": restocked},
		}); err != nil {
			return pkgerrors.Storage(err, "record cancellation")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.ActorOf(input.Actor),
			Data: payloads.OrderCanceledEvent{
				OrderID:        order.ID,
				CanceledBy:     input.Actor.UserID,
				CanceledAt:     now,
				RestockedItems: restocked,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order canceled")
		}

		result = &CancelResult{Order: *order, RestockedItems: restocked}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":        result.Order.ID.String(),
		"restocked_items": result.RestockedItems,
	})
	s.logg.Info(logCtx, "order.canceled")
	s.notifier.Notify(ctx, notifications.OrderCanceled(result.Order))
	return result, nil
}
