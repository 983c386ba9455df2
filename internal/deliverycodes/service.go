// Package deliverycodes issues and verifies the one-time codes customers read
// out to confirm a purchase order was delivered.
package deliverycodes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fulfillment-backend/pkg/security"
)

// Failure reasons reported in error details.
const (
	ReasonNotDeliverable    = "not_deliverable"
	ReasonCooldown          = "cooldown"
	ReasonInvalidFormat     = "invalid_format"
	ReasonNoActiveChallenge = "no_active_challenge"
	ReasonLocked            = "locked"
	ReasonExpired           = "expired"
	ReasonIncorrect         = "incorrect"
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

type Service interface {
	Issue(ctx context.Context, input IssueInput) (*IssueResult, error)
	Verify(ctx context.Context, input VerifyInput) (*VerifyResult, error)
	Status(ctx context.Context, purchaseOrderID uuid.UUID, actor auth.Actor) (*StatusResult, error)
}

type IssueInput struct {
	PurchaseOrderID uuid.UUID
	Actor           auth.Actor
}

// IssueResult never carries the code; it is sent to the customer only.
type IssueResult struct {
	ChallengeID     uuid.UUID `json:"challenge_id"`
	PurchaseOrderID uuid.UUID `json:"purchase_order_id"`
	CodeLength      int       `json:"code_length"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type VerifyInput struct {
	PurchaseOrderID uuid.UUID
	Code            string
	Actor           auth.Actor
}

type VerifyResult struct {
	PurchaseOrderID uuid.UUID  `json:"purchase_order_id"`
	ChallengeID     uuid.UUID  `json:"challenge_id"`
	VerifiedAt      time.Time  `json:"verified_at"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	AlreadyVerified bool       `json:"already_verified"`
}

type StatusResult struct {
	PurchaseOrderID   uuid.UUID            `json:"purchase_order_id"`
	State             enums.ChallengeState `json:"state"`
	ExpiresAt         *time.Time           `json:"expires_at,omitempty"`
	LockedUntil       *time.Time           `json:"locked_until,omitempty"`
	AttemptsRemaining int                  `json:"attempts_remaining"`
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	contacts contactResolver
	notifier notifications.Notifier
	cfg      config.DeliveryConfig
	metrics  *metrics.FulfillmentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx txRunner, outboxPublisher outboxPublisher, contacts contactResolver, notifier notifications.Notifier, cfg config.DeliveryConfig, m *metrics.FulfillmentMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery codes repository required")
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
	if cfg.CodeLength <= 0 || cfg.CodeTTL <= 0 || cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("delivery code length, ttl and max attempts must be positive")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outboxPublisher,
		contacts: contacts,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func deliverable(po *models.PurchaseOrder) bool {
	switch po.Status {
	case enums.PurchaseOrderStatusShipped, enums.PurchaseOrderStatusOutForDelivery:
		return true
	case enums.PurchaseOrderStatusDelivered:
		return po.DeliveryUnverified
	default:
		return false
	}
}

func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func (s *service) loadPurchaseOrder(ctx context.Context, repo Repository, id uuid.UUID, actor auth.Actor) (*models.PurchaseOrder, error) {
	po, err := repo.FindPurchaseOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
		}
		return nil, pkgerrors.Storage(err, "load purchase order")
	}
	if !actor.CanManageSupplier(po.SupplierID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "purchase order access denied")
	}
	return po, nil
}

// Issue creates a fresh challenge for a deliverable purchase order and sends
// the code to the customer. Earlier unverified challenges are superseded.
func (s *service) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	if input.PurchaseOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order id required")
	}

	var (
		result *IssueResult
		po     *models.PurchaseOrder
		order  *models.Order
		code   string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		po, err = s.loadPurchaseOrder(ctx, repo, input.PurchaseOrderID, input.Actor)
		if err != nil {
			return err
		}
		if !deliverable(po) {
			return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonNotDeliverable, "purchase order is not awaiting delivery").
				WithDetail("current_status", string(po.Status))
		}

		now := s.now().UTC()
		latest, err := repo.LatestChallenge(ctx, po.ID)
		if err != nil {
			return pkgerrors.Storage(err, "load latest challenge")
		}
		if latest != nil {
			if wait := latest.IssuedAt.Add(s.cfg.IssueCooldown).Sub(now); wait > 0 {
				return pkgerrors.Reason(pkgerrors.CodeRateLimit, ReasonCooldown, "a delivery code was issued recently").
					WithDetail("retry_after_seconds", retryAfterSeconds(wait))
			}
		}

		code, err = security.GenerateNumericCode(s.cfg.CodeLength)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate delivery code")
		}
		hash, err := security.HashCode(code, s.cfg.Hash)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash delivery code")
		}

		if err := repo.SupersedeActive(ctx, po.ID, now); err != nil {
			return pkgerrors.Storage(err, "supersede delivery challenges")
		}
		challenge := &models.DeliveryChallenge{
			PurchaseOrderID: po.ID,
			CodeHash:        hash,
			IssuedBy:        input.Actor.UserID,
			IssuedAt:        now,
			ExpiresAt:       now.Add(s.cfg.CodeTTL),
		}
		if err := repo.CreateChallenge(ctx, challenge); err != nil {
			return pkgerrors.Storage(err, "create delivery challenge")
		}

		order, err = repo.FindOrder(ctx, po.OrderID)
		if err != nil {
			return pkgerrors.Storage(err, "load order")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventDeliveryCodeIssued,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   po.ID,
			Actor:         outbox.ActorOf(input.Actor),
			Data: payloads.DeliveryCodeIssuedEvent{
				PurchaseOrderID: po.ID,
				ChallengeID:     challenge.ID,
				IssuedBy:        input.Actor.UserID,
				ExpiresAt:       challenge.ExpiresAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit delivery code issued")
		}

		result = &IssueResult{
			ChallengeID:     challenge.ID,
			PurchaseOrderID: po.ID,
			CodeLength:      s.cfg.CodeLength,
			ExpiresAt:       challenge.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CodeIssued()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"purchase_order_id": result.PurchaseOrderID.String(),
		"challenge_id":      result.ChallengeID.String(),
	})
	s.logg.Info(logCtx, "delivery_code.issued")
	s.notifier.Notify(ctx, notifications.DeliveryCodeIssued(*po, order, code, result.ExpiresAt))
	return result, nil
}

// Verify checks a code against the active challenge. A wrong code is counted
// even though the call fails, so the attempt is committed before the error is
// returned.
func (s *service) Verify(ctx context.Context, input VerifyInput) (*VerifyResult, error) {
	if input.PurchaseOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order id required")
	}
	if !security.IsNumericCode(input.Code, s.cfg.CodeLength) {
		s.metrics.CodeVerification(ReasonInvalidFormat)
		return nil, pkgerrors.Reason(pkgerrors.CodeValidation, ReasonInvalidFormat,
			fmt.Sprintf("delivery code must be %d digits", s.cfg.CodeLength))
	}

	var (
		result    *VerifyResult
		po        *models.PurchaseOrder
		rejection error
		lockedNow bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		po, err = s.loadPurchaseOrder(ctx, repo, input.PurchaseOrderID, input.Actor)
		if err != nil {
			return err
		}

		challenge, err := repo.ActiveChallengeForUpdate(ctx, po.ID)
		if err != nil {
			return pkgerrors.Storage(err, "load delivery challenge")
		}
		if challenge == nil {
			return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonNoActiveChallenge, "no delivery code has been issued")
		}
		if challenge.VerifiedAt != nil {
			result = &VerifyResult{
				PurchaseOrderID: po.ID,
				ChallengeID:     challenge.ID,
				VerifiedAt:      *challenge.VerifiedAt,
				DeliveredAt:     po.DeliveredAt,
				AlreadyVerified: true,
			}
			return nil
		}

		now := s.now().UTC()
		switch challenge.State(now) {
		case enums.ChallengeStateLocked:
			return pkgerrors.Reason(pkgerrors.CodeRateLimit, ReasonLocked, "too many incorrect attempts").
				WithDetail("retry_after_seconds", retryAfterSeconds(challenge.LockedUntil.Sub(now)))
		case enums.ChallengeStateExpired:
			return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonExpired, "delivery code has expired")
		}

		match, err := security.VerifyCode(input.Code, challenge.CodeHash)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify delivery code")
		}
		if !match {
			attempts := challenge.Attempts + 1
			var lockedUntil *time.Time
			if attempts >= s.cfg.MaxAttempts {
				until := now.Add(s.cfg.Lockout)
				lockedUntil = &until
				lockedNow = true
			}
			if err := repo.RecordFailedAttempt(ctx, challenge.ID, attempts, lockedUntil); err != nil {
				return pkgerrors.Storage(err, "record failed attempt")
			}
			remaining := s.cfg.MaxAttempts - attempts
			if remaining < 0 {
				remaining = 0
			}
			rejection = pkgerrors.Reason(pkgerrors.CodeValidation, ReasonIncorrect, "delivery code is incorrect").
				WithDetail("attempts_remaining", remaining)
			return nil
		}

		if po.Status != enums.PurchaseOrderStatusDelivered && !po.Status.CanTransitionTo(enums.PurchaseOrderStatusDelivered) {
			return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonNotDeliverable, "purchase order is not awaiting delivery").
				WithDetail("current_status", string(po.Status))
		}

		verifiedBy := input.Actor.UserID
		ok, err := repo.MarkVerified(ctx, challenge.ID, now, verifiedBy)
		if err != nil {
			return pkgerrors.Storage(err, "mark challenge verified")
		}
		if !ok {
			return pkgerrors.Reason(pkgerrors.CodeConflict, pkgerrors.ReasonRetry, "delivery code verified concurrently, try again")
		}

		if po.Status == enums.PurchaseOrderStatusDelivered {
			if err := repo.ClearDeliveryUnverified(ctx, po.ID); err != nil {
				return pkgerrors.Storage(err, "confirm delivery")
			}
		} else {
			if err := repo.MarkDelivered(ctx, po.ID, now, verifiedBy); err != nil {
				return pkgerrors.Storage(err, "mark purchase order delivered")
			}
			po.Status = enums.PurchaseOrderStatusDelivered
			po.DeliveredAt = &now
			po.DeliveredBy = &verifiedBy
		}
		po.DeliveryUnverified = false

		event := outbox.DomainEvent{
			EventType:     enums.EventDeliveryConfirmed,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   po.ID,
			Actor:         outbox.ActorOf(input.Actor),
			Data: payloads.DeliveryConfirmedEvent{
				PurchaseOrderID: po.ID,
				OrderID:         po.OrderID,
				SupplierID:      po.SupplierID,
				ChallengeID:     challenge.ID,
				VerifiedBy:      verifiedBy,
				DeliveredAt:     *po.DeliveredAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit delivery confirmed")
		}

		result = &VerifyResult{
			PurchaseOrderID: po.ID,
			ChallengeID:     challenge.ID,
			VerifiedAt:      now,
			DeliveredAt:     po.DeliveredAt,
		}
		return nil
	})
	if err == nil && rejection != nil {
		err = rejection
	}
	if err != nil {
		reason := pkgerrors.ReasonOf(err)
		if reason != "" && reason != pkgerrors.ReasonRetry {
			s.metrics.CodeVerification(reason)
		}
		if reason == ReasonIncorrect {
			logCtx := s.logg.WithField(ctx, "purchase_order_id", input.PurchaseOrderID.String())
			if lockedNow {
				s.logg.Warn(logCtx, "delivery_code.locked")
			} else {
				s.logg.Warn(logCtx, "delivery_code.incorrect")
			}
		}
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"purchase_order_id": result.PurchaseOrderID.String(),
		"challenge_id":      result.ChallengeID.String(),
	})
	if result.AlreadyVerified {
		s.metrics.CodeVerification("already_verified")
		s.logg.Info(logCtx, "delivery_code.already_verified")
		return result, nil
	}
	s.metrics.CodeVerification("verified")
	s.logg.Info(logCtx, "delivery_code.verified")

	contact, err := s.contacts.Contact(ctx, po.SupplierID)
	if err != nil {
		s.logg.Warn(logCtx, "supplier contact lookup failed")
	}
	s.notifier.Notify(ctx, notifications.DeliveryConfirmed(*po, contact))
	return result, nil
}

func (s *service) Status(ctx context.Context, purchaseOrderID uuid.UUID, actor auth.Actor) (*StatusResult, error) {
	if purchaseOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order id required")
	}
	po, err := s.repo.FindPurchaseOrder(ctx, purchaseOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
		}
		return nil, pkgerrors.Storage(err, "load purchase order")
	}
	if !actor.IsPrivileged() && !actor.ActsForSupplier(po.SupplierID) {
		order, err := s.repo.FindOrder(ctx, po.OrderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Storage(err, "load order")
		}
		if order == nil || order.CustomerID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "purchase order access denied")
		}
	}
	challenge, err := s.repo.ActiveChallenge(ctx, po.ID)
	if err != nil {
		return nil, pkgerrors.Storage(err, "load delivery challenge")
	}

	result := &StatusResult{
		PurchaseOrderID:   po.ID,
		State:             challenge.State(s.now().UTC()),
		AttemptsRemaining: s.cfg.MaxAttempts,
	}
	if challenge != nil {
		expires := challenge.ExpiresAt
		result.ExpiresAt = &expires
		result.LockedUntil = challenge.LockedUntil
		result.AttemptsRemaining = s.cfg.MaxAttempts - challenge.Attempts
		if result.AttemptsRemaining < 0 {
			result.AttemptsRemaining = 0
		}
	}
	return result, nil
}
