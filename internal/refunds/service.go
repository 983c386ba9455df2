// Package refunds runs the refund and dispute workflow for purchase orders.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/ledger"
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

const (
	ReasonNoPurchaseOrders        = "no_purchase_orders"
	ReasonItemsNotInPurchaseOrder = "items_not_in_purchase_order"
	ReasonPurchaseOrderRequired   = "purchase_order_required"
	ReasonInvalidQuantity         = "invalid_quantity"
	ReasonRefundExists            = "refund_exists"
	ReasonInvalidRefundStatus     = "invalid_refund_status"
)

const uniqueRefundPerPurchaseOrder = "ux_refunds_purchase_order"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledgerWriter interface {
	RecordEntry(ctx context.Context, tx *gorm.DB, input ledger.EntryInput) (*models.SupplierLedgerEntry, error)
}

type contactResolver interface {
	Contact(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error)
}

// Service is the refund state machine.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.Refund, error)
	Respond(ctx context.Context, input RespondInput) (*models.Refund, error)
	Close(ctx context.Context, input CloseInput) (*CloseResult, error)
	Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Refund, error)
	ListForSupplier(ctx context.Context, params ListParams) (*RefundList, error)
	Events(ctx context.Context, id uuid.UUID, actor auth.Actor) ([]models.RefundEvent, error)
}

// RequestInput opens a refund. PurchaseOrderID may be omitted when the order
// has a single purchase order or the selected items identify one.
type RequestInput struct {
	OrderID         uuid.UUID
	PurchaseOrderID *uuid.UUID
	Items           []Selection
	Reason          string
	Actor           auth.Actor
}

type RespondInput struct {
	RefundID uuid.UUID
	Action   enums.RefundAction
	Note     string
	Actor    auth.Actor
}

type CloseInput struct {
	RefundID uuid.UUID
	Approve  bool
	Note     string
	Actor    auth.Actor
}

// CloseResult carries the closed refund and, when approved, the debit
// written against the supplier.
type CloseResult struct {
	Refund      models.Refund               `json:"refund"`
	LedgerEntry *models.SupplierLedgerEntry `json:"ledger_entry,omitempty"`
}

type ListParams struct {
	SupplierID uuid.UUID
	Status     *enums.RefundStatus
	pagination.Params
}

type RefundList struct {
	Refunds    []models.Refund `json:"refunds"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Options holds the refund policy switches.
type Options struct {
	ProrateTaxAndFees bool
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	ledger   ledgerWriter
	contacts contactResolver
	notifier notifications.Notifier
	opts     Options
	metrics  *metrics.FulfillmentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// Deps groups the refund service collaborators.
type Deps struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Ledger   ledgerWriter
	Contacts contactResolver
	Notifier notifications.Notifier
	Options  Options
	Metrics  *metrics.FulfillmentMetrics
	Logger   *logger.Logger
}

func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger writer required")
	}
	if deps.Contacts == nil {
		return nil, fmt.Errorf("contact resolver required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{
		repo:     deps.Repo,
		tx:       deps.Tx,
		outbox:   deps.Outbox,
		ledger:   deps.Ledger,
		contacts: deps.Contacts,
		notifier: deps.Notifier,
		opts:     deps.Options,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (*models.Refund, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	source := SourceFor(input.Items)

	var refund *models.Refund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Storage(err, "load order")
		}
		if !input.Actor.IsAdmin() && input.Actor.UserID != order.CustomerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the customer or an admin can request a refund")
		}

		pos, err := repo.ListPurchaseOrders(ctx, order.ID)
		if err != nil {
			return pkgerrors.Storage(err, "load purchase orders")
		}
		target, err := choosePurchaseOrder(pos, input)
		if err != nil {
			return err
		}

		po, err := repo.LockPurchaseOrder(ctx, target.ID)
		if err != nil {
			return pkgerrors.Storage(err, "lock purchase order")
		}
		exists, err := repo.ExistsForPurchaseOrder(ctx, po.ID)
		if err != nil {
			return pkgerrors.Storage(err, "check refunds")
		}
		if exists {
			return refundExists(po.ID)
		}

		lines, err := source.lines(itemsOf(*order, target))
		if err != nil {
			return err
		}
		breakdown := ComputeBreakdown(lines, *order, s.opts.ProrateTaxAndFees)

		now := s.now().UTC()
		refund = &models.Refund{
			OrderID:         order.ID,
			PurchaseOrderID: po.ID,
			SupplierID:      po.SupplierID,
			RequestedBy:     input.Actor.UserID,
			RequesterRole:   input.Actor.Role,
			SourceKind:      source.Kind(),
			Reason:          reason,
			ItemsMinor:      breakdown.ItemsMinor,
			TaxMinor:        breakdown.TaxMinor,
			FeesMinor:       breakdown.FeesMinor,
			TotalMinor:      breakdown.TotalMinor(),
			Status:          enums.RefundStatusSupplierReview,
			CreatedAt:       now,
		}
		for _, line := range lines {
			refund.Items = append(refund.Items, models.RefundItem{
				OrderItemID: line.Item.ID,
				Quantity:    line.Quantity,
				AmountMinor: line.AmountMinor,
			})
		}
		if err := repo.Create(ctx, refund); err != nil {
			if db.IsUniqueViolation(err, uniqueRefundPerPurchaseOrder) {
				return refundExists(po.ID)
			}
			return pkgerrors.Storage(err, "create refund")
		}

		requested := enums.RefundStatusRequested
		trail := []models.RefundEvent{
			{ToStatus: enums.RefundStatusRequested, Note: &reason, CreatedAt: now},
			// Stamped after the request so the trail sorts in transition order.
			{FromStatus: &requested, ToStatus: enums.RefundStatusSupplierReview, CreatedAt: now.Add(time.Microsecond)},
		}
		for i := range trail {
			trail[i].RefundID = refund.ID
			trail[i].ActorID = input.Actor.UserID
			trail[i].ActorRole = input.Actor.Role
			if err := repo.AppendEvent(ctx, &trail[i]); err != nil {
				return pkgerrors.Storage(err, "append refund event")
			}
		}

		if err := repo.MarkRefundRequested(ctx, po.ID, now); err != nil {
			return pkgerrors.Storage(err, "flag purchase order")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventRefundRequested,
			AggregateType: enums.AggregateRefund,
			AggregateID:   refund.ID,
			Actor:         outbox.ActorOf(input.Actor),
			Data: payloads.RefundRequestedEvent{
				RefundID:        refund.ID,
				OrderID:         refund.OrderID,
				PurchaseOrderID: refund.PurchaseOrderID,
				SupplierID:      refund.SupplierID,
				SourceKind:      refund.SourceKind,
				TotalMinor:      refund.TotalMinor,
				RequestedBy:     refund.RequestedBy,
				Status:          refund.Status,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund requested")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RefundTransition(refund.Status.String())
	s.logg.Info(s.refundLogCtx(ctx, refund), "refund.requested")
	s.notifier.Notify(ctx, notifications.RefundRequested(*refund, s.contact(ctx, refund.SupplierID))...)
	return refund, nil
}

// choosePurchaseOrder resolves the purchase order a request targets.
func choosePurchaseOrder(pos []models.PurchaseOrder, input RequestInput) (*models.PurchaseOrder, error) {
	if len(pos) == 0 {
		return nil, pkgerrors.Reason(pkgerrors.CodeValidation, ReasonNoPurchaseOrders, "order has no purchase orders yet")
	}
	if input.PurchaseOrderID != nil {
		for i := range pos {
			if pos[i].ID == *input.PurchaseOrderID {
				return &pos[i], nil
			}
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found for order")
	}
	if len(pos) == 1 {
		return &pos[0], nil
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.Reason(pkgerrors.CodeValidation, ReasonPurchaseOrderRequired, "order has several purchase orders, choose one")
	}
	first := input.Items[0].OrderItemID
	for i := range pos {
		for _, link := range pos[i].Items {
			if link.OrderItemID == first {
				return &pos[i], nil
			}
		}
	}
	return nil, pkgerrors.Reason(pkgerrors.CodeValidation, ReasonItemsNotInPurchaseOrder, "item is not part of any purchase order").
		WithDetail("order_item_id", first.String())
}

// itemsOf returns the order items linked to the purchase order.
func itemsOf(order models.Order, po *models.PurchaseOrder) []models.OrderItem {
	linked := make(map[uuid.UUID]struct{}, len(po.Items))
	for _, link := range po.Items {
		linked[link.OrderItemID] = struct{}{}
	}
	items := make([]models.OrderItem, 0, len(linked))
	for _, item := range order.Items {
		if _, ok := linked[item.ID]; ok {
			items = append(items, item)
		}
	}
	return items
}

func refundExists(purchaseOrderID uuid.UUID) error {
	return pkgerrors.Reason(pkgerrors.CodeValidation, ReasonRefundExists, "a refund already exists for this purchase order").
		WithDetail("purchase_order_id", purchaseOrderID.String())
}

func (s *service) Respond(ctx context.Context, input RespondInput) (*models.Refund, error) {
	if input.RefundID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	if _, err := enums.ParseRefundAction(string(input.Action)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund action")
	}
	note := strings.TrimSpace(input.Note)

	var refund *models.Refund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.lockRefund(ctx, repo, input.RefundID)
		if err != nil {
			return err
		}
		if !input.Actor.ActsForSupplier(current.SupplierID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the supplier can respond to this refund")
		}
		next, ok := current.Status.Next(input.Action)
		if !ok {
			return invalidStatus(current.Status)
		}

		now := s.now().UTC()
		fields := map[string]any{"responded_at": now, "updated_at": now}
		if note != "" {
			fields["supplier_note"] = note
			current.SupplierNote = &note
		}
		if err := s.transition(ctx, repo, current, next, fields, input.Actor, optional(note), now); err != nil {
			return err
		}
		current.RespondedAt = &now

		event := outbox.DomainEvent{
			EventType:     enums.EventRefundResponded,
			AggregateType: enums.AggregateRefund,
			AggregateID:   current.ID,
			Actor:         outbox.ActorOf(input.Actor),
			Data: payloads.RefundRespondedEvent{
				RefundID:        current.ID,
				PurchaseOrderID: current.PurchaseOrderID,
				SupplierID:      current.SupplierID,
				Action:          input.Action,
				Status:          next,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund responded")
		}
		refund = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RefundTransition(refund.Status.String())
	s.logg.Info(s.logg.WithField(s.refundLogCtx(ctx, refund), "action", string(input.Action)), "refund.responded")
	s.notifier.Notify(ctx, notifications.RefundResponded(*refund)...)
	return refund, nil
}

// Close settles a refund after supplier review. An approved refund writes a
// refund_debit against the supplier in the same transaction; payment
// allocations already released stay as they are.
func (s *service) Close(ctx context.Context, input CloseInput) (*CloseResult, error) {
	if input.RefundID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	note := strings.TrimSpace(input.Note)

	var result *CloseResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.lockRefund(ctx, repo, input.RefundID)
		if err != nil {
			return err
		}
		if !current.Status.Closable() {
			return invalidStatus(current.Status)
		}

		now := s.now().UTC()
		closedBy := input.Actor.UserID
		fields := map[string]any{"closed_at": now, "closed_by": closedBy, "updated_at": now}
		if note != "" {
			fields["resolution_note"] = note
			current.ResolutionNote = &note
		}
		if err := s.transition(ctx, repo, current, enums.RefundStatusClosed, fields, input.Actor, optional(note), now); err != nil {
			return err
		}
		current.ClosedAt = &now
		current.ClosedBy = &closedBy
		result = &CloseResult{Refund: *current}

		if input.Approve && current.TotalMinor > 0 {
			entry, err := s.ledger.RecordEntry(ctx, tx, ledger.EntryInput{
				SupplierID:      current.SupplierID,
				Type:            enums.LedgerEntryTypeRefundDebit,
				AmountMinor:     current.TotalMinor,
				PurchaseOrderID: &current.PurchaseOrderID,
				OrderID:         &current.OrderID,
				RefundID:        &current.ID,
				Metadata:        map[string]any{"source": "refund_close"},
				Actor:           input.Actor,
			})
			if err != nil {
				return err
			}
			result.LedgerEntry = entry
		}

		closed := payloads.RefundClosedEvent{
			RefundID:        current.ID,
			PurchaseOrderID: current.PurchaseOrderID,
			SupplierID:      current.SupplierID,
			Approved:        input.Approve,
		}
		if result.LedgerEntry != nil {
			closed.LedgerEntryID = &result.LedgerEntry.ID
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventRefundClosed,
			AggregateType: enums.AggregateRefund,
			AggregateID:   current.ID,
			Actor:         outbox.ActorOf(input.Actor),
			Data:          closed,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund closed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	refund := result.Refund
	s.metrics.RefundTransition(refund.Status.String())
	s.logg.Info(s.logg.WithField(s.refundLogCtx(ctx, &refund), "approved", input.Approve), "refund.closed")
	s.notifier.Notify(ctx, notifications.RefundClosed(refund, input.Approve, s.contact(ctx, refund.SupplierID))...)
	return result, nil
}

func (s *service) lockRefund(ctx context.Context, repo Repository, id uuid.UUID) (*models.Refund, error) {
	refund, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
		}
		return nil, pkgerrors.Storage(err, "load refund")
	}
	return refund, nil
}

// transition moves the refund from its current status and appends the audit row.
func (s *service) transition(ctx context.Context, repo Repository, refund *models.Refund, to enums.RefundStatus, fields map[string]any, actor auth.Actor, note *string, at time.Time) error {
	from := refund.Status
	ok, err := repo.UpdateStatus(ctx, refund.ID, from, to, fields)
	if err != nil {
		return pkgerrors.Storage(err, "update refund")
	}
	if !ok {
		return pkgerrors.Reason(pkgerrors.CodeConflict, pkgerrors.ReasonRetry, "refund changed concurrently, try again")
	}
	if err := repo.AppendEvent(ctx, &models.RefundEvent{
		RefundID:   refund.ID,
		FromStatus: &from,
		ToStatus:   to,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Note:       note,
		CreatedAt:  at,
	}); err != nil {
		return pkgerrors.Storage(err, "append refund event")
	}
	refund.Status = to
	return nil
}

func invalidStatus(status enums.RefundStatus) error {
	return pkgerrors.Reason(pkgerrors.CodeConflict, ReasonInvalidRefundStatus, "refund cannot move from its current status").
		WithDetail("status", status.String())
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Refund, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	refund, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
		}
		return nil, pkgerrors.Storage(err, "load refund")
	}
	if !canView(actor, refund) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "refund access denied")
	}
	return refund, nil
}

func canView(actor auth.Actor, refund *models.Refund) bool {
	return actor.IsPrivileged() ||
		actor.ActsForSupplier(refund.SupplierID) ||
		(actor.UserID != uuid.Nil && actor.UserID == refund.RequestedBy)
}

func (s *service) Events(ctx context.Context, id uuid.UUID, actor auth.Actor) ([]models.RefundEvent, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list refund events")
	}
	return events, nil
}

func (s *service) ListForSupplier(ctx context.Context, params ListParams) (*RefundList, error) {
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

	rows, err := s.repo.ListForSupplier(ctx, query)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list refunds")
	}
	page, next := pagination.Trim(rows, params.Limit, func(r models.Refund) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return &RefundList{Refunds: page, NextCursor: next}, nil
}

func (s *service) contact(ctx context.Context, supplierID uuid.UUID) *models.SupplierPayoutProfile {
	profile, err := s.contacts.Contact(ctx, supplierID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "supplier_id", supplierID.String()), "supplier contact lookup failed")
		return nil
	}
	return profile
}

func (s *service) refundLogCtx(ctx context.Context, refund *models.Refund) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"refund_id":         refund.ID.String(),
		"purchase_order_id": refund.PurchaseOrderID.String(),
		"supplier_id":       refund.SupplierID.String(),
		"status":            refund.Status.String(),
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
