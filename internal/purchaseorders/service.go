package purchaseorders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AllocationSyncer keeps the pending allocation of a purchase order in step
// with its owed amount.
type AllocationSyncer interface {
	EnsureAllocation(ctx context.Context, tx *gorm.DB, payment models.Payment, po models.PurchaseOrder) error
}

// ContactResolver looks up where a supplier wants to be notified.
type ContactResolver interface {
	Contact(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error)
}

// Service splits paid orders into purchase orders and exposes supplier reads.
type Service interface {
	Split(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*SplitResult, error)
	SplitTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor) (*SplitResult, error)
	AfterSplit(ctx context.Context, result *SplitResult)
	Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.PurchaseOrder, error)
	ListForSupplier(ctx context.Context, params ListParams) (*ListResult, error)
	UpdateShipment(ctx context.Context, input ShipmentInput) (*models.PurchaseOrder, error)
}

// SplitResult lists every purchase order of the order after splitting and
// which of them this run created.
type SplitResult struct {
	OrderID        uuid.UUID              `json:"order_id"`
	PurchaseOrders []models.PurchaseOrder `json:"purchase_orders"`
	Created        []uuid.UUID            `json:"created"`
}

// ListParams selects a page of a supplier's purchase orders.
type ListParams struct {
	SupplierID uuid.UUID
	Status     *enums.PurchaseOrderStatus
	pagination.Params
}

// ListResult is one page of purchase orders, newest first.
type ListResult struct {
	PurchaseOrders []models.PurchaseOrder `json:"purchase_orders"`
	NextCursor     string                 `json:"next_cursor,omitempty"`
}

// ShipmentInput advances a purchase order through supplier-driven statuses.
// Admins may also mark a purchase order delivered without a delivery code;
// such deliveries stay flagged unverified until a code is confirmed.
type ShipmentInput struct {
	PurchaseOrderID uuid.UUID
	Status          enums.PurchaseOrderStatus
	Actor           auth.Actor
}

var shipmentStatuses = map[enums.PurchaseOrderStatus]bool{
	enums.PurchaseOrderStatusAccepted:       true,
	enums.PurchaseOrderStatusProcessing:     true,
	enums.PurchaseOrderStatusShipped:        true,
	enums.PurchaseOrderStatusOutForDelivery: true,
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	allocations AllocationSyncer
	contacts    ContactResolver
	notifier    notifications.Notifier
	metrics     *metrics.FulfillmentMetrics
	logg        *logger.Logger
	references  ReferenceGenerator
	now         func() time.Time
}

// Deps groups the collaborators of the purchase order service.
type Deps struct {
	Repo        Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Allocations AllocationSyncer
	Contacts    ContactResolver
	Notifier    notifications.Notifier
	Metrics     *metrics.FulfillmentMetrics
	Logger      *logger.Logger
	References  ReferenceGenerator
}

// NewService builds the purchase order service.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("purchase orders repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Allocations == nil {
		return nil, fmt.Errorf("allocation syncer required")
	}
	if deps.Contacts == nil {
		return nil, fmt.Errorf("contact resolver required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	refs := deps.References
	if refs == nil {
		gen, err := NewReferenceGenerator()
		if err != nil {
			return nil, err
		}
		refs = gen
	}
	return &service{
		repo:        deps.Repo,
		tx:          deps.Tx,
		outbox:      deps.Outbox,
		allocations: deps.Allocations,
		contacts:    deps.Contacts,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logg:        deps.Logger,
		references:  refs,
		now:         time.Now,
	}, nil
}

func (s *service) Split(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*SplitResult, error) {
	var result *SplitResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.SplitTx(ctx, tx, orderID, actor)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.AfterSplit(ctx, result)
	return result, nil
}

// SplitTx groups the order's items by supplier and materializes one purchase
// order per supplier inside tx. Re-running it is a no-op apart from linking
// items that were not yet covered.
func (s *service) SplitTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor) (*SplitResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	repo := s.repo.WithTx(tx)

	order, err := repo.FindOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Storage(err, "load order")
	}
	if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.Reason(pkgerrors.CodeStateConflict, "order_not_paid", "order is not paid")
	}

	existing, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Storage(err, "load purchase orders")
	}
	bySupplier := make(map[uuid.UUID]*models.PurchaseOrder, len(existing))
	linkedTo := make(map[uuid.UUID]uuid.UUID)
	for i := range existing {
		po := &existing[i]
		bySupplier[po.SupplierID] = po
		for _, link := range po.Items {
			linkedTo[link.OrderItemID] = po.ID
		}
	}

	groups, suppliers := groupBySupplier(order.Items)
	result := &SplitResult{OrderID: orderID}

	for _, supplierID := range suppliers {
		items := groups[supplierID]
		po, ok := bySupplier[supplierID]
		if !ok {
			reference, err := s.uniqueReference(ctx, repo)
			if err != nil {
				return nil, pkgerrors.Storage(err, "allocate supplier reference")
			}
			po = &models.PurchaseOrder{
				OrderID:           orderID,
				SupplierID:        supplierID,
				SupplierReference: reference,
				Status:            enums.PurchaseOrderStatusPending,
				PayoutStatus:      enums.PayoutStatusUnpaid,
			}
			if err := repo.Create(ctx, po); err != nil {
				return nil, pkgerrors.Storage(err, "create purchase order")
			}
			bySupplier[supplierID] = po
			result.Created = append(result.Created, po.ID)
		}

		var links []models.PurchaseOrderItem
		var owed int64
		for _, item := range items {
			linkedPO, linked := linkedTo[item.ID]
			if !linked {
				link := models.PurchaseOrderItem{PurchaseOrderID: po.ID, OrderItemID: item.ID}
				links = append(links, link)
				linkedTo[item.ID] = po.ID
				linkedPO = po.ID
			}
			if linkedPO == po.ID {
				owed += item.SupplierCostMinor()
			}
		}
		if err := repo.CreateItemLinks(ctx, links); err != nil {
			return nil, pkgerrors.Storage(err, "link purchase order items")
		}
		po.Items = append(po.Items, links...)

		if owed != po.AmountOwedMinor {
			if err := repo.UpdateAmountOwed(ctx, po.ID, owed); err != nil {
				return nil, pkgerrors.Storage(err, "update purchase order amount")
			}
			po.AmountOwedMinor = owed
		}
	}

	payment, err := repo.FindPaidPayment(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Storage(err, "load order payment")
	}

	created := make(map[uuid.UUID]bool, len(result.Created))
	for _, id := range result.Created {
		created[id] = true
	}
	for _, supplierID := range orderedSuppliers(existing, suppliers) {
		po := bySupplier[supplierID]
		if payment != nil {
			if err := s.allocations.EnsureAllocation(ctx, tx, *payment, *po); err != nil {
				return nil, err
			}
		}
		if created[po.ID] {
			event := outbox.DomainEvent{
				EventType:     enums.EventPurchaseOrderCreated,
				AggregateType: enums.AggregatePurchaseOrder,
				AggregateID:   po.ID,
				Actor:         outbox.ActorOf(actor),
				Data: payloads.PurchaseOrderCreatedEvent{
					PurchaseOrderID:   po.ID,
					OrderID:           po.OrderID,
					SupplierID:        po.SupplierID,
					SupplierReference: po.SupplierReference,
					AmountOwedMinor:   po.AmountOwedMinor,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit purchase order created")
			}
		}
		result.PurchaseOrders = append(result.PurchaseOrders, *po)
	}

	return result, nil
}

// AfterSplit records metrics and notifies suppliers of newly created purchase
// orders. Call it only after the split transaction commits.
func (s *service) AfterSplit(ctx context.Context, result *SplitResult) {
	if result == nil {
		return
	}
	s.metrics.OrderSplit(len(result.Created))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":        result.OrderID.String(),
		"purchase_orders": len(result.PurchaseOrders),
		"created":         len(result.Created),
	})
	s.logg.Info(logCtx, "order.split")

	if len(result.Created) == 0 {
		return
	}
	created := make(map[uuid.UUID]bool, len(result.Created))
	for _, id := range result.Created {
		created[id] = true
	}
	var notes []notifications.Notification
	for _, po := range result.PurchaseOrders {
		if !created[po.ID] {
			continue
		}
		contact, err := s.contacts.Contact(ctx, po.SupplierID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "supplier_id", po.SupplierID.String()), "supplier contact lookup failed")
		}
		notes = append(notes, notifications.PurchaseOrderCreated(po, contact))
	}
	s.notifier.Notify(ctx, notes...)
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.PurchaseOrder, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order id required")
	}
	po, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
		}
		return nil, pkgerrors.Storage(err, "load purchase order")
	}
	if !actor.IsPrivileged() && !actor.ActsForSupplier(po.SupplierID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "purchase order access denied")
	}
	return po, nil
}

func (s *service) ListForSupplier(ctx context.Context, params ListParams) (*ListResult, error) {
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
		return nil, pkgerrors.Storage(err, "list purchase orders")
	}
	page, next := pagination.Trim(rows, params.Limit, func(po models.PurchaseOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: po.CreatedAt, ID: po.ID}
	})
	return &ListResult{PurchaseOrders: page, NextCursor: next}, nil
}

func (s *service) UpdateShipment(ctx context.Context, input ShipmentInput) (*models.PurchaseOrder, error) {
	if input.PurchaseOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order id required")
	}
	if !shipmentStatuses[input.Status] && !(input.Status == enums.PurchaseOrderStatusDelivered && input.Actor.IsAdmin()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("status %q cannot be set by shipment updates", input.Status))
	}

	var updated *models.PurchaseOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		po, err := repo.FindByIDForUpdate(ctx, input.PurchaseOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
			}
			return pkgerrors.Storage(err, "load purchase order")
		}
		if !input.Actor.CanManageSupplier(po.SupplierID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "purchase order access denied")
		}
		if !po.Status.CanTransitionTo(input.Status) {
			return pkgerrors.Reason(pkgerrors.CodeStateConflict, "invalid_transition",
				fmt.Sprintf("cannot move purchase order from %s to %s", po.Status, input.Status)).
				WithDetail("current_status", string(po.Status))
		}

		now := s.now().UTC()
		fields := map[string]any{}
		switch input.Status {
		case enums.PurchaseOrderStatusShipped:
			if po.ShippedAt == nil {
				fields["shipped_at"] = now
				po.ShippedAt = &now
			}
		case enums.PurchaseOrderStatusDelivered:
			fields["delivered_at"] = now
			fields["delivered_by"] = input.Actor.UserRef()
			fields["delivery_unverified"] = true
			po.DeliveredAt = &now
			po.DeliveredBy = input.Actor.UserRef()
			po.DeliveryUnverified = true
		}
		ok, err := repo.UpdateStatus(ctx, po.ID, po.Status, input.Status, fields)
		if err != nil {
			return pkgerrors.Storage(err, "update purchase order status")
		}
		if !ok {
			return pkgerrors.Reason(pkgerrors.CodeConflict, pkgerrors.ReasonRetry, "purchase order changed concurrently, try again")
		}
		if err := repo.UpdateItemFulfillment(ctx, po.ID, input.Status); err != nil {
			return pkgerrors.Storage(err, "update item fulfillment")
		}
		po.Status = input.Status

		if input.Status == enums.PurchaseOrderStatusShipped || input.Status == enums.PurchaseOrderStatusOutForDelivery {
			event := outbox.DomainEvent{
				EventType:     enums.EventPurchaseOrderShipped,
				AggregateType: enums.AggregatePurchaseOrder,
				AggregateID:   po.ID,
				Actor:         outbox.ActorOf(input.Actor),
				Data: payloads.PurchaseOrderShippedEvent{
					PurchaseOrderID: po.ID,
					OrderID:         po.OrderID,
					SupplierID:      po.SupplierID,
					Status:          po.Status,
					ShippedAt:       po.ShippedAt,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit purchase order shipped")
			}
		}
		updated = po
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"purchase_order_id": updated.ID.String(),
		"status":            string(updated.Status),
	})
	s.logg.Info(logCtx, "purchase_order.status_changed")
	return updated, nil
}

// groupBySupplier buckets items by supplier, keeping suppliers in order of
// first appearance.
func groupBySupplier(items []models.OrderItem) (map[uuid.UUID][]models.OrderItem, []uuid.UUID) {
	groups := make(map[uuid.UUID][]models.OrderItem)
	var order []uuid.UUID
	for _, item := range items {
		if _, seen := groups[item.SupplierID]; !seen {
			order = append(order, item.SupplierID)
		}
		groups[item.SupplierID] = append(groups[item.SupplierID], item)
	}
	return groups, order
}

// orderedSuppliers lists suppliers of existing purchase orders first, then
// suppliers seen in this run.
func orderedSuppliers(existing []models.PurchaseOrder, seen []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(existing)+len(seen))
	included := make(map[uuid.UUID]bool)
	for _, po := range existing {
		if !included[po.SupplierID] {
			included[po.SupplierID] = true
			out = append(out, po.SupplierID)
		}
	}
	for _, id := range seen {
		if !included[id] {
			included[id] = true
			out = append(out, id)
		}
	}
	return out
}
