package purchaseorders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

type recordingAllocations struct {
	calls []models.PurchaseOrder
}

func (r *recordingAllocations) EnsureAllocation(ctx context.Context, tx *gorm.DB, payment models.Payment, po models.PurchaseOrder) error {
	r.calls = append(r.calls, po)
	return nil
}

type stubContacts struct{}

func (stubContacts) Contact(ctx context.Context, supplierID uuid.UUID) (*models.SupplierPayoutProfile, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notifications.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, notes ...notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, notes...)
}

type fixture struct {
	client      *db.Client
	conn        *gorm.DB
	svc         Service
	allocations *recordingAllocations
	notifier    *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	allocations := &recordingAllocations{}
	notifier := &recordingNotifier{}
	svc, err := NewService(Deps{
		Repo:        NewRepository(conn),
		Tx:          client,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Allocations: allocations,
		Contacts:    stubContacts{},
		Notifier:    notifier,
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)
	return fixture{client: client, conn: conn, svc: svc, allocations: allocations, notifier: notifier}
}

func seedOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus, items ...models.OrderItem) models.Order {
	t.Helper()
	order := models.Order{
		CustomerID:    uuid.New(),
		Status:        status,
		Currency:      "NGN",
		SubtotalMinor: 0,
		TotalMinor:    0,
	}
	for _, item := range items {
		order.SubtotalMinor += item.UnitPriceMinor * int64(item.Quantity)
	}
	order.TotalMinor = order.SubtotalMinor
	require.NoError(t, conn.Omit("Items").Create(&order).Error)
	for i := range items {
		items[i].OrderID = order.ID
	}
	require.NoError(t, conn.Create(&items).Error)
	order.Items = items
	return order
}

func item(supplierID uuid.UUID, qty int, price, cost int64) models.OrderItem {
	return models.OrderItem{
		ProductRef:            "sku-" + uuid.NewString()[:8],
		Quantity:              qty,
		UnitPriceMinor:        price,
		OfferKind:             enums.OfferKindBase,
		OfferID:               uuid.New(),
		SupplierID:            supplierID,
		SupplierUnitCostMinor: cost,
	}
}

func serviceActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleService}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(Deps{})
	require.Error(t, err)
}

func TestSplitGroupsItemsBySupplier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierA, supplierB := uuid.New(), uuid.New()
	order := seedOrder(t, f.conn, enums.OrderStatusPaid,
		item(supplierA, 2, 300000, 250000),
		item(supplierB, 1, 500000, 400000),
		item(supplierA, 1, 200000, 150000),
	)

	result, err := f.svc.Split(ctx, order.ID, serviceActor())
	require.NoError(t, err)
	require.Len(t, result.PurchaseOrders, 2)
	assert.Len(t, result.Created, 2)

	bySupplier := map[uuid.UUID]models.PurchaseOrder{}
	for _, po := range result.PurchaseOrders {
		bySupplier[po.SupplierID] = po
		assert.Equal(t, enums.PurchaseOrderStatusPending, po.Status)
		assert.Regexp(t, `^PO-[A-Z2-9]{8}$`, po.SupplierReference)
	}
	assert.Equal(t, int64(650000), bySupplier[supplierA].AmountOwedMinor)
	assert.Equal(t, int64(400000), bySupplier[supplierB].AmountOwedMinor)
	assert.Len(t, bySupplier[supplierA].Items, 2)
	assert.Len(t, bySupplier[supplierB].Items, 1)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPurchaseOrderCreated).Count(&events).Error)
	assert.Equal(t, int64(2), events)
	assert.Len(t, f.notifier.notes, 2)
	assert.Empty(t, f.allocations.calls, "no paid payment recorded yet")
}

func TestSplitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplierA, supplierB := uuid.New(), uuid.New()
	order := seedOrder(t, f.conn, enums.OrderStatusPaid,
		item(supplierA, 1, 1000, 800),
		item(supplierB, 3, 2000, 1500),
	)
	payment := models.Payment{OrderID: order.ID, ProviderRef: "ref-1", AmountMinor: 7000, Status: enums.PaymentStatusPaid}
	require.NoError(t, f.conn.Create(&payment).Error)

	first, err := f.svc.Split(ctx, order.ID, serviceActor())
	require.NoError(t, err)
	second, err := f.svc.Split(ctx, order.ID, serviceActor())
	require.NoError(t, err)

	assert.Len(t, first.Created, 2)
	assert.Empty(t, second.Created)
	require.Len(t, second.PurchaseOrders, 2)

	var poCount, linkCount int64
	require.NoError(t, f.conn.Model(&models.PurchaseOrder{}).Where("order_id = ?", order.ID).Count(&poCount).Error)
	require.NoError(t, f.conn.Model(&models.PurchaseOrderItem{}).Count(&linkCount).Error)
	assert.Equal(t, int64(2), poCount)
	assert.Equal(t, int64(2), linkCount)

	refs := map[string]bool{}
	for _, po := range first.PurchaseOrders {
		refs[po.SupplierReference] = true
	}
	for _, po := range second.PurchaseOrders {
		assert.True(t, refs[po.SupplierReference], "reference must be stable across splits")
	}
	assert.Len(t, f.allocations.calls, 4, "allocations are resynced on every run")
	assert.Len(t, f.notifier.notes, 2, "only new purchase orders notify")
}

func TestSplitLinksItemsAddedLater(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := uuid.New()
	order := seedOrder(t, f.conn, enums.OrderStatusPaid, item(supplier, 1, 1000, 700))

	_, err := f.svc.Split(ctx, order.ID, serviceActor())
	require.NoError(t, err)

	extra := item(supplier, 2, 500, 400)
	extra.OrderID = order.ID
	require.NoError(t, f.conn.Create(&extra).Error)

	result, err := f.svc.Split(ctx, order.ID, serviceActor())
	require.NoError(t, err)
	require.Len(t, result.PurchaseOrders, 1)
	assert.Empty(t, result.Created)
	assert.Equal(t, int64(1500), result.PurchaseOrders[0].AmountOwedMinor)
	assert.Len(t, result.PurchaseOrders[0].Items, 2)
}

func TestSplitRejectsUnpaidOrder(t *testing.T) {
	f := newFixture(t)
	order := seedOrder(t, f.conn, enums.OrderStatusCreated, item(uuid.New(), 1, 1000, 800))

	_, err := f.svc.Split(context.Background(), order.ID, serviceActor())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Equal(t, "order_not_paid", pkgerrors.ReasonOf(err))
}

func TestSplitMissingOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Split(context.Background(), uuid.New(), serviceActor())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := uuid.New()
	order := seedOrder(t, f.conn, enums.OrderStatusPaid, item(supplier, 1, 1000, 800))
	result, err := f.svc.Split(ctx, order.ID, serviceActor())
	require.NoError(t, err)
	poID := result.PurchaseOrders[0].ID

	owner := auth.Actor{UserID: uuid.New(), SupplierID: &supplier, Role: enums.ActorRoleSupplier}
	po, err := f.svc.Get(ctx, poID, owner)
	require.NoError(t, err)
	assert.Equal(t, poID, po.ID)

	other := uuid.New()
	_, err = f.svc.Get(ctx, poID, auth.Actor{UserID: uuid.New(), SupplierID: &other, Role: enums.ActorRoleSupplier})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	_, err = f.svc.Get(ctx, uuid.New(), owner)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestUpdateShipmentFollowsTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := uuid.New()
	order := seedOrder(t, f.conn, enums.OrderStatusPaid, item(supplier, 1, 1000, 800))
	result, err := f.svc.Split(ctx, order.ID, serviceActor())
	require.NoError(t, err)
	poID := result.PurchaseOrders[0].ID
	owner := auth.Actor{UserID: uuid.New(), SupplierID: &supplier, Role: enums.ActorRoleSupplier}

	_, err = f.svc.UpdateShipment(ctx, ShipmentInput{PurchaseOrderID: poID, Status: enums.PurchaseOrderStatusShipped, Actor: owner})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	po, err := f.svc.UpdateShipment(ctx, ShipmentInput{PurchaseOrderID: poID, Status: enums.PurchaseOrderStatusAccepted, Actor: owner})
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseOrderStatusAccepted, po.Status)

	po, err = f.svc.UpdateShipment(ctx, ShipmentInput{PurchaseOrderID: poID, Status: enums.PurchaseOrderStatusShipped, Actor: owner})
	require.NoError(t, err)
	require.NotNil(t, po.ShippedAt)

	var stored models.OrderItem
	require.NoError(t, f.conn.First(&stored, "order_id = ?", order.ID).Error)
	assert.Equal(t, enums.PurchaseOrderStatusShipped, stored.FulfillmentStatus)

	var shippedEvents int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPurchaseOrderShipped).Count(&shippedEvents).Error)
	assert.Equal(t, int64(1), shippedEvents)
}

func TestUpdateShipmentRejectsDeliveredAndStrangers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := uuid.New()
	order := seedOrder(t, f.conn, enums.OrderStatusPaid, item(supplier, 1, 1000, 800))
	result, err := f.svc.Split(ctx, order.ID, serviceActor())
	require.NoError(t, err)
	poID := result.PurchaseOrders[0].ID

	owner := auth.Actor{UserID: uuid.New(), SupplierID: &supplier, Role: enums.ActorRoleSupplier}
	_, err = f.svc.UpdateShipment(ctx, ShipmentInput{PurchaseOrderID: poID, Status: enums.PurchaseOrderStatusDelivered, Actor: owner})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	other := uuid.New()
	stranger := auth.Actor{UserID: uuid.New(), SupplierID: &other, Role: enums.ActorRoleSupplier}
	_, err = f.svc.UpdateShipment(ctx, ShipmentInput{PurchaseOrderID: poID, Status: enums.PurchaseOrderStatusAccepted, Actor: stranger})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestListForSupplierPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		order := seedOrder(t, f.conn, enums.OrderStatusPaid, item(supplier, 1, 1000, 800))
		result, err := f.svc.Split(ctx, order.ID, serviceActor())
		require.NoError(t, err)
		require.NoError(t, f.conn.Model(&models.PurchaseOrder{}).
			Where("id = ?", result.PurchaseOrders[0].ID).
			Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	first, err := f.svc.ListForSupplier(ctx, ListParams{SupplierID: supplier, Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, first.PurchaseOrders, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.ListForSupplier(ctx, ListParams{SupplierID: supplier, Params: pagination.Params{Limit: 2, Cursor: first.NextCursor}})
	require.NoError(t, err)
	require.Len(t, second.PurchaseOrders, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, po := range append(first.PurchaseOrders, second.PurchaseOrders...) {
		assert.False(t, seen[po.ID])
		seen[po.ID] = true
	}
}

func TestUniqueReferenceRetriesOnCollision(t *testing.T) {
	f := newFixture(t)
	existing := models.PurchaseOrder{
		OrderID:           uuid.New(),
		SupplierID:        uuid.New(),
		SupplierReference: "PO-TAKEN000",
		Status:            enums.PurchaseOrderStatusPending,
		PayoutStatus:      enums.PayoutStatusUnpaid,
	}
	require.NoError(t, f.conn.Create(&existing).Error)

	candidates := []string{"PO-TAKEN000", "PO-FREE0000"}
	svc := f.svc.(*service)
	svc.references = func() string {
		next := candidates[0]
		candidates = candidates[1:]
		return next
	}

	ref, err := svc.uniqueReference(context.Background(), NewRepository(f.conn))
	require.NoError(t, err)
	assert.Equal(t, "PO-FREE0000", ref)
}

func TestAdminMarkDeliveredFlagsUnverified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := uuid.New()
	order := seedOrder(t, f.conn, enums.OrderStatusPaid, item(supplier, 1, 1000, 800))
	result, err := f.svc.Split(ctx, order.ID, serviceActor())
	require.NoError(t, err)
	poID := result.PurchaseOrders[0].ID

	owner := auth.Actor{UserID: uuid.New(), SupplierID: &supplier, Role: enums.ActorRoleSupplier}
	for _, status := range []enums.PurchaseOrderStatus{enums.PurchaseOrderStatusAccepted, enums.PurchaseOrderStatusShipped} {
		_, err = f.svc.UpdateShipment(ctx, ShipmentInput{PurchaseOrderID: poID, Status: status, Actor: owner})
		require.NoError(t, err)
	}

	_, err = f.svc.UpdateShipment(ctx, ShipmentInput{PurchaseOrderID: poID, Status: enums.PurchaseOrderStatusDelivered, Actor: owner})
	require.Error(t, err, "suppliers confirm delivery with a code")

	admin := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	po, err := f.svc.UpdateShipment(ctx, ShipmentInput{PurchaseOrderID: poID, Status: enums.PurchaseOrderStatusDelivered, Actor: admin})
	require.NoError(t, err)
	assert.True(t, po.DeliveryUnverified)

	var stored models.PurchaseOrder
	require.NoError(t, f.conn.First(&stored, "id = ?", poID).Error)
	assert.Equal(t, enums.PurchaseOrderStatusDelivered, stored.Status)
	assert.True(t, stored.DeliveryUnverified)
	require.NotNil(t, stored.DeliveredBy)
	assert.Equal(t, admin.UserID, *stored.DeliveredBy)
}
