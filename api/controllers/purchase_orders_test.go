package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/purchaseorders"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

type stubPurchaseOrders struct {
	getFn      func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.PurchaseOrder, error)
	listFn     func(ctx context.Context, params purchaseorders.ListParams) (*purchaseorders.ListResult, error)
	shipmentFn func(ctx context.Context, input purchaseorders.ShipmentInput) (*models.PurchaseOrder, error)
}

func (s stubPurchaseOrders) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.PurchaseOrder, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id, actor)
	}
	return &models.PurchaseOrder{ID: id}, nil
}

func (s stubPurchaseOrders) ListForSupplier(ctx context.Context, params purchaseorders.ListParams) (*purchaseorders.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &purchaseorders.ListResult{}, nil
}

func (s stubPurchaseOrders) UpdateShipment(ctx context.Context, input purchaseorders.ShipmentInput) (*models.PurchaseOrder, error) {
	if s.shipmentFn != nil {
		return s.shipmentFn(ctx, input)
	}
	return &models.PurchaseOrder{ID: input.PurchaseOrderID, Status: input.Status}, nil
}

func TestSupplierPurchaseOrdersFiltersByStatus(t *testing.T) {
	supplierID := uuid.New()
	actor := supplierActor(supplierID)
	var got purchaseorders.ListParams
	svc := stubPurchaseOrders{
		listFn: func(ctx context.Context, params purchaseorders.ListParams) (*purchaseorders.ListResult, error) {
			got = params
			return &purchaseorders.ListResult{PurchaseOrders: []models.PurchaseOrder{{ID: uuid.New(), SupplierID: supplierID}}}, nil
		},
	}

	req := newRequest(http.MethodGet, "/supplier/purchase-orders?status=shipped", nil, &actor, nil)
	resp := httptest.NewRecorder()
	SupplierPurchaseOrders(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.SupplierID != supplierID {
		t.Fatalf("unexpected supplier %s", got.SupplierID)
	}
	if got.Status == nil || *got.Status != enums.PurchaseOrderStatusShipped {
		t.Fatalf("status filter not forwarded: %v", got.Status)
	}
	var list purchaseorders.ListResult
	decodeData(t, resp, &list)
	if len(list.PurchaseOrders) != 1 {
		t.Fatalf("expected one purchase order got %d", len(list.PurchaseOrders))
	}
}

func TestSupplierPurchaseOrdersRejectsUnknownStatus(t *testing.T) {
	actor := supplierActor(uuid.New())
	req := newRequest(http.MethodGet, "/supplier/purchase-orders?status=lost", nil, &actor, nil)
	resp := httptest.NewRecorder()
	SupplierPurchaseOrders(stubPurchaseOrders{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestSupplierPurchaseOrderDetailMapsNotFound(t *testing.T) {
	actor := supplierActor(uuid.New())
	svc := stubPurchaseOrders{
		getFn: func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.PurchaseOrder, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
		},
	}

	req := newRequest(http.MethodGet, "/", nil, &actor, map[string]string{"poId": uuid.NewString()})
	resp := httptest.NewRecorder()
	SupplierPurchaseOrderDetail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestSupplierPurchaseOrderShipment(t *testing.T) {
	poID := uuid.New()
	actor := supplierActor(uuid.New())
	var got purchaseorders.ShipmentInput
	svc := stubPurchaseOrders{
		shipmentFn: func(ctx context.Context, input purchaseorders.ShipmentInput) (*models.PurchaseOrder, error) {
			got = input
			return &models.PurchaseOrder{ID: input.PurchaseOrderID, Status: input.Status}, nil
		},
	}

	req := newRequest(http.MethodPost, "/", strings.NewReader(`{"status":" out_for_delivery "}`), &actor, map[string]string{"poId": poID.String()})
	resp := httptest.NewRecorder()
	SupplierPurchaseOrderShipment(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.PurchaseOrderID != poID || got.Status != enums.PurchaseOrderStatusOutForDelivery {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestSupplierPurchaseOrderShipmentRejectsBadPurchaseOrderID(t *testing.T) {
	actor := supplierActor(uuid.New())
	req := newRequest(http.MethodPost, "/", strings.NewReader(`{"status":"shipped"}`), &actor, map[string]string{"poId": "po-1"})
	resp := httptest.NewRecorder()
	SupplierPurchaseOrderShipment(stubPurchaseOrders{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
