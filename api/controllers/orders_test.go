package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/actioncodes"
	internalorders "github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

type stubActionCodes struct {
	issueFn   func(ctx context.Context, action actioncodes.Action, subjectID uuid.UUID, actor auth.Actor) (*actioncodes.IssuedCode, error)
	consumeFn func(ctx context.Context, action actioncodes.Action, subjectID uuid.UUID, code string, actor auth.Actor) error
}

func (s stubActionCodes) Issue(ctx context.Context, action actioncodes.Action, subjectID uuid.UUID, actor auth.Actor) (*actioncodes.IssuedCode, error) {
	if s.issueFn != nil {
		return s.issueFn(ctx, action, subjectID, actor)
	}
	return &actioncodes.IssuedCode{}, nil
}

func (s stubActionCodes) Consume(ctx context.Context, action actioncodes.Action, subjectID uuid.UUID, code string, actor auth.Actor) error {
	if s.consumeFn != nil {
		return s.consumeFn(ctx, action, subjectID, code, actor)
	}
	return nil
}

type stubCanceler struct {
	cancelFn func(ctx context.Context, input internalorders.CancelInput) (*internalorders.CancelResult, error)
}

func (s stubCanceler) Cancel(ctx context.Context, input internalorders.CancelInput) (*internalorders.CancelResult, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, input)
	}
	return &internalorders.CancelResult{}, nil
}

func TestAdminOrderCancelCode(t *testing.T) {
	orderID := uuid.New()
	actor := adminActor()
	codes := stubActionCodes{
		issueFn: func(ctx context.Context, action actioncodes.Action, subjectID uuid.UUID, got auth.Actor) (*actioncodes.IssuedCode, error) {
			if action != actioncodes.ActionOrderCancel || subjectID != orderID {
				t.Fatalf("unexpected action %s for %s", action, subjectID)
			}
			return &actioncodes.IssuedCode{Code: "12345678", ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
		},
	}

	req := newRequest(http.MethodPost, "/", nil, &actor, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	AdminOrderCancelCode(codes, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	var issued actioncodes.IssuedCode
	decodeData(t, resp, &issued)
	if issued.Code != "12345678" {
		t.Fatalf("unexpected code %q", issued.Code)
	}
}

func TestAdminCancelOrderConsumesCodeFirst(t *testing.T) {
	orderID := uuid.New()
	actor := adminActor()
	var steps []string

	codes := stubActionCodes{
		consumeFn: func(ctx context.Context, action actioncodes.Action, subjectID uuid.UUID, code string, got auth.Actor) error {
			if code != "12345678" {
				t.Fatalf("unexpected code %q", code)
			}
			steps = append(steps, "consume")
			return nil
		},
	}
	svc := stubCanceler{
		cancelFn: func(ctx context.Context, input internalorders.CancelInput) (*internalorders.CancelResult, error) {
			if input.OrderID != orderID {
				t.Fatalf("unexpected order %s", input.OrderID)
			}
			steps = append(steps, "cancel")
			return &internalorders.CancelResult{RestockedItems: 2}, nil
		},
	}

	req := newRequest(http.MethodPost, "/", strings.NewReader(`{"code":"12345678"}`), &actor, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	AdminCancelOrder(codes, svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if strings.Join(steps, ",") != "consume,cancel" {
		t.Fatalf("unexpected call order %v", steps)
	}
}

func TestAdminCancelOrderRejectsInvalidCode(t *testing.T) {
	actor := adminActor()
	canceled := false
	codes := stubActionCodes{
		consumeFn: func(ctx context.Context, action actioncodes.Action, subjectID uuid.UUID, code string, got auth.Actor) error {
			return pkgerrors.Reason(pkgerrors.CodeValidation, actioncodes.ReasonInvalidCode, "invalid or expired code")
		},
	}
	svc := stubCanceler{
		cancelFn: func(ctx context.Context, input internalorders.CancelInput) (*internalorders.CancelResult, error) {
			canceled = true
			return nil, nil
		},
	}

	req := newRequest(http.MethodPost, "/", strings.NewReader(`{"code":"00000000"}`), &actor, map[string]string{"orderId": uuid.NewString()})
	resp := httptest.NewRecorder()
	AdminCancelOrder(codes, svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if canceled {
		t.Fatalf("order should not be canceled with an invalid code")
	}
}

func TestAdminCancelOrderRequiresCode(t *testing.T) {
	actor := adminActor()
	req := newRequest(http.MethodPost, "/", strings.NewReader(`{}`), &actor, map[string]string{"orderId": uuid.NewString()})
	resp := httptest.NewRecorder()
	AdminCancelOrder(stubActionCodes{}, stubCanceler{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
