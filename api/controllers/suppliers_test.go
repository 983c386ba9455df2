package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/suppliers"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

type stubProfiles struct {
	getFn    func(ctx context.Context, supplierID uuid.UUID, actor auth.Actor) (*models.SupplierPayoutProfile, error)
	upsertFn func(ctx context.Context, input suppliers.UpsertProfileInput) (*models.SupplierPayoutProfile, error)
	verifyFn func(ctx context.Context, input suppliers.VerificationInput) (*models.SupplierPayoutProfile, error)
}

func (s stubProfiles) GetPayoutProfile(ctx context.Context, supplierID uuid.UUID, actor auth.Actor) (*models.SupplierPayoutProfile, error) {
	if s.getFn != nil {
		return s.getFn(ctx, supplierID, actor)
	}
	return &models.SupplierPayoutProfile{SupplierID: supplierID}, nil
}

func (s stubProfiles) UpsertPayoutProfile(ctx context.Context, input suppliers.UpsertProfileInput) (*models.SupplierPayoutProfile, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, input)
	}
	return &models.SupplierPayoutProfile{SupplierID: input.SupplierID}, nil
}

func (s stubProfiles) SetVerification(ctx context.Context, input suppliers.VerificationInput) (*models.SupplierPayoutProfile, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, input)
	}
	return &models.SupplierPayoutProfile{SupplierID: input.SupplierID, VerificationStatus: input.Status}, nil
}

func TestUpsertSupplierPayoutProfile(t *testing.T) {
	supplierID := uuid.New()
	actor := supplierActor(supplierID)
	var got suppliers.UpsertProfileInput
	svc := stubProfiles{
		upsertFn: func(ctx context.Context, input suppliers.UpsertProfileInput) (*models.SupplierPayoutProfile, error) {
			got = input
			return &models.SupplierPayoutProfile{SupplierID: input.SupplierID, ContactEmail: input.ContactEmail}, nil
		},
	}

	body := `{"contact_email":"Ops@Supplier.NG","contact_phone":" +2348000000000 ","bank_name":" First Bank ","bank_code":"011","account_number":"0123456789","account_name":"Supplier Ltd"}`
	req := newRequest(http.MethodPut, "/supplier/payout-profile", strings.NewReader(body), &actor, nil)
	resp := httptest.NewRecorder()
	UpsertSupplierPayoutProfile(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.SupplierID != supplierID || got.ContactEmail != "ops@supplier.ng" {
		t.Fatalf("unexpected input %+v", got)
	}
	if got.BankName != "First Bank" || got.AccountNumber != "0123456789" {
		t.Fatalf("bank details not normalized: %+v", got)
	}
	if got.ContactPhone == nil || *got.ContactPhone != "+2348000000000" {
		t.Fatalf("unexpected phone %v", got.ContactPhone)
	}
}

func TestUpsertSupplierPayoutProfileRequiresSupplier(t *testing.T) {
	actor := adminActor()
	body := `{"contact_email":"ops@supplier.ng"}`
	req := newRequest(http.MethodPut, "/supplier/payout-profile", strings.NewReader(body), &actor, nil)
	resp := httptest.NewRecorder()
	UpsertSupplierPayoutProfile(stubProfiles{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestUpsertSupplierPayoutProfileRejectsNonNumericAccount(t *testing.T) {
	actor := supplierActor(uuid.New())
	body := `{"contact_email":"ops@supplier.ng","account_number":"01-23"}`
	req := newRequest(http.MethodPut, "/supplier/payout-profile", strings.NewReader(body), &actor, nil)
	resp := httptest.NewRecorder()
	UpsertSupplierPayoutProfile(stubProfiles{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminSupplierVerification(t *testing.T) {
	supplierID := uuid.New()
	actor := adminActor()
	var got suppliers.VerificationInput
	svc := stubProfiles{
		verifyFn: func(ctx context.Context, input suppliers.VerificationInput) (*models.SupplierPayoutProfile, error) {
			got = input
			return &models.SupplierPayoutProfile{SupplierID: input.SupplierID, VerificationStatus: input.Status}, nil
		},
	}

	req := newRequest(http.MethodPost, "/", strings.NewReader(`{"status":"verified"}`), &actor, map[string]string{"supplierId": supplierID.String()})
	resp := httptest.NewRecorder()
	AdminSupplierVerification(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.SupplierID != supplierID || got.Status != enums.PayoutVerificationVerified {
		t.Fatalf("unexpected input %+v", got)
	}
	var profile models.SupplierPayoutProfile
	decodeData(t, resp, &profile)
	if profile.VerificationStatus != enums.PayoutVerificationVerified {
		t.Fatalf("unexpected status %s", profile.VerificationStatus)
	}
}

func TestAdminSupplierVerificationRejectsUnverifiedStatus(t *testing.T) {
	actor := adminActor()
	req := newRequest(http.MethodPost, "/", strings.NewReader(`{"status":"unverified"}`), &actor, map[string]string{"supplierId": uuid.NewString()})
	resp := httptest.NewRecorder()
	AdminSupplierVerification(stubProfiles{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestSupplierPayoutProfileScopesToActor(t *testing.T) {
	supplierID := uuid.New()
	actor := supplierActor(supplierID)
	svc := stubProfiles{
		getFn: func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.SupplierPayoutProfile, error) {
			if id != supplierID {
				t.Fatalf("expected supplier %s got %s", supplierID, id)
			}
			return &models.SupplierPayoutProfile{SupplierID: id}, nil
		},
	}

	req := newRequest(http.MethodGet, "/supplier/payout-profile", nil, &actor, nil)
	resp := httptest.NewRecorder()
	SupplierPayoutProfile(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
