package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fulfillment-backend/api/controllers"
	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/internal/actioncodes"
	"github.com/angelmondragon/fulfillment-backend/internal/deliverycodes"
	"github.com/angelmondragon/fulfillment-backend/internal/ledger"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/payouts"
	"github.com/angelmondragon/fulfillment-backend/internal/purchaseorders"
	"github.com/angelmondragon/fulfillment-backend/internal/refunds"
	"github.com/angelmondragon/fulfillment-backend/internal/suppliers"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies are the services and infrastructure the HTTP surface needs.
type Dependencies struct {
	Pingers     map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	RateLimiter rateLimiter
	Metrics     http.Handler

	Orders         orders.Service
	PurchaseOrders purchaseorders.Service
	DeliveryCodes  deliverycodes.Service
	Payouts        payouts.Service
	Ledger         ledger.Service
	Refunds        refunds.Service
	Suppliers      suppliers.Service
	ActionCodes    actioncodes.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	verifyPolicy := middleware.NewRateLimitPolicy(
		"delivery_verify",
		cfg.Delivery.VerifyWindow,
		cfg.Delivery.VerifyIPLimit,
		"poId",
		cfg.Delivery.VerifyPOLimit,
	)
	once := middleware.NewIdempotency(deps.Idempotency, logg).Require

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/internal", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleService, enums.ActorRoleAdmin))
			r.With(once(middleware.MoneyReplayWindow)).Post("/payments/confirmed", controllers.InternalPaymentConfirmed(deps.Orders, logg))
			r.With(once(middleware.MoneyReplayWindow)).Post("/orders/{orderId}/split", controllers.InternalSplitOrder(deps.PurchaseOrders, logg))
		})

		r.Route("/supplier", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleSupplier, enums.ActorRoleAdmin))
				r.Get("/purchase-orders", controllers.SupplierPurchaseOrders(deps.PurchaseOrders, logg))
				r.Get("/purchase-orders/{poId}", controllers.SupplierPurchaseOrderDetail(deps.PurchaseOrders, logg))
				r.With(once(middleware.ReplayWindow)).Post("/purchase-orders/{poId}/shipment", controllers.SupplierPurchaseOrderShipment(deps.PurchaseOrders, logg))
				r.Get("/balance", controllers.SupplierBalance(deps.Ledger, logg))
				r.Get("/allocations", controllers.SupplierAllocations(deps.Payouts, logg))
				r.Get("/ledger", controllers.SupplierLedger(deps.Ledger, logg))
				r.Get("/refunds", controllers.SupplierRefunds(deps.Refunds, logg))
				r.Get("/payout-profile", controllers.SupplierPayoutProfile(deps.Suppliers, logg))
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleSupplier))
				r.Put("/payout-profile", controllers.UpsertSupplierPayoutProfile(deps.Suppliers, logg))
				r.With(once(middleware.ReplayWindow)).Post("/refunds/{refundId}/respond", controllers.RespondRefund(deps.Refunds, logg))
			})
		})

		r.Route("/purchase-orders/{poId}", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleSupplier, enums.ActorRoleAdmin, enums.ActorRoleCustomer)).
				Get("/delivery-code", controllers.DeliveryCodeStatus(deps.DeliveryCodes, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleSupplier, enums.ActorRoleAdmin))
				r.With(once(middleware.ReplayWindow)).Post("/delivery-code", controllers.IssueDeliveryCode(deps.DeliveryCodes, logg))
				r.With(middleware.RateLimit(verifyPolicy, deps.RateLimiter, logg)).
					Post("/delivery-code/verify", controllers.VerifyDeliveryCode(deps.DeliveryCodes, logg))
				r.With(once(middleware.MoneyReplayWindow)).Post("/payout/release", controllers.ReleasePayout(deps.Payouts, logg))
			})
		})

		r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleAdmin), once(middleware.ReplayWindow)).
			Post("/orders/{orderId}/refunds", controllers.RequestRefund(deps.Refunds, logg))

		r.Route("/refunds/{refundId}", func(r chi.Router) {
			r.Get("/", controllers.RefundDetail(deps.Refunds, logg))
			r.Get("/events", controllers.RefundEvents(deps.Refunds, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.Post("/orders/{orderId}/cancel-code", controllers.AdminOrderCancelCode(deps.ActionCodes, logg))
			r.With(once(middleware.MoneyReplayWindow)).Post("/orders/{orderId}/cancel", controllers.AdminCancelOrder(deps.ActionCodes, deps.Orders, logg))
			r.With(once(middleware.MoneyReplayWindow)).Post("/refunds/{refundId}/close", controllers.CloseRefund(deps.Refunds, logg))
			r.With(once(middleware.MoneyReplayWindow)).Post("/suppliers/{supplierId}/ledger", controllers.AdminLedgerAdjustment(deps.Ledger, logg))
			r.Post("/suppliers/{supplierId}/verification", controllers.AdminSupplierVerification(deps.Suppliers, logg))
		})
	})

	return r
}
