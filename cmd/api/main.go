package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/fulfillment-backend/api/controllers"
	"github.com/angelmondragon/fulfillment-backend/api/routes"
	"github.com/angelmondragon/fulfillment-backend/internal/actioncodes"
	"github.com/angelmondragon/fulfillment-backend/internal/activity"
	"github.com/angelmondragon/fulfillment-backend/internal/bootstrap"
	"github.com/angelmondragon/fulfillment-backend/internal/deliverycodes"
	"github.com/angelmondragon/fulfillment-backend/internal/ledger"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/payouts"
	"github.com/angelmondragon/fulfillment-backend/internal/purchaseorders"
	"github.com/angelmondragon/fulfillment-backend/internal/refunds"
	"github.com/angelmondragon/fulfillment-backend/internal/suppliers"
	"github.com/angelmondragon/fulfillment-backend/pkg/broker"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

func main() {
	proc, err := bootstrap.Start("api")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = proc.Config.App.Port
	}
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}

	ctx, stop := proc.SignalContext(map[string]any{"addr": ":" + port, "instance": instance})
	defer stop()
	proc.Exit(ctx, serve(ctx, proc, ":"+port))
}

func serve(ctx context.Context, proc *bootstrap.Process, addr string) error {
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := proc.Database(ctx, true)
	if err != nil {
		return err
	}
	redisClient, err := proc.Redis(ctx)
	if err != nil {
		return err
	}
	publisher, err := proc.Broker(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, publisher, metrics.NewFulfillmentMetrics(registry))
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	deps.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	failed := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()
	logg.Info(ctx, "api.listening")

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logg.Info(ctx, "api.stopped")
	return nil
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	publisher broker.Publisher,
	m *metrics.FulfillmentMetrics,
) (routes.Dependencies, error) {
	gdb := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)
	activityRepo := activity.NewRepository(gdb)

	notifier, err := notifications.NewDispatcher(publisher, cfg.PubSub.NotificationTopic, activityRepo, m, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	supplierService, err := suppliers.NewService(suppliers.NewRepository(gdb), dbClient, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	payoutService, err := payouts.NewService(payouts.NewRepository(gdb), dbClient, outboxService, supplierService, notifier, m, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	references, err := purchaseorders.NewReferenceGenerator()
	if err != nil {
		return routes.Dependencies{}, err
	}
	purchaseOrderService, err := purchaseorders.NewService(purchaseorders.Deps{
		Repo:        purchaseorders.NewRepository(gdb),
		Tx:          dbClient,
		Outbox:      outboxService,
		Allocations: payoutService,
		Contacts:    supplierService,
		Notifier:    notifier,
		Metrics:     m,
		Logger:      logg,
		References:  references,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderService, err := orders.NewService(orders.NewRepository(gdb), dbClient, outboxService, purchaseOrderService, activityRepo, notifier, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	deliveryService, err := deliverycodes.NewService(deliverycodes.NewRepository(gdb), dbClient, outboxService, supplierService, notifier, cfg.Delivery, m, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(gdb), dbClient, outboxService, m, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	refundService, err := refunds.NewService(refunds.Deps{
		Repo:     refunds.NewRepository(gdb),
		Tx:       dbClient,
		Outbox:   outboxService,
		Ledger:   ledgerService,
		Contacts: supplierService,
		Notifier: notifier,
		Options:  refunds.Options{ProrateTaxAndFees: cfg.Refunds.ProrateTaxAndFees},
		Metrics:  m,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	actionCodeService, err := actioncodes.NewService(redisClient, cfg.ActionCodes, cfg.Delivery.Hash, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Pingers: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
			"broker":   publisher,
		},
		Idempotency:    redisClient,
		RateLimiter:    redisClient,
		Orders:         orderService,
		PurchaseOrders: purchaseOrderService,
		DeliveryCodes:  deliveryService,
		Payouts:        payoutService,
		Ledger:         ledgerService,
		Refunds:        refundService,
		Suppliers:      supplierService,
		ActionCodes:    actionCodeService,
	}, nil
}
