package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fulfillment-backend/internal/bootstrap"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/registry"
)

func main() {
	proc, err := bootstrap.Start("outbox-publisher")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, stop := proc.SignalContext(map[string]any{"broker": proc.Config.Outbox.BrokerKind()})
	defer stop()
	proc.Exit(ctx, run(ctx, proc))
}

func run(ctx context.Context, proc *bootstrap.Process) error {
	dbClient, err := proc.Database(ctx, true)
	if err != nil {
		return err
	}
	publisher, err := proc.Broker(ctx)
	if err != nil {
		return err
	}
	events, err := registry.NewEventRegistry(proc.Config.PubSub)
	if err != nil {
		return fmt.Errorf("build event registry: %w", err)
	}

	service, err := NewService(ServiceParams{
		Config:        proc.Config,
		Logger:        proc.Logger,
		DB:            dbClient,
		Broker:        publisher,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      events,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	proc.Logger.Info(ctx, "outbox_publisher.started")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	proc.Logger.Info(ctx, "outbox_publisher.stopped")
	return nil
}
