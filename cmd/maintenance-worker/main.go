package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fulfillment-backend/internal/bootstrap"
	"github.com/angelmondragon/fulfillment-backend/internal/deliverycodes"
	"github.com/angelmondragon/fulfillment-backend/internal/maintenance"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
)

func main() {
	proc, err := bootstrap.Start("maintenance-worker")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, stop := proc.SignalContext(map[string]any{"interval": proc.Config.Maintenance.Interval.String()})
	defer stop()
	proc.Exit(ctx, run(ctx, proc))
}

func run(ctx context.Context, proc *bootstrap.Process) error {
	cfg := proc.Config.Maintenance

	dbClient, err := proc.Database(ctx, true)
	if err != nil {
		return err
	}
	redisClient, err := proc.Redis(ctx)
	if err != nil {
		return err
	}

	lock, err := maintenance.NewRedisLock(redisClient, maintenance.LockKey(proc.Config.App.Env), cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("maintenance lock: %w", err)
	}
	outboxJob, err := maintenance.NewOutboxRetentionJob(dbClient, outbox.NewRepository(dbClient.DB()), cfg.OutboxRetention)
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}
	deadLetterJob, err := maintenance.NewDeadLetterRetentionJob(dbClient, outbox.NewDLQRepository(dbClient.DB()), cfg.DLQRetention)
	if err != nil {
		return fmt.Errorf("dead letter retention job: %w", err)
	}
	challengeJob, err := maintenance.NewChallengeRetentionJob(deliverycodes.NewRepository(dbClient.DB()), cfg.ChallengeRetention)
	if err != nil {
		return fmt.Errorf("challenge retention job: %w", err)
	}

	runner, err := maintenance.NewRunner(maintenance.RunnerParams{
		Logger:   proc.Logger,
		Lock:     lock,
		Metrics:  metrics.NewMaintenanceMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Interval,
		Jobs:     []maintenance.Job{outboxJob, deadLetterJob, challengeJob},
	})
	if err != nil {
		return err
	}

	proc.Logger.Info(ctx, "maintenance_worker.started")
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	proc.Logger.Info(ctx, "maintenance_worker.stopped")
	return nil
}
