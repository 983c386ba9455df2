// Package maintenance runs periodic housekeeping for the fulfillment tables
// under a cluster-wide Redis lock.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// Job is one housekeeping task. Run reports how many rows it removed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

// Lock keeps two workers from running the same cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type RunnerParams struct {
	Logger   *logger.Logger
	Lock     Lock
	Metrics  *metrics.MaintenanceMetrics
	Interval time.Duration
	Jobs     []Job
}

// Runner executes its jobs once per interval.
type Runner struct {
	logg     *logger.Logger
	lock     Lock
	metrics  *metrics.MaintenanceMetrics
	interval time.Duration
	jobs     []Job
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return &Runner{
		logg:     params.Logger,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		jobs:     jobs,
	}, nil
}

// Run performs a cycle immediately and then on every tick until ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	r.cycle(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	locked, err := r.lock.Acquire(ctx)
	if err != nil {
		r.logg.Error(ctx, "maintenance.lock_failed", err)
		return
	}
	if !locked {
		r.logg.Info(ctx, "maintenance.cycle_skipped")
		return
	}
	defer func() {
		if err := r.lock.Release(ctx); err != nil {
			r.logg.Error(ctx, "maintenance.unlock_failed", err)
		}
	}()

	for _, job := range r.jobs {
		r.runJob(ctx, job)
	}
}

// runJob never stops the cycle; a failing job is logged and counted.
func (r *Runner) runJob(ctx context.Context, job Job) {
	jobCtx := r.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	rows, err := job.Run(jobCtx)
	duration := time.Since(start)
	r.metrics.JobFinished(job.Name(), duration, err)

	jobCtx = r.logg.WithFields(jobCtx, map[string]any{
		"duration_ms":  duration.Milliseconds(),
		"rows_deleted": rows,
	})
	if err != nil {
		r.logg.Error(jobCtx, "maintenance.job_failed", err)
		return
	}
	r.metrics.RowsPurged(job.Name(), rows)
	r.logg.Info(jobCtx, "maintenance.job_completed")
}
