package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/broker"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	idleCeiling    = 10 * time.Second
	maxJitter      = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Broker        broker.Publisher
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
}

// Service relays committed outbox rows to the broker. Each batch is claimed
// and settled inside one transaction so concurrent publishers skip each
// other's rows.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	broker      broker.Publisher
	registry    registryResolver
	dlq         dlqRepository
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	pace        pacer
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	var err error
	require := func(ok bool, name string) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%s is required", name))
		}
	}
	require(params.Config != nil, "config")
	require(params.Logger != nil, "logger")
	require(params.DB != nil, "database client")
	require(params.Broker != nil, "broker publisher")
	require(params.Repository != nil, "outbox repository")
	require(params.Registry != nil, "event registry")
	require(params.DLQRepository != nil, "dlq repository")
	if err != nil {
		return nil, err
	}

	oc := params.Config.Outbox
	poll := time.Duration(positiveOr(oc.PollIntervalMS, 500)) * time.Millisecond
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		broker:      params.Broker,
		registry:    params.Registry,
		dlq:         params.DLQRepository,
		metrics:     params.Metrics,
		batchSize:   positiveOr(oc.BatchSize, 50),
		maxAttempts: positiveOr(oc.MaxAttempts, 10),
		pace:        pacer{base: poll, ceiling: idleCeiling, wait: poll},
		now:         time.Now,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains batches back to back while there is work, idles at the poll
// interval when the outbox is empty and backs off on batch errors.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"broker":   s.broker.Ping,
	} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		busy, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			err = s.pause(ctx, s.pace.failed())
		case busy:
			s.pace.reset()
			continue
		default:
			s.pace.reset()
			err = s.pause(ctx, s.pace.idle())
		}
		if err != nil {
			return err
		}
	}
}

type verdict int

const (
	delivered verdict = iota
	retryLater
	deadLetter
)

// outcome is the result of one publish attempt.
type outcome struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	topic   string
	err     error
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	busy := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		busy = len(rows) > 0
		for _, row := range rows {
			if err := s.settle(ctx, tx, row, s.attempt(ctx, row)); err != nil {
				return err
			}
		}
		return nil
	})
	return busy, err
}

// attempt resolves and publishes one row and classifies the result.
func (s *Service) attempt(ctx context.Context, row models.OutboxEvent) outcome {
	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return outcome{verdict: deadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	topic := resolved.Descriptor.Topic
	if topic == "" {
		return outcome{verdict: deadLetter, reason: enums.OutboxDLQReasonNonRetryable,
			err: fmt.Errorf("no topic configured for %s", row.EventType)}
	}

	msg := broker.Message{
		Topic: topic,
		Key:   row.AggregateID.String(),
		Data:  []byte(row.Payload),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	started := s.now()
	err = s.broker.Publish(publishCtx, msg)

	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		s.metrics.ObservePublish(string(row.EventType), s.now().Sub(started))
		return outcome{verdict: delivered, topic: topic}
	case errors.Is(err, broker.ErrTopicRequired), errors.As(err, &nonRetryable):
		return outcome{verdict: deadLetter, reason: enums.OutboxDLQReasonNonRetryable, topic: topic, err: err}
	case row.AttemptCount+1 >= s.maxAttempts:
		return outcome{verdict: deadLetter, reason: enums.OutboxDLQReasonMaxAttempts, topic: topic,
			err: fmt.Errorf("max publish attempts reached: %w", err)}
	default:
		return outcome{verdict: retryLater, topic: topic, err: err}
	}
}

// settle records the outcome on the row, writing a dead letter when the row
// will not be retried.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, out outcome) error {
	ctx = s.logg.WithFields(ctx, rowFields(row, out))

	switch out.verdict {
	case delivered:
		if err := s.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		s.logg.Info(ctx, "outbox.published")
		return nil

	case retryLater:
		s.logg.Warn(s.logg.WithField(ctx, "error", out.err.Error()), "outbox.publish_failed")
		s.metrics.IncFailure(string(row.EventType))
		if err := s.repo.MarkFailedTx(tx, row.ID, out.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", row.ID, err)
		}
		return nil
	}

	s.logg.Warn(s.logg.WithField(ctx, "error", out.err.Error()), "outbox.dead_lettered")
	s.metrics.IncDeadLetter(string(out.reason))
	message := out.err.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   out.reason,
		ErrorMessage:  &message,
		AttemptCount:  row.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, row.ID, out.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func rowFields(row models.OutboxEvent, out outcome) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if out.verdict != delivered {
		fields["attempt_count"] = row.AttemptCount + 1
	}
	if out.topic != "" {
		fields["topic"] = out.topic
	}
	if out.reason != "" {
		fields["dlq_reason"] = out.reason
	}
	return fields
}

func (s *Service) pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pacer spaces out polls. Consecutive batch errors double the wait up to
// ceiling; any successful batch resets it to base.
type pacer struct {
	base    time.Duration
	ceiling time.Duration
	wait    time.Duration
}

func (p *pacer) reset() {
	p.wait = p.base
}

func (p *pacer) idle() time.Duration {
	return jitter(p.base)
}

func (p *pacer) failed() time.Duration {
	p.wait = min(max(p.wait, p.base)*2, p.ceiling)
	return jitter(p.wait)
}

func jitter(d time.Duration) time.Duration {
	return d + rand.N(maxJitter)
}
