package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterPurger interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type challengePurger interface {
	PurgeUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TxRetentionJob deletes rows older than now minus retention in a single
// transaction.
type TxRetentionJob struct {
	name      string
	what      string
	tx        txRunner
	purge     func(tx *gorm.DB, cutoff time.Time) (int64, error)
	retention time.Duration
	now       func() time.Time
}

func newTxRetentionJob(name, what string, tx txRunner, purge func(*gorm.DB, time.Time) (int64, error), retention time.Duration) (*TxRetentionJob, error) {
	var err error
	if tx == nil {
		err = errors.Join(err, errors.New("transaction runner required"))
	}
	if purge == nil {
		err = errors.Join(err, fmt.Errorf("%s repository required", what))
	}
	if retention <= 0 {
		err = errors.Join(err, fmt.Errorf("%s retention must be positive", what))
	}
	if err != nil {
		return nil, err
	}
	return &TxRetentionJob{name: name, what: what, tx: tx, purge: purge, retention: retention, now: time.Now}, nil
}

// NewOutboxRetentionJob purges published outbox rows. Unpublished rows are
// never touched.
func NewOutboxRetentionJob(tx txRunner, repo outboxPurger, retention time.Duration) (*TxRetentionJob, error) {
	var purge func(*gorm.DB, time.Time) (int64, error)
	if repo != nil {
		purge = repo.DeletePublishedBefore
	}
	return newTxRetentionJob("outbox-retention", "outbox", tx, purge, retention)
}

// NewDeadLetterRetentionJob purges dead letters that failed before the
// window.
func NewDeadLetterRetentionJob(tx txRunner, repo deadLetterPurger, retention time.Duration) (*TxRetentionJob, error) {
	var purge func(*gorm.DB, time.Time) (int64, error)
	if repo != nil {
		purge = repo.DeleteFailedBefore
	}
	return newTxRetentionJob("outbox-dlq-retention", "dead letter", tx, purge, retention)
}

func (j *TxRetentionJob) Name() string { return j.name }

func (j *TxRetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = j.purge(tx, cutoff)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purge %s rows before %s: %w", j.what, cutoff.Format(time.RFC3339), err)
	}
	return deleted, nil
}

// ChallengeRetentionJob removes delivery challenges that ended unverified.
// Verified challenges are payout evidence and stay.
type ChallengeRetentionJob struct {
	repo      challengePurger
	retention time.Duration
	now       func() time.Time
}

func NewChallengeRetentionJob(repo challengePurger, retention time.Duration) (*ChallengeRetentionJob, error) {
	switch {
	case repo == nil:
		return nil, errors.New("delivery challenge repository required")
	case retention <= 0:
		return nil, errors.New("challenge retention must be positive")
	}
	return &ChallengeRetentionJob{repo: repo, retention: retention, now: time.Now}, nil
}

func (j *ChallengeRetentionJob) Name() string { return "delivery-challenge-retention" }

func (j *ChallengeRetentionJob) Run(ctx context.Context) (int64, error) {
	rows, err := j.repo.PurgeUnverifiedBefore(ctx, j.now().UTC().Add(-j.retention))
	if err != nil {
		return 0, fmt.Errorf("purge delivery challenges: %w", err)
	}
	return rows, nil
}
