package maintenance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutboxPurger struct {
	cutoff time.Time
	rows   int64
	err    error
}

func (f *fakeOutboxPurger) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.rows, f.err
}

type fakeDeadLetterPurger struct {
	cutoff time.Time
	rows   int64
}

func (f *fakeDeadLetterPurger) DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.rows, nil
}

type fakeChallengePurger struct {
	cutoff time.Time
	rows   int64
	err    error
}

func (f *fakeChallengePurger) PurgeUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.rows, f.err
}

func TestOutboxRetentionJobUsesRetentionWindow(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPurger{rows: 9}
	job, err := NewOutboxRetentionJob(passthroughTx{}, repo, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job.now = func() time.Time { return now }

	rows, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rows != 9 {
		t.Fatalf("expected 9 rows, got %d", rows)
	}
	if want := now.Add(-30 * 24 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
}

func TestOutboxRetentionJobWrapsErrors(t *testing.T) {
	job, _ := NewOutboxRetentionJob(passthroughTx{}, &fakeOutboxPurger{err: errors.New("boom")}, time.Hour)
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestChallengeRetentionJob(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeChallengePurger{rows: 3}
	job, err := NewChallengeRetentionJob(repo, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewChallengeRetentionJob: %v", err)
	}
	job.now = func() time.Time { return now }

	rows, err := job.Run(context.Background())
	if err != nil || rows != 3 {
		t.Fatalf("unexpected result %d, %v", rows, err)
	}
	if want := now.Add(-7 * 24 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
}

func TestDeadLetterRetentionJob(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeDeadLetterPurger{rows: 4}
	job, err := NewDeadLetterRetentionJob(passthroughTx{}, repo, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("NewDeadLetterRetentionJob: %v", err)
	}
	job.now = func() time.Time { return now }

	rows, err := job.Run(context.Background())
	if err != nil || rows != 4 {
		t.Fatalf("unexpected result %d, %v", rows, err)
	}
	if want := now.Add(-90 * 24 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if job.Name() != "outbox-dlq-retention" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestRetentionJobsRejectInvalidConfig(t *testing.T) {
	if _, err := NewOutboxRetentionJob(passthroughTx{}, &fakeOutboxPurger{}, 0); err == nil {
		t.Fatal("expected error for zero retention")
	}
	_, err := NewDeadLetterRetentionJob(nil, nil, 0)
	if err == nil {
		t.Fatal("expected error for empty dead letter job")
	}
	for _, want := range []string{"transaction runner required", "dead letter repository required", "dead letter retention must be positive"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
	if _, err := NewChallengeRetentionJob(nil, time.Hour); err == nil {
		t.Fatal("expected error for missing repository")
	}
}
