package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxMaintenance interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	CountParked(ctx context.Context, maxAttempts int) (int64, error)
}

// OutboxRetentionJob deletes relayed outbox rows once they age past the
// retention window. Undelivered rows are never touched.
type OutboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      outboxMaintenance
	retention time.Duration
	now       func() time.Time
}

func NewOutboxRetentionJob(logg *logger.Logger, db txRunner, repo outboxMaintenance, retention time.Duration) (*OutboxRetentionJob, error) {
	if logg == nil || db == nil || repo == nil {
		return nil, errors.New("logger, db and outbox repository are required")
	}
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &OutboxRetentionJob{logg: logg, db: db, repo: repo, retention: retention, now: time.Now}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox.retention_complete")
	return nil
}

// ParkedOutboxJob reports events the relay gave up on. Those order_paid and
// referral_redeemed notifications need an operator to replay them.
type ParkedOutboxJob struct {
	logg        *logger.Logger
	repo        outboxMaintenance
	maxAttempts int
}

func NewParkedOutboxJob(logg *logger.Logger, repo outboxMaintenance, maxAttempts int) (*ParkedOutboxJob, error) {
	if logg == nil || repo == nil {
		return nil, errors.New("logger and outbox repository are required")
	}
	if maxAttempts <= 0 {
		return nil, errors.New("max attempts must be positive")
	}
	return &ParkedOutboxJob{logg: logg, repo: repo, maxAttempts: maxAttempts}, nil
}

func (j *ParkedOutboxJob) Name() string { return "outbox-parked-report" }

func (j *ParkedOutboxJob) Run(ctx context.Context) error {
	parked, err := j.repo.CountParked(ctx, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("count parked outbox rows: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "parked", parked)
	if parked > 0 {
		j.logg.Warn(logCtx, "outbox.parked_events")
		return nil
	}
	j.logg.Info(logCtx, "outbox.no_parked_events")
	return nil
}
