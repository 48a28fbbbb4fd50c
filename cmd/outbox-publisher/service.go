package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/db/models"
	"github.com/justcook/justcook-backend/pkg/logger"
	"github.com/justcook/justcook-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	batchPublishTimeout   = 15 * time.Second
	maxIdleBackoff        = 10 * time.Second
	maxJitter             = 250 * time.Millisecond
	reasonNonRetryable    = "non_retryable"
	reasonAttemptsReached = "max_attempts"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publishRecorder interface {
	ObservePublish(topic string, duration time.Duration)
	IncPublished(eventType string)
	IncFailed(eventType string)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          publishRecorder
}

// Service relays committed outbox rows to Pub/Sub. Each batch is claimed
// with row locks, published in one burst and settled row by row.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	metrics      publishRecorder
	publisherFor publisherFactory
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		missing bool
		name    string
	}{
		{params.Config == nil, "config"},
		{params.Logger == nil, "logger"},
		{params.DB == nil, "database client"},
		{params.PubSub == nil, "pubsub client"},
		{params.Repository == nil, "outbox repository"},
		{params.Registry == nil, "event registry"},
	}
	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	svc := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		metrics:      params.Metrics,
		publisherFor: params.PublisherFactory,
		batchSize:    params.Config.Outbox.BatchSize,
		maxAttempts:  params.Config.Outbox.MaxAttempts,
		pollInterval: time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if svc.metrics == nil {
		svc.metrics = noopRecorder{}
	}
	if svc.publisherFor == nil {
		svc.publisherFor = cachedPublishers(params.PubSub)
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxAttempts
	}
	if svc.pollInterval <= 0 {
		svc.pollInterval = defaultPollInterval
	}
	return svc, nil
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one; failing batches back off up to maxIdleBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	delay := backoff{base: s.pollInterval, max: maxIdleBackoff}
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = delay.next()
		case processed:
			delay.reset()
			continue
		default:
			delay.reset()
			wait = s.pollInterval
		}
		if err := sleep(ctx, wait+rand.N(maxJitter)); err != nil {
			return err
		}
	}
}

func (s *Service) checkDependencies(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// inflight is a row whose message has been handed to the Pub/Sub client but
// not yet acknowledged.
type inflight struct {
	event   models.OutboxEvent
	topic   string
	fields  map[string]any
	started time.Time
	result  publishResult
	err     error
}

// processBatch reports whether any rows were claimed. Only bookkeeping
// failures are returned; publish failures are recorded on the rows.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows) > 0

		publishCtx, cancel := context.WithTimeout(ctx, batchPublishTimeout)
		defer cancel()

		pending := make([]*inflight, 0, len(rows))
		for _, row := range rows {
			resolved, err := s.registry.Resolve(row)
			if err != nil {
				if err := s.park(ctx, tx, row, rowFields(row), reasonNonRetryable, err); err != nil {
					return err
				}
				continue
			}
			pending = append(pending, s.send(publishCtx, row, resolved))
		}
		for _, msg := range pending {
			if err := s.settle(ctx, publishCtx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) send(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) *inflight {
	topic := resolved.Descriptor.Topic
	msg := &inflight{event: event, topic: topic, fields: rowFields(event), started: time.Now()}
	msg.fields["topic"] = topic
	msg.fields["event_id"] = resolved.Envelope.EventID

	pub := s.publisherFor(topic)
	if pub == nil {
		msg.err = registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
		return msg
	}
	msg.result = pub.Publish(ctx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if msg.result == nil {
		msg.err = registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	return msg
}

func (s *Service) settle(ctx, publishCtx context.Context, tx *gorm.DB, msg *inflight) error {
	err := msg.err
	if err == nil {
		_, err = msg.result.Get(publishCtx)
	}
	s.metrics.ObservePublish(msg.topic, time.Since(msg.started))
	event := msg.event

	if err == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, msg.fields), "outbox event published")
		return nil
	}

	s.metrics.IncFailed(string(event.EventType))
	var permanent registry.NonRetryableError
	if errors.As(err, &permanent) {
		return s.park(ctx, tx, event, msg.fields, reasonNonRetryable, err)
	}
	attempts := event.AttemptCount + 1
	msg.fields["attempt_count"] = attempts
	if attempts >= s.maxAttempts {
		return s.park(ctx, tx, event, msg.fields, reasonAttemptsReached, fmt.Errorf("giving up after %d attempts: %w", attempts, err))
	}

	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, msg.fields), "error", err.Error()), "outbox publish failed, will retry")
	if err := s.repo.MarkFailedTx(tx, event.ID, err); err != nil {
		return fmt.Errorf("mark %s failed: %w", event.ID, err)
	}
	return nil
}

// park stops retrying a row. It stays in the table for the cron report.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, fields map[string]any, reason string, cause error) error {
	fields["terminal_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event parked")
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", event.ID, err)
	}
	return nil
}

func rowFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

type backoff struct {
	base, max, current time.Duration
}

func (b *backoff) next() time.Duration {
	if b.current < b.base {
		b.current = b.base
	}
	b.current = min(b.current*2, b.max)
	return b.current
}

func (b *backoff) reset() { b.current = 0 }

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopRecorder struct{}

func (noopRecorder) ObservePublish(string, time.Duration) {}
func (noopRecorder) IncPublished(string) {}
func (noopRecorder) IncFailed(string) {}

// cachedPublishers keeps one long-lived publisher per topic. The relay loop
// is single-goroutine so the map needs no lock.
func cachedPublishers(client pubSubClient) publisherFactory {
	cache := map[string]publisher{}
	return func(topic string) publisher {
		if pub, ok := cache[topic]; ok {
			return pub
		}
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		pub := gcpPublisher{raw}
		cache[topic] = pub
		return pub
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
