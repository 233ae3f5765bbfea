package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
)

type txDB interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, err error) error
	MarkExhausted(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txDB
	Broker     pinger
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   eventResolver
	Publishers func(topic string) publisher
}

// Service drains outbox_events to Pub/Sub. Rows are locked with SKIP LOCKED
// inside one transaction per batch so several publishers can run side by side.
type Service struct {
	logg        *logger.Logger
	db          txDB
	broker      pinger
	repo        outboxRepository
	dlq         dlqRepository
	registry    eventResolver
	publishers  func(topic string) publisher
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Publishers == nil:
		return nil, errors.New("publisher source is required")
	}
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		broker:      params.Broker,
		repo:        params.Repository,
		dlq:         params.DLQ,
		registry:    params.Registry,
		publishers:  params.Publishers,
		batchSize:   positiveOr(params.Outbox.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(params.Outbox.MaxAttempts, defaultMaxAttempts),
		poll:        time.Duration(positiveOr(params.Outbox.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is cancelled. Full batches are followed immediately by
// the next one; empty polls and failed batches back off with jitter.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.broker.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}

	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = s.poll
	idle.MaxInterval = maxIdleBackoff
	idle.MaxElapsedTime = 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox batch failed", err)
		}
		if err == nil && count > 0 {
			idle.Reset()
			continue
		}
		if err == nil {
			// nothing pending: poll at the base rate instead of growing
			idle.Reset()
		}
		if err := sleep(ctx, idle.NextBackOff()); err != nil {
			return err
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (int, error) {
	var count int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.ClaimBatch(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		count = len(events)
		for _, event := range events {
			if err := s.handle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}

// handle publishes one row and records what happened to it. Only bookkeeping
// failures are returned; publish failures are written onto the row.
func (s *Service) handle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt":        event.AttemptCount + 1,
	}
	logCtx := s.logg.WithFields(ctx, fields)

	result, reason, pubErr := s.publish(ctx, event)
	switch result {
	case outcomePublished:
		if err := s.repo.MarkPublished(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", pubErr.Error()), "outbox publish failed, will retry")
		if err := s.repo.RecordFailure(tx, event.ID, pubErr); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
	case outcomeDeadLettered:
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{"error": pubErr.Error(), "dlq_reason": reason}), "outbox event dead-lettered")
		if err := s.dlq.InsertTx(tx, outbox.DeadLetter(event, reason, pubErr, event.AttemptCount+1)); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkExhausted(tx, event.ID, pubErr, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent) (outcome, enums.OutboxDLQErrorReason, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, enums.OutboxDLQReasonNonRetryable, err
	}
	pub := s.publishers(resolved.Descriptor.Topic)
	if pub == nil {
		return outcomeDeadLettered, enums.OutboxDLQReasonNonRetryable,
			fmt.Errorf("no publisher for topic %q", resolved.Descriptor.Topic)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err = pub.Publish(publishCtx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID.String(),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err == nil {
		return outcomePublished, "", nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return outcomeDeadLettered, enums.OutboxDLQReasonNonRetryable, err
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return outcomeDeadLettered, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err)
	}
	return outcomeRetry, "", err
}

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
