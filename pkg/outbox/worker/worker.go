package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/course-store/pkg/kafka"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/sakashimaa/course-store/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, error string) error
}

type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type Option func(*OutboxProcessor)

func WithBatchSize(n int) Option {
	return func(p *OutboxProcessor) { p.batchSize = n }
}

func WithInterval(d time.Duration) Option {
	return func(p *OutboxProcessor) { p.interval = d }
}

// OutboxProcessor relays committed outbox rows to Kafka.
type OutboxProcessor struct {
	pool      *pgxpool.Pool
	repo      OutboxRepository
	publisher Publisher
	logger    *zap.Logger
	batchSize int
	interval  time.Duration
	tracer    trace.Tracer
}

func NewOutboxProcessor(
	pool *pgxpool.Pool,
	repo OutboxRepository,
	publisher Publisher,
	logger *zap.Logger,
	opts ...Option,
) *OutboxProcessor {
	p := &OutboxProcessor{
		pool:      pool,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		batchSize: 50,
		interval:  500 * time.Millisecond,
		tracer:    otel.Tracer("outbox-worker"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(ctx, p.logger, "Starting outbox processor", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				mylogger.Warn(ctx, p.logger, "Error processing outbox batch", zap.Error(err))
			}
		}
	}
}

func (p *OutboxProcessor) processBatch(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.processBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("outbox.batch", len(events)))

	for _, event := range events {
		p.relay(ctx, tx, event)
	}

	return tx.Commit(ctx)
}

func (p *OutboxProcessor) relay(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) {
	var envelope domain.Envelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		mylogger.Error(
			ctx,
			p.logger,
			"Outbox event payload is not an envelope",
			zap.Int64("id", event.ID),
			zap.Error(err),
		)

		p.markFailed(ctx, tx, event.ID, err)
		return
	}

	envelope.EventID = event.ID
	if envelope.Event == "" {
		envelope.Event = event.EventType
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		p.markFailed(ctx, tx, event.ID, err)
		return
	}

	err = p.publisher.Publish(ctx, kafka.Message{
		Topic:   event.Topic,
		Key:     event.AggregateID,
		Value:   value,
		Headers: event.Headers,
	})
	if err != nil {
		mylogger.Warn(
			ctx,
			p.logger,
			"Outbox worker produce message failed",
			zap.Int64("id", event.ID),
			zap.Error(err),
		)

		p.markFailed(ctx, tx, event.ID, err)
		return
	}

	if err := p.repo.MarkEventPublished(ctx, tx, event.ID); err != nil {
		mylogger.Error(
			ctx,
			p.logger,
			"Outbox worker mark published failed",
			zap.Int64("id", event.ID),
			zap.Error(err),
		)
		return
	}

	mylogger.Debug(ctx, p.logger, "Outbox event published", zap.Int64("id", event.ID))
}

func (p *OutboxProcessor) markFailed(ctx context.Context, tx pgx.Tx, eventID int64, cause error) {
	if err := p.repo.MarkEventFailed(ctx, tx, eventID, cause.Error()); err != nil {
		mylogger.Error(
			ctx,
			p.logger,
			"Outbox worker mark failed failed",
			zap.Int64("id", eventID),
			zap.Error(err),
		)
	}
}
