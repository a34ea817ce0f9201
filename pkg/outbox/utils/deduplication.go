package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProcessOnce runs action at most once per (consumer, eventID). The processed_events marker and
// everything action writes through tx commit together, so a redelivered message is a no-op.
// It reports whether action ran.
func ProcessOnce(
	ctx context.Context,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	consumer string,
	eventID int64,
	action func(tx pgx.Tx) error,
) (bool, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("dedup.consumer", consumer), attribute.Int64("dedup.event_id", eventID))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin dedup transaction: %w", err)
	}

	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(cleanupCtx, logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_events (consumer, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, consumer, eventID)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to mark event %d: %w", eventID, err)
	}

	if tag.RowsAffected() == 0 {
		mylogger.Info(ctx, logger, "Event already processed, skipping",
			zap.String("consumer", consumer),
			zap.Int64("event_id", eventID),
		)
		return false, nil
	}

	if err := action(tx); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to process event %d: %w", eventID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to commit event %d: %w", eventID, err)
	}

	return true, nil
}
