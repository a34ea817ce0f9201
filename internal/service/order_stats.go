package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	generalDomain "github.com/sakashimaa/course-store/pkg/domain"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/sakashimaa/course-store/pkg/outbox/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrMissingEventID = errors.New("event id is required")

// StatsConsumer names the stats projection in processed_events.
const StatsConsumer = "order-stats"

type StatsRepository interface {
	ApplyOrderStats(ctx context.Context, tx pgx.Tx, uid string, total decimal.Decimal) error
}

type OrderStatsService interface {
	HandleOrderCompleted(ctx context.Context, eventID int64, event *generalDomain.OrderCompletedEvent) error
}

type orderStatsService struct {
	pool   *pgxpool.Pool
	repo   StatsRepository
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderStatsService(pool *pgxpool.Pool, repo StatsRepository, logger *zap.Logger) OrderStatsService {
	return &orderStatsService{
		pool:   pool,
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("order_stats_service"),
	}
}

// HandleOrderCompleted bumps the owner's order count and lifetime spend once per event.
func (s *orderStatsService) HandleOrderCompleted(ctx context.Context, eventID int64, event *generalDomain.OrderCompletedEvent) error {
	ctx, span := s.tracer.Start(ctx, "OrderStatsService.HandleOrderCompleted")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("order_number", event.OrderNumber),
	)

	if eventID == 0 {
		return ErrMissingEventID
	}
	if event.UserID == "" {
		mylogger.Warn(ctx, s.logger, "Order event without owner, ignoring", zap.String("order_number", event.OrderNumber))
		return nil
	}

	applied, err := utils.ProcessOnce(ctx, s.pool, s.logger, StatsConsumer, eventID, func(tx pgx.Tx) error {
		return s.repo.ApplyOrderStats(ctx, tx, event.UserID, event.Total)
	})
	if err != nil {
		return err
	}

	if applied {
		mylogger.Debug(ctx, s.logger, "Order stats applied", zap.String("uid", event.UserID), zap.String("order_number", event.OrderNumber))
	}

	return nil
}
