package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/course-store/internal/domain"
	generalDomain "github.com/sakashimaa/course-store/pkg/domain"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/course-store/pkg/outbox/domain"
	"github.com/sakashimaa/course-store/pkg/outbox/worker"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const aggregateOrder = "order"

// DocumentStore is the remote side of the storefront: per-user documents plus append-only
// orders and contact messages.
type DocumentStore interface {
	GetUserDocument(ctx context.Context, uid string) (*domain.UserDocument, error)
	UpsertUserDocument(ctx context.Context, uid string, patch domain.UserDocumentPatch) error
	// AppendOrder reports whether the order was new. Appending a known order number is a no-op.
	AppendOrder(ctx context.Context, order domain.Order) (bool, error)
	AppendContactMessage(ctx context.Context, msg *domain.ContactMessage) error
	ApplyOrderStats(ctx context.Context, tx pgx.Tx, uid string, total decimal.Decimal) error
	Ping(ctx context.Context) error
}

type documentRepo struct {
	pool   *pgxpool.Pool
	outbox worker.OutboxRepository
	logger *zap.Logger
	tracer trace.Tracer
}

func NewDocumentRepository(pool *pgxpool.Pool, outbox worker.OutboxRepository, logger *zap.Logger) DocumentStore {
	return &documentRepo{
		pool:   pool,
		outbox: outbox,
		logger: logger,
		tracer: otel.Tracer("document_repository"),
	}
}

func (r *documentRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *documentRepo) GetUserDocument(ctx context.Context, uid string) (*domain.UserDocument, error) {
	ctx, span := r.tracer.Start(ctx, "DocumentRepository.GetUserDocument")
	defer span.End()

	span.SetAttributes(attribute.String("uid", uid))

	query := `
		SELECT uid, email, display_name, cart, order_count, lifetime_spend, updated_at
		FROM user_documents
		WHERE uid = $1
	`

	var (
		doc      domain.UserDocument
		cartJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, uid).Scan(
		&doc.UID,
		&doc.Email,
		&doc.DisplayName,
		&cartJSON,
		&doc.OrderCount,
		&doc.LifetimeSpend,
		&doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserDocumentNotFound
	}
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to get user document", zap.Error(err))

		return nil, fmt.Errorf("get user document: %w", err)
	}

	if err := json.Unmarshal(cartJSON, &doc.Cart); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode remote cart: %w", err)
	}

	return &doc, nil
}

func (r *documentRepo) UpsertUserDocument(ctx context.Context, uid string, patch domain.UserDocumentPatch) error {
	ctx, span := r.tracer.Start(ctx, "DocumentRepository.UpsertUserDocument")
	defer span.End()

	span.SetAttributes(attribute.String("uid", uid))

	if uid == "" {
		return ErrEmptyUID
	}

	var cartJSON []byte
	if patch.Cart != nil {
		raw, err := json.Marshal(patch.Cart)
		if err != nil {
			return fmt.Errorf("encode cart: %w", err)
		}
		cartJSON = raw
	}

	query := `
		INSERT INTO user_documents (uid, email, display_name, cart)
		VALUES (
			$1,
			COALESCE($2::text, ''),
			COALESCE($3::text, ''),
			COALESCE($4::jsonb, '{"items": []}'::jsonb)
		)
		ON CONFLICT (uid) DO UPDATE
		SET email        = COALESCE($2::text, user_documents.email),
			display_name = COALESCE($3::text, user_documents.display_name),
			cart         = COALESCE($4::jsonb, user_documents.cart),
			updated_at   = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, uid, patch.Email, patch.DisplayName, cartJSON); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to upsert user document", zap.Error(err))

		return fmt.Errorf("upsert user document: %w", err)
	}

	return nil
}

func (r *documentRepo) AppendOrder(ctx context.Context, order domain.Order) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "DocumentRepository.AppendOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_number", order.OrderNumber),
		attribute.String("uid", order.UserID),
	)

	if order.UserID == "" {
		return false, ErrEmptyUID
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return false, fmt.Errorf("encode order: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(ctx, r.logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	query := `
		INSERT INTO orders (order_number, uid, payload, total, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_number) DO NOTHING
	`

	tag, err := tx.Exec(ctx, query, order.OrderNumber, order.UserID, payload, order.Total, order.Timestamp)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert order", zap.Error(err))

		return false, fmt.Errorf("insert order: %w", err)
	}

	if tag.RowsAffected() == 0 {
		mylogger.Info(ctx, r.logger, "Order already stored", zap.String("order_number", order.OrderNumber))
		return false, nil
	}

	if err := r.saveOrderCompleted(ctx, tx, order); err != nil {
		span.RecordError(err)
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("commit order: %w", err)
	}

	return true, nil
}

func (r *documentRepo) saveOrderCompleted(ctx context.Context, tx pgx.Tx, order domain.Order) error {
	items := make([]generalDomain.OrderCompletedItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = generalDomain.OrderCompletedItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		}
	}

	envelope, err := outboxDomain.NewEnvelope(generalDomain.EventOrderCompleted, generalDomain.OrderCompletedEvent{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		Items:       items,
		CompletedAt: order.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}

	return r.outbox.SaveOutboxEvent(ctx, tx, &outboxDomain.OutboxEvent{
		AggregateType: aggregateOrder,
		AggregateID:   order.OrderNumber,
		EventType:     generalDomain.EventOrderCompleted,
		Payload:       envelope,
		Topic:         outboxDomain.TopicOrderEvents,
	})
}

func (r *documentRepo) AppendContactMessage(ctx context.Context, msg *domain.ContactMessage) error {
	ctx, span := r.tracer.Start(ctx, "DocumentRepository.AppendContactMessage")
	defer span.End()

	query := `
		INSERT INTO contact_messages (uid, name, email, subject, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query, msg.UID, msg.Name, msg.Email, msg.Subject, msg.Message).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to store contact message", zap.Error(err))

		return fmt.Errorf("insert contact message: %w", err)
	}

	return nil
}

// ApplyOrderStats bumps the aggregate counters of uid inside tx, creating the document if needed.
func (r *documentRepo) ApplyOrderStats(ctx context.Context, tx pgx.Tx, uid string, total decimal.Decimal) error {
	ctx, span := r.tracer.Start(ctx, "DocumentRepository.ApplyOrderStats")
	defer span.End()

	span.SetAttributes(
		attribute.String("uid", uid),
		attribute.String("total", total.StringFixed(2)),
	)

	query := `
		INSERT INTO user_documents (uid, order_count, lifetime_spend)
		VALUES ($1, 1, $2)
		ON CONFLICT (uid) DO UPDATE
		SET order_count    = user_documents.order_count + 1,
			lifetime_spend = user_documents.lifetime_spend + EXCLUDED.lifetime_spend,
			updated_at     = NOW()
	`

	if _, err := tx.Exec(ctx, query, uid, total); err != nil {
		span.RecordError(err)
		return fmt.Errorf("apply order stats: %w", err)
	}

	return nil
}
