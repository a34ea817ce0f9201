package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/internal/storage"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/sakashimaa/course-store/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type RemoteOrders interface {
	AppendOrder(ctx context.Context, order domain.Order) (bool, error)
}

// OrderHistory is the per-owner receipt log. There is no update or delete.
type OrderHistory interface {
	// Append upserts by order number locally, then mirrors to the remote store when signed in.
	// Only the local write can fail the call.
	Append(ctx context.Context, profileID string, id identity.Identity, order domain.Order) error
	List(ctx context.Context, profileID string, id identity.Identity) ([]domain.Order, error)
}

type orderHistory struct {
	store         storage.LocalStore
	remote        RemoteOrders
	breaker       *gobreaker.CircuitBreaker
	remoteTimeout time.Duration
	logger        *zap.Logger
	tracer        trace.Tracer

	mu sync.Mutex
}

func NewOrderHistory(
	store storage.LocalStore,
	remote RemoteOrders,
	breaker *gobreaker.CircuitBreaker,
	remoteTimeout time.Duration,
	logger *zap.Logger,
) OrderHistory {
	return &orderHistory{
		store:         store,
		remote:        remote,
		breaker:       breaker,
		remoteTimeout: remoteTimeout,
		logger:        logger,
		tracer:        otel.Tracer("order_history"),
	}
}

func (h *orderHistory) Append(ctx context.Context, profileID string, id identity.Identity, order domain.Order) error {
	ctx, span := h.tracer.Start(ctx, "OrderHistory.Append")
	defer span.End()

	span.SetAttributes(attribute.String("order_number", order.OrderNumber))

	if err := h.appendLocal(ctx, profileID, domain.OwnerKey(id.UID), order); err != nil {
		span.RecordError(err)
		return err
	}

	if id.IsGuest() || h.remote == nil {
		return nil
	}

	remoteCtx, cancel := context.WithTimeout(ctx, h.remoteTimeout)
	defer cancel()

	inserted, err := utils.ExecuteWithBreaker(h.breaker, func() (bool, error) {
		return h.remote.AppendOrder(remoteCtx, order)
	})
	if err != nil {
		mylogger.Warn(ctx, h.logger, "Remote order append failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
		return nil
	}

	span.SetAttributes(attribute.Bool("remote_inserted", inserted))

	return nil
}

func (h *orderHistory) appendLocal(ctx context.Context, profileID, owner string, order domain.Order) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	orders, err := h.load(ctx, profileID, owner)
	if err != nil {
		return err
	}

	replaced := false
	for i := range orders {
		if orders[i].OrderNumber == order.OrderNumber {
			orders[i] = order
			replaced = true
			break
		}
	}
	if !replaced {
		orders = append(orders, order)
	}

	if err := storage.SetJSON(ctx, h.store, profileID, storage.OrdersKey(owner), orders); err != nil {
		return fmt.Errorf("save order history: %w", err)
	}

	return nil
}

func (h *orderHistory) List(ctx context.Context, profileID string, id identity.Identity) ([]domain.Order, error) {
	return h.load(ctx, profileID, domain.OwnerKey(id.UID))
}

// load treats an unreadable history as empty; only store outages are errors.
func (h *orderHistory) load(ctx context.Context, profileID, owner string) ([]domain.Order, error) {
	raw, err := h.store.Get(ctx, profileID, storage.OrdersKey(owner))
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.Order{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order history: %w", err)
	}

	var orders []domain.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		mylogger.Warn(ctx, h.logger, "Order history unreadable, starting empty", zap.String("owner", owner), zap.Error(err))
		return []domain.Order{}, nil
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	return orders, nil
}
