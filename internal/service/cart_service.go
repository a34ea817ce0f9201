package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/storage"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrItemNotFound = errors.New("item not in cart")

// CartListener observes every cart mutation after it has been applied.
type CartListener func(ctx context.Context, profileID string, cart domain.Cart)

type CartStore interface {
	Get(ctx context.Context, profileID string) domain.Cart
	Add(ctx context.Context, profileID string, item domain.LineItem) (domain.Cart, domain.LineItem, error)
	Remove(ctx context.Context, profileID, id string) domain.Cart
	UpdateQuantity(ctx context.Context, profileID, id string, quantity int) (domain.Cart, error)
	Clear(ctx context.Context, profileID string) domain.Cart
	// Merge applies the remote-wins merge under the profile lock and persists the result.
	Merge(ctx context.Context, profileID string, remote domain.Cart) domain.Cart
	Total(ctx context.Context, profileID string) decimal.Decimal
	ItemCount(ctx context.Context, profileID string) int
	// Age is the time since the last persisted mutation; false when nothing was ever stored.
	Age(ctx context.Context, profileID string) (time.Duration, bool)
	OnChange(listener CartListener)
}

type profileCart struct {
	mu       sync.Mutex
	cart     domain.Cart
	loaded   bool
	lastUsed time.Time
	evicted  bool
}

// DefaultCartIdleTTL is how long an untouched cart stays cached in memory. Evicted carts are
// reloaded from the local store on next use.
const DefaultCartIdleTTL = 30 * time.Minute

type CartOption func(*cartService)

func WithIdleTTL(d time.Duration) CartOption {
	return func(s *cartService) { s.idleTTL = d }
}

type cartService struct {
	store  storage.LocalStore
	logger *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
	idleTTL time.Duration

	mu    sync.Mutex
	carts map[string]*profileCart

	listenersMu sync.RWMutex
	listeners   []CartListener
}

func NewCartService(store storage.LocalStore, logger *zap.Logger, opts ...CartOption) CartStore {
	s := &cartService{
		store:   store,
		logger:  logger,
		tracer:  otel.Tracer("cart_service"),
		now:     time.Now,
		idleTTL: DefaultCartIdleTTL,
		carts:   make(map[string]*profileCart),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *cartService) OnChange(listener CartListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.listeners = append(s.listeners, listener)
}

func (s *cartService) Get(ctx context.Context, profileID string) domain.Cart {
	cart, _ := s.read(ctx, profileID)
	return cart
}

func (s *cartService) Total(ctx context.Context, profileID string) decimal.Decimal {
	cart, _ := s.read(ctx, profileID)
	return cart.Total()
}

func (s *cartService) ItemCount(ctx context.Context, profileID string) int {
	cart, _ := s.read(ctx, profileID)
	return cart.ItemCount()
}

func (s *cartService) Add(ctx context.Context, profileID string, item domain.LineItem) (domain.Cart, domain.LineItem, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.Add")
	defer span.End()

	var added domain.LineItem
	cart, err := s.mutate(ctx, profileID, func(c *domain.Cart, now time.Time) (bool, error) {
		var err error
		added, err = c.Add(item, now)
		return err == nil, err
	})
	if err != nil {
		span.RecordError(err)
		return cart, domain.LineItem{}, err
	}

	span.SetAttributes(
		attribute.String("item_id", added.ID),
		attribute.Int("quantity", added.Quantity),
	)

	return cart, added, nil
}

func (s *cartService) Remove(ctx context.Context, profileID, id string) domain.Cart {
	cart, _ := s.mutate(ctx, profileID, func(c *domain.Cart, _ time.Time) (bool, error) {
		return c.Remove(id), nil
	})

	return cart
}

func (s *cartService) UpdateQuantity(ctx context.Context, profileID, id string, quantity int) (domain.Cart, error) {
	return s.mutate(ctx, profileID, func(c *domain.Cart, now time.Time) (bool, error) {
		if quantity <= 0 {
			return c.Remove(id), nil
		}
		if !c.UpdateQuantity(id, quantity, now) {
			return false, ErrItemNotFound
		}

		return true, nil
	})
}

func (s *cartService) Clear(ctx context.Context, profileID string) domain.Cart {
	cart, _ := s.mutate(ctx, profileID, func(c *domain.Cart, _ time.Time) (bool, error) {
		c.Clear()
		return true, nil
	})

	return cart
}

func (s *cartService) Merge(ctx context.Context, profileID string, remote domain.Cart) domain.Cart {
	cart, _ := s.mutate(ctx, profileID, func(c *domain.Cart, now time.Time) (bool, error) {
		*c = domain.MergeRemote(*c, remote, now)
		return true, nil
	})

	return cart
}

func (s *cartService) Age(ctx context.Context, profileID string) (time.Duration, bool) {
	updatedAt, err := storage.LoadTimestamp(ctx, s.store, profileID, storage.KeyCartUpdatedAt)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			mylogger.Warn(ctx, s.logger, "Failed to read cart timestamp", zap.Error(err))
		}
		return 0, false
	}

	return s.now().Sub(updatedAt), true
}

func (s *cartService) entry(profileID string) *profileCart {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.carts[profileID]
	if !ok {
		s.evictIdle()
		e = &profileCart{lastUsed: s.now()}
		s.carts[profileID] = e
	}

	return e
}

// evictIdle drops cached carts untouched for longer than idleTTL. Must hold s.mu; entries
// locked by a request are left alone.
func (s *cartService) evictIdle() {
	if s.idleTTL <= 0 {
		return
	}

	now := s.now()
	for profileID, e := range s.carts {
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.lastUsed) > s.idleTTL {
			e.evicted = true
			delete(s.carts, profileID)
		}
		e.mu.Unlock()
	}
}

func (s *cartService) read(ctx context.Context, profileID string) (domain.Cart, error) {
	return s.mutate(ctx, profileID, func(*domain.Cart, time.Time) (bool, error) {
		return false, nil
	})
}

// mutate runs fn on the profile's cart under its lock. When fn reports a change the cart is
// persisted and listeners are notified with a snapshot.
func (s *cartService) mutate(
	ctx context.Context,
	profileID string,
	fn func(c *domain.Cart, now time.Time) (bool, error),
) (domain.Cart, error) {
	e := s.entry(profileID)

	e.mu.Lock()
	for e.evicted {
		e.mu.Unlock()
		e = s.entry(profileID)
		e.mu.Lock()
	}
	if !e.loaded {
		e.cart = s.load(ctx, profileID)
		e.loaded = true
	}

	now := s.now()
	e.lastUsed = now
	changed, err := fn(&e.cart, now)
	if changed {
		s.persist(ctx, profileID, e.cart, now)
	}
	snapshot := e.cart.Clone()
	e.mu.Unlock()

	if changed {
		s.notify(ctx, profileID, snapshot)
	}

	return snapshot, err
}

// load never fails: anything unreadable resets the cart to empty.
func (s *cartService) load(ctx context.Context, profileID string) domain.Cart {
	var cart domain.Cart
	err := storage.GetJSON(ctx, s.store, profileID, storage.KeyCart, &cart)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return domain.NewCart(nil)
	case err != nil:
		mylogger.Warn(ctx, s.logger, "Failed to load cart, starting empty", zap.Error(err))
		return domain.NewCart(nil)
	}

	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}

	return cart
}

func (s *cartService) persist(ctx context.Context, profileID string, cart domain.Cart, now time.Time) {
	if err := storage.SetJSON(ctx, s.store, profileID, storage.KeyCart, cart); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to persist cart", zap.Error(err))
		return
	}

	if err := storage.SaveTimestamp(ctx, s.store, profileID, storage.KeyCartUpdatedAt, now); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to persist cart timestamp", zap.Error(err))
	}
}

func (s *cartService) notify(ctx context.Context, profileID string, cart domain.Cart) {
	s.listenersMu.RLock()
	listeners := append([]CartListener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ctx, profileID, cart)
	}
}
