package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/repository"
	"github.com/sakashimaa/course-store/internal/storage"
	"github.com/sakashimaa/course-store/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testBreaker() *gobreaker.CircuitBreaker {
	return utils.NewBreaker(utils.BreakerConfig{
		Name:        "test-remote",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
	}, zap.NewNop())
}

func readyNow() *Readiness {
	r := NewReadiness(1, 0, zap.NewNop())
	r.Probe(context.Background(), pingerFunc(func(context.Context) error { return nil }))
	return r
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// flakyStore fails writes (and optionally reads) while the switches are on.
type flakyStore struct {
	*storage.MemoryStore
	failSet atomic.Bool
	failGet atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *flakyStore) Get(ctx context.Context, profileID, key string) ([]byte, error) {
	if s.failGet.Load() {
		return nil, errBoom
	}
	return s.MemoryStore.Get(ctx, profileID, key)
}

func (s *flakyStore) Set(ctx context.Context, profileID, key string, value []byte) error {
	if s.failSet.Load() {
		return errBoom
	}
	return s.MemoryStore.Set(ctx, profileID, key, value)
}

type fakeRemote struct {
	mu        sync.Mutex
	docs      map[string]domain.UserDocument
	orders    map[string]domain.Order
	getCalls  int
	putCalls  int
	appends   int
	getErr    error
	putErr    error
	appendErr error

	// when set, GetUserDocument signals entered and blocks until release is closed
	entered chan struct{}
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:   make(map[string]domain.UserDocument),
		orders: make(map[string]domain.Order),
	}
}

func (f *fakeRemote) GetUserDocument(ctx context.Context, uid string) (*domain.UserDocument, error) {
	f.mu.Lock()
	f.getCalls++
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}

	doc, ok := f.docs[uid]
	if !ok {
		return nil, repository.ErrUserDocumentNotFound
	}
	doc.Cart = doc.Cart.Clone()

	return &doc, nil
}

func (f *fakeRemote) UpsertUserDocument(_ context.Context, uid string, patch domain.UserDocumentPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.putCalls++
	if f.putErr != nil {
		return f.putErr
	}

	doc := f.docs[uid]
	doc.UID = uid
	if patch.Email != nil {
		doc.Email = *patch.Email
	}
	if patch.DisplayName != nil {
		doc.DisplayName = *patch.DisplayName
	}
	if patch.Cart != nil {
		doc.Cart = patch.Cart.Clone()
	}
	f.docs[uid] = doc

	return nil
}

func (f *fakeRemote) AppendOrder(_ context.Context, order domain.Order) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.appends++
	if f.appendErr != nil {
		return false, f.appendErr
	}
	if _, ok := f.orders[order.OrderNumber]; ok {
		return false, nil
	}
	f.orders[order.OrderNumber] = order

	return true, nil
}

func (f *fakeRemote) remoteCart(uid string) domain.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.docs[uid].Cart.Clone()
}

func (f *fakeRemote) counts() (gets, puts, appends int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.getCalls, f.putCalls, f.appends
}
