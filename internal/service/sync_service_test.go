package service

import (
	"context"
	"testing"
	"time"

	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/internal/storage"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type SyncServiceSuite struct {
	suite.Suite

	ctx    context.Context
	carts  CartStore
	remote *fakeRemote
	sync   *SyncService
	user   identity.Identity
}

func (s *SyncServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.carts = NewCartService(storage.NewMemoryStore(), zap.NewNop())
	s.remote = newFakeRemote()
	s.user = identity.Demo("ada@example.com", "Ada")
	s.sync = NewSyncService(s.carts, s.remote, readyNow(), testBreaker(), 10*time.Millisecond, time.Second, zap.NewNop())
}

func (s *SyncServiceSuite) addLocal(id string, qty int) {
	_, _, err := s.carts.Add(s.ctx, "p1", domain.LineItem{ID: id, Name: id, Price: price("10"), Quantity: qty})
	s.Require().NoError(err)
}

func (s *SyncServiceSuite) TestGuestIsLocalOnly() {
	res, err := s.sync.SyncNow(s.ctx, "p1", identity.Identity{})

	s.Require().NoError(err)
	s.Require().Equal(SyncLocalOnly, res.Status)

	gets, puts, _ := s.remote.counts()
	s.Require().Zero(gets + puts)
}

func (s *SyncServiceSuite) TestRemoteUnreachableIsLocalOnly() {
	r := NewReadiness(1, 0, zap.NewNop())
	r.Probe(s.ctx, nil)
	s.sync = NewSyncService(s.carts, s.remote, r, testBreaker(), time.Minute, time.Second, zap.NewNop())

	res, err := s.sync.SyncNow(s.ctx, "p1", s.user)

	s.Require().NoError(err)
	s.Require().Equal(SyncLocalOnly, res.Status)
}

func (s *SyncServiceSuite) TestRemoteWinsAndPushesBack() {
	s.addLocal("x", 1)
	s.addLocal("only-local", 2)
	s.Require().NoError(s.remote.UpsertUserDocument(s.ctx, s.user.UID, domain.UserDocumentPatch{
		Cart: &domain.Cart{Items: []domain.LineItem{
			{ID: "x", Name: "x", Price: price("10"), Quantity: 5},
			{ID: "only-remote", Name: "only-remote", Price: price("3"), Quantity: 1},
		}},
	}))

	res, err := s.sync.SyncNow(s.ctx, "p1", s.user)
	s.Require().NoError(err)
	s.Require().Equal(SyncSynced, res.Status)
	s.Require().Equal(3, res.Items)

	local := s.carts.Get(s.ctx, "p1")
	x, _ := local.Find("x")
	s.Require().Equal(5, x.Quantity)
	kept, _ := local.Find("only-local")
	s.Require().Equal(2, kept.Quantity)

	remote := s.remote.remoteCart(s.user.UID)
	s.Require().Len(remote.Items, 3)
	s.Require().Equal("ada@example.com", s.remote.docs[s.user.UID].Email)
}

func (s *SyncServiceSuite) TestMissingDocumentIsCreated() {
	s.addLocal("go", 1)

	res, err := s.sync.SyncNow(s.ctx, "p1", s.user)
	s.Require().NoError(err)
	s.Require().Equal(SyncSynced, res.Status)

	s.Require().Len(s.remote.remoteCart(s.user.UID).Items, 1)
}

func (s *SyncServiceSuite) TestRemoteReadFailureSkipsAndKeepsLocal() {
	s.addLocal("go", 2)
	s.remote.getErr = errBoom

	res, err := s.sync.SyncNow(s.ctx, "p1", s.user)
	s.Require().NoError(err)
	s.Require().Equal(SyncSkipped, res.Status)

	_, puts, _ := s.remote.counts()
	s.Require().Zero(puts)
	s.Require().Equal(2, s.carts.ItemCount(s.ctx, "p1"))
}

func (s *SyncServiceSuite) TestRemoteWriteFailureSkips() {
	s.addLocal("go", 1)
	s.remote.putErr = errBoom

	res, err := s.sync.SyncNow(s.ctx, "p1", s.user)
	s.Require().NoError(err)
	s.Require().Equal(SyncSkipped, res.Status)
	s.Require().Equal(1, res.Items)
}

func (s *SyncServiceSuite) TestOverlappingSyncIsSingleFlight() {
	s.remote.entered = make(chan struct{})
	s.remote.release = make(chan struct{})

	done := make(chan SyncResult)
	go func() {
		res, err := s.sync.SyncNow(s.ctx, "p1", s.user)
		s.NoError(err)
		done <- res
	}()

	<-s.remote.entered

	_, err := s.sync.SyncNow(s.ctx, "p1", s.user)
	s.Require().ErrorIs(err, ErrSyncInProgress)

	// another profile is not blocked by p1
	s.remote.mu.Lock()
	s.remote.entered = nil
	s.remote.mu.Unlock()
	res, err := s.sync.SyncNow(s.ctx, "p2", identity.Demo("grace@example.com", ""))
	s.Require().NoError(err)
	s.Require().Equal(SyncSynced, res.Status)

	close(s.remote.release)
	s.Require().Equal(SyncSynced, (<-done).Status)

	gets, _, _ := s.remote.counts()
	s.Require().Equal(2, gets)

	// the flag is released afterwards
	_, err = s.sync.SyncNow(s.ctx, "p1", s.user)
	s.Require().NoError(err)
}

func (s *SyncServiceSuite) TestFinishedSyncLeavesNoFlag() {
	for _, profile := range []string{"p1", "p2", "p3"} {
		_, err := s.sync.SyncNow(s.ctx, profile, s.user)
		s.Require().NoError(err)
	}

	flags := 0
	s.sync.inflight.Range(func(any, any) bool {
		flags++
		return true
	})
	s.Require().Zero(flags)
}

func (s *SyncServiceSuite) TestStartSyncsTrackedProfiles() {
	s.addLocal("go", 1)
	s.sync.Track("p1", s.user)
	s.sync.Track("guest-profile", identity.Identity{})
	s.Require().Len(s.sync.Tracked(), 1)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go s.sync.Start(ctx)

	s.Require().Eventually(func() bool {
		_, puts, _ := s.remote.counts()
		return puts > 0
	}, time.Second, 5*time.Millisecond)

	s.sync.Untrack("p1")
	s.Require().Empty(s.sync.Tracked())
}

func TestSyncServiceSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceSuite))
}
