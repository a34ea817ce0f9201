package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/internal/repository"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/sakashimaa/course-store/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrSyncInProgress = errors.New("cart sync already in progress")

type SyncStatus string

const (
	SyncSynced    SyncStatus = "synced"
	SyncSkipped   SyncStatus = "skipped"
	SyncLocalOnly SyncStatus = "local-only"
)

type SyncResult struct {
	Status SyncStatus `json:"status"`
	Items  int        `json:"items"`
	Reason string     `json:"reason,omitempty"`
}

// RemoteDocuments is the slice of the remote store the sync adapter needs.
type RemoteDocuments interface {
	GetUserDocument(ctx context.Context, uid string) (*domain.UserDocument, error)
	UpsertUserDocument(ctx context.Context, uid string, patch domain.UserDocumentPatch) error
}

type SyncService struct {
	carts         CartStore
	remote        RemoteDocuments
	readiness     *Readiness
	breaker       *gobreaker.CircuitBreaker
	logger        *zap.Logger
	tracer        trace.Tracer
	interval      time.Duration
	remoteTimeout time.Duration

	inflight sync.Map // profile id -> *atomic.Bool, removed when the sync ends

	mu      sync.Mutex
	tracked map[string]identity.Identity
}

func NewSyncService(
	carts CartStore,
	remote RemoteDocuments,
	readiness *Readiness,
	breaker *gobreaker.CircuitBreaker,
	interval time.Duration,
	remoteTimeout time.Duration,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		carts:         carts,
		remote:        remote,
		readiness:     readiness,
		breaker:       breaker,
		logger:        logger,
		tracer:        otel.Tracer("sync_service"),
		interval:      interval,
		remoteTimeout: remoteTimeout,
		tracked:       make(map[string]identity.Identity),
	}
}

// Track enrols an authenticated profile in the periodic sync. Guests are ignored.
func (s *SyncService) Track(profileID string, id identity.Identity) {
	if id.IsGuest() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracked[profileID] = id
}

func (s *SyncService) Untrack(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tracked, profileID)
}

func (s *SyncService) Tracked() map[string]identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]identity.Identity, len(s.tracked))
	for k, v := range s.tracked {
		out[k] = v
	}

	return out
}

// Start syncs every tracked profile on each tick until ctx is done.
func (s *SyncService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	mylogger.Info(ctx, s.logger, "Cart sync started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, s.logger, "Cart sync stopped")
			return
		case <-ticker.C:
			for profileID, id := range s.Tracked() {
				profileCtx := mylogger.WithProfile(ctx, profileID)
				if _, err := s.SyncNow(profileCtx, profileID, id); err != nil && !errors.Is(err, ErrSyncInProgress) {
					mylogger.Warn(profileCtx, s.logger, "Periodic sync failed", zap.Error(err))
				}
			}
		}
	}
}

// SyncNow merges the remote cart into the local one and pushes the result back. Remote failures
// never surface as errors: the cycle is reported as skipped and local state stays usable.
// A second call for a profile while one is running returns ErrSyncInProgress.
func (s *SyncService) SyncNow(ctx context.Context, profileID string, id identity.Identity) (SyncResult, error) {
	ctx, span := s.tracer.Start(ctx, "SyncService.SyncNow")
	defer span.End()

	if id.IsGuest() {
		return SyncResult{Status: SyncLocalOnly, Reason: "not signed in"}, nil
	}

	flag, _ := s.inflight.LoadOrStore(profileID, &atomic.Bool{})
	running := flag.(*atomic.Bool)
	if !running.CompareAndSwap(false, true) {
		return SyncResult{}, ErrSyncInProgress
	}
	// only syncs in flight keep an entry
	defer func() {
		s.inflight.CompareAndDelete(profileID, running)
		running.Store(false)
	}()

	span.SetAttributes(attribute.String("uid", id.UID))

	if err := s.readiness.Wait(ctx); err != nil {
		return SyncResult{Status: SyncLocalOnly, Reason: err.Error()}, nil
	}

	doc, err := s.fetch(ctx, id.UID)
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, s.logger, "Skipping sync, remote read failed", zap.Error(err))

		return SyncResult{Status: SyncSkipped, Reason: "remote read failed"}, nil
	}

	merged := s.carts.Merge(ctx, profileID, doc.Cart)

	if err := s.push(ctx, id, merged); err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, s.logger, "Remote cart write failed", zap.Error(err))

		return SyncResult{Status: SyncSkipped, Items: len(merged.Items), Reason: "remote write failed"}, nil
	}

	mylogger.Debug(ctx, s.logger, "Cart synced", zap.Int("items", len(merged.Items)))

	return SyncResult{Status: SyncSynced, Items: len(merged.Items)}, nil
}

func (s *SyncService) fetch(ctx context.Context, uid string) (*domain.UserDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	return utils.ExecuteWithBreaker(s.breaker, func() (*domain.UserDocument, error) {
		doc, err := s.remote.GetUserDocument(ctx, uid)
		if errors.Is(err, repository.ErrUserDocumentNotFound) {
			return &domain.UserDocument{UID: uid, Cart: domain.NewCart(nil)}, nil
		}

		return doc, err
	})
}

func (s *SyncService) push(ctx context.Context, id identity.Identity, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	patch := domain.UserDocumentPatch{Cart: &cart}
	if id.Email != "" {
		patch.Email = &id.Email
	}
	if id.DisplayName != "" {
		patch.DisplayName = &id.DisplayName
	}

	_, err := utils.ExecuteWithBreaker(s.breaker, func() (struct{}, error) {
		return struct{}{}, s.remote.UpsertUserDocument(ctx, id.UID, patch)
	})

	return err
}
