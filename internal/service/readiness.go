package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/course-store/pkg/mylogger"
	"go.uber.org/zap"
)

var ErrRemoteUnavailable = errors.New("remote store unavailable")

type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness resolves exactly once to the reachability of the remote store. Consumers block on Wait
// instead of polling.
type Readiness struct {
	attempts int
	spacing  time.Duration
	logger   *zap.Logger

	once sync.Once
	done chan struct{}
	err  error
}

func NewReadiness(attempts int, spacing time.Duration, logger *zap.Logger) *Readiness {
	if attempts < 1 {
		attempts = 1
	}

	return &Readiness{
		attempts: attempts,
		spacing:  spacing,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Probe pings up to the attempt budget and resolves the future. Only the first call has an effect;
// a nil pinger resolves as unavailable right away.
func (r *Readiness) Probe(ctx context.Context, p Pinger) {
	r.once.Do(func() {
		r.err = r.probe(ctx, p)
		close(r.done)

		if r.err != nil {
			mylogger.Warn(ctx, r.logger, "Remote store not reachable, running local-only", zap.Error(r.err))
			return
		}
		mylogger.Info(ctx, r.logger, "Remote store ready")
	})
}

func (r *Readiness) probe(ctx context.Context, p Pinger) error {
	if p == nil {
		return ErrRemoteUnavailable
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if lastErr = p.Ping(ctx); lastErr == nil {
			return nil
		}

		mylogger.Debug(ctx, r.logger, "Remote ping failed", zap.Int("attempt", attempt), zap.Error(lastErr))

		if attempt == r.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrRemoteUnavailable, ctx.Err())
		case <-time.After(r.spacing):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrRemoteUnavailable, r.attempts, lastErr)
}

// Wait blocks until Probe has resolved or ctx ends.
func (r *Readiness) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is the non-blocking view of Wait.
func (r *Readiness) Ready() bool {
	select {
	case <-r.done:
		return r.err == nil
	default:
		return false
	}
}
