package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReadiness_SucceedsWithinBudget(t *testing.T) {
	var calls atomic.Int32
	pinger := pingerFunc(func(context.Context) error {
		if calls.Add(1) < 3 {
			return errBoom
		}
		return nil
	})

	r := NewReadiness(10, time.Millisecond, zap.NewNop())
	require.False(t, r.Ready())

	go r.Probe(context.Background(), pinger)

	require.NoError(t, r.Wait(context.Background()))
	require.True(t, r.Ready())
	require.EqualValues(t, 3, calls.Load())
}

func TestReadiness_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	pinger := pingerFunc(func(context.Context) error {
		calls.Add(1)
		return errBoom
	})

	r := NewReadiness(4, time.Millisecond, zap.NewNop())
	r.Probe(context.Background(), pinger)

	err := r.Wait(context.Background())
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.False(t, r.Ready())
	require.EqualValues(t, 4, calls.Load())

	// resolved once: a later probe changes nothing
	r.Probe(context.Background(), pingerFunc(func(context.Context) error { return nil }))
	require.ErrorIs(t, r.Wait(context.Background()), ErrRemoteUnavailable)
}

func TestReadiness_NilPinger(t *testing.T) {
	r := NewReadiness(10, time.Hour, zap.NewNop())
	r.Probe(context.Background(), nil)

	require.ErrorIs(t, r.Wait(context.Background()), ErrRemoteUnavailable)
}

func TestReadiness_WaitHonoursContext(t *testing.T) {
	r := NewReadiness(10, time.Second, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestReadiness_ProbeCancelled(t *testing.T) {
	r := NewReadiness(10, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Probe(ctx, pingerFunc(func(context.Context) error { return errBoom }))

	require.ErrorIs(t, r.Wait(context.Background()), ErrRemoteUnavailable)
}
