package pinger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/workermem-governor/internal/infra/pinger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticPinger struct {
	name string
	err  error
}

func (p *staticPinger) Name() string { return p.name }

func (p *staticPinger) Ping(_ context.Context) error { return p.err }

func TestService_Register(t *testing.T) {
	t.Parallel()

	svc := pinger.New(discardLogger(), time.Second)

	t.Run("nil pinger rejected", func(t *testing.T) {
		require.Error(t, svc.Register(nil))
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		require.NoError(t, svc.Register(&staticPinger{name: "db"}))
		require.ErrorIs(t, svc.Register(&staticPinger{name: "db"}), pinger.ErrPingerAlreadyRegistered)
	})

	t.Run("unknown pinger has no stats", func(t *testing.T) {
		_, err := svc.GetStats("nope")
		require.ErrorIs(t, err, pinger.ErrPingerNotFound)
	})
}

func TestService_PingLoop(t *testing.T) {
	t.Parallel()

	svc := pinger.New(discardLogger(), 20*time.Millisecond)
	require.NoError(t, svc.Register(&staticPinger{name: "healthy"}))
	require.NoError(t, svc.Register(&staticPinger{name: "broken", err: errors.New("no pool capacity")}))

	runCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(runCtx))

	t.Cleanup(func() {
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		_ = svc.Shutdown(shutdownCtx)
	})

	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("pinger service not ready in time")
	}

	healthy, err := svc.GetStats("healthy")
	require.NoError(t, err)
	require.True(t, healthy.IsHealthy)
	require.NoError(t, healthy.LastError)
	require.False(t, healthy.LastRun.IsZero())
	require.Positive(t, healthy.SuccessLatencies.Count)

	broken, err := svc.GetStats("broken")
	require.NoError(t, err)
	require.False(t, broken.IsHealthy)
	require.Error(t, broken.LastError)
	require.NotNil(t, broken.LastErrorSnapshot)
	require.Positive(t, broken.ErrorLatencies.Count)

	all := svc.GetAllStats()
	require.Len(t, all, 2)
	require.Contains(t, all, "healthy")
	require.Contains(t, all, "broken")
}

func TestService_Shutdown(t *testing.T) {
	t.Parallel()

	svc := pinger.New(discardLogger(), 20*time.Millisecond)
	require.NoError(t, svc.Register(&staticPinger{name: "quick"}))

	runCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(runCtx))

	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("pinger service not ready in time")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	require.NoError(t, svc.Shutdown(shutdownCtx))

	// A second shutdown is a no-op.
	require.NoError(t, svc.Shutdown(shutdownCtx))
}
