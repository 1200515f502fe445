package proc_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/workermem-governor/internal/adapters/outbound/proc"
)

// pid far above the kernel's default pid_max, guaranteed absent.
const missingPID = 999_999_999

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty command", func(t *testing.T) {
		t.Parallel()

		_, err := proc.New(discardLogger(), nil, time.Second)
		require.Error(t, err)
	})

	t.Run("accepts a command line", func(t *testing.T) {
		t.Parallel()

		adapter, err := proc.New(discardLogger(), []string{"sleep", "60"}, time.Second)
		require.NoError(t, err)
		require.NotNil(t, adapter)
	})
}

func TestAdapter_SpawnCommand(t *testing.T) {
	t.Parallel()

	t.Run("waits for the ready line", func(t *testing.T) {
		t.Parallel()

		adapter, err := proc.New(discardLogger(),
			[]string{"sh", "-c", "echo ready; sleep 60"}, 5*time.Second)
		require.NoError(t, err)

		started, err := adapter.SpawnCommand(context.Background())
		require.NoError(t, err)
		require.Positive(t, started.PID)

		select {
		case <-started.Exited:
			t.Fatal("worker exited prematurely")
		default:
		}

		require.NoError(t, adapter.KillCommand(context.Background(), started.PID))

		select {
		case <-started.Exited:
		case <-time.After(5 * time.Second):
			t.Fatal("killed worker did not exit")
		}
	})

	t.Run("times out without the ready line", func(t *testing.T) {
		t.Parallel()

		adapter, err := proc.New(discardLogger(), []string{"sleep", "60"}, 300*time.Millisecond)
		require.NoError(t, err)

		_, err = adapter.SpawnCommand(context.Background())
		require.ErrorIs(t, err, proc.ErrReadyTimeout)
	})

	t.Run("fails when the worker dies before ready", func(t *testing.T) {
		t.Parallel()

		adapter, err := proc.New(discardLogger(), []string{"false"}, 5*time.Second)
		require.NoError(t, err)

		_, err = adapter.SpawnCommand(context.Background())
		require.Error(t, err)
		require.NotErrorIs(t, err, proc.ErrReadyTimeout)
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		t.Parallel()

		adapter, err := proc.New(discardLogger(), []string{"sleep", "60"}, time.Minute)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err = adapter.SpawnCommand(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestAdapter_Signals(t *testing.T) {
	t.Parallel()

	t.Run("quit terminates a live worker", func(t *testing.T) {
		t.Parallel()

		adapter, err := proc.New(discardLogger(),
			[]string{"sh", "-c", "echo ready; sleep 60"}, 5*time.Second)
		require.NoError(t, err)

		started, err := adapter.SpawnCommand(context.Background())
		require.NoError(t, err)

		require.NoError(t, adapter.SignalQuitCommand(context.Background(), started.PID))

		select {
		case <-started.Exited:
		case <-time.After(5 * time.Second):
			t.Fatal("worker ignored the quit signal")
		}
	})

	t.Run("missing process maps to not-found", func(t *testing.T) {
		t.Parallel()

		adapter, err := proc.New(discardLogger(), []string{"sleep", "60"}, time.Second)
		require.NoError(t, err)

		var notFound *proc.ProcessNotFoundError

		err = adapter.SignalQuitCommand(context.Background(), missingPID)
		require.Error(t, err)
		require.True(t, errors.As(err, &notFound))

		err = adapter.KillCommand(context.Background(), missingPID)
		require.Error(t, err)
		require.True(t, errors.As(err, &notFound))
	})
}

func TestAdapter_SampleMemoryQuery(t *testing.T) {
	t.Parallel()

	adapter, err := proc.New(discardLogger(), []string{"sleep", "60"}, time.Second)
	require.NoError(t, err)

	t.Run("reads resident memory of a live process", func(t *testing.T) {
		t.Parallel()

		bytes, err := adapter.SampleMemoryQuery(context.Background(), os.Getpid())
		require.NoError(t, err)
		require.Positive(t, bytes)
	})

	t.Run("missing process maps to not-found, never zero", func(t *testing.T) {
		t.Parallel()

		var notFound *proc.ProcessNotFoundError

		_, err := adapter.SampleMemoryQuery(context.Background(), missingPID)
		require.Error(t, err)
		require.True(t, errors.As(err, &notFound))
	})
}

func TestAdapter_HostMemoryQuery(t *testing.T) {
	t.Parallel()

	adapter, err := proc.New(discardLogger(), []string{"sleep", "60"}, time.Second)
	require.NoError(t, err)

	mem, err := adapter.HostMemoryQuery(context.Background())
	require.NoError(t, err)
	require.Positive(t, mem.TotalBytes)
	require.LessOrEqual(t, mem.UsedBytes, mem.TotalBytes)
	require.LessOrEqual(t, mem.FreeBytes, mem.TotalBytes)
}
