package governor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/workermem-governor/internal/logic/governor"
)

const mib = 1 << 20

func sampleOf(bytes uint64) governor.Sample {
	return governor.Sample{
		WorkerID:    "w-1",
		PID:         1234,
		MemoryBytes: bytes,
		TakenAt:     time.Now(),
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	limits := governor.Limits{SoftBytes: 200 * mib, HardBytes: 500 * mib}

	t.Run("below soft limit continues", func(t *testing.T) {
		t.Parallel()

		// Sweep the sub-soft range including both edges of interest.
		for _, bytes := range []uint64{0, 1, mib, 100 * mib, 199 * mib, 200*mib - 1} {
			got := governor.Evaluate(sampleOf(bytes), limits)
			require.Equal(t, governor.ActionContinue, got, "bytes=%d", bytes)
		}
	})

	t.Run("between soft and hard recycles gracefully", func(t *testing.T) {
		t.Parallel()

		for _, bytes := range []uint64{200 * mib, 200*mib + 1, 300 * mib, 450 * mib, 500*mib - 1} {
			got := governor.Evaluate(sampleOf(bytes), limits)
			require.Equal(t, governor.ActionRecycleGraceful, got, "bytes=%d", bytes)
		}
	})

	t.Run("at or above hard recycles forced", func(t *testing.T) {
		t.Parallel()

		// Everything at or above hard is forced, even though these samples
		// also exceed the soft limit.
		for _, bytes := range []uint64{500 * mib, 500*mib + 1, 1 << 40} {
			got := governor.Evaluate(sampleOf(bytes), limits)
			require.Equal(t, governor.ActionRecycleForced, got, "bytes=%d", bytes)
		}
	})

	t.Run("soft=200MB hard=500MB scenario", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, governor.ActionRecycleGraceful, governor.Evaluate(sampleOf(450*mib), limits))
		require.Equal(t, governor.ActionRecycleForced, governor.Evaluate(sampleOf(500*mib), limits))
		require.Equal(t, governor.ActionContinue, governor.Evaluate(sampleOf(199*mib), limits))
	})
}

func TestLimits_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid limits", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, governor.Limits{SoftBytes: 1, HardBytes: 2}.Validate())
	})

	t.Run("zero soft limit rejected", func(t *testing.T) {
		t.Parallel()

		err := governor.Limits{SoftBytes: 0, HardBytes: 2}.Validate()
		require.ErrorIs(t, err, governor.ErrInvalidLimits)
	})

	t.Run("soft equal to hard rejected", func(t *testing.T) {
		t.Parallel()

		err := governor.Limits{SoftBytes: 5, HardBytes: 5}.Validate()
		require.ErrorIs(t, err, governor.ErrInvalidLimits)
	})

	t.Run("soft above hard rejected", func(t *testing.T) {
		t.Parallel()

		err := governor.Limits{SoftBytes: 6, HardBytes: 5}.Validate()
		require.ErrorIs(t, err, governor.ErrInvalidLimits)
	})
}

func TestAction_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "continue", governor.ActionContinue.String())
	require.Equal(t, "recycle_graceful", governor.ActionRecycleGraceful.String())
	require.Equal(t, "recycle_forced", governor.ActionRecycleForced.String())
}
