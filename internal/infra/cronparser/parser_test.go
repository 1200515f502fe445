package cronparser_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/workermem-governor/internal/infra/cronparser"
)

func TestParser_NextAfter(t *testing.T) {
	t.Parallel()

	parser := cronparser.New()
	after := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	t.Run("daily schedule in UTC by default", func(t *testing.T) {
		t.Parallel()

		next, err := parser.NextAfter("0 4 * * *", "", after)
		require.NoError(t, err)
		require.Equal(t, time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("explicit timezone argument", func(t *testing.T) {
		t.Parallel()

		next, err := parser.NextAfter("0 4 * * *", "Europe/Berlin", after)
		require.NoError(t, err)

		// 04:00 Berlin in June is 02:00 UTC.
		require.Equal(t, time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("CRON_TZ prefix wins over tz argument", func(t *testing.T) {
		t.Parallel()

		next, err := parser.NextAfter("CRON_TZ=UTC 0 4 * * *", "Europe/Berlin", after)
		require.NoError(t, err)
		require.Equal(t, time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("every half hour", func(t *testing.T) {
		t.Parallel()

		next, err := parser.NextAfter("*/30 * * * *", "", after)
		require.NoError(t, err)
		require.Equal(t, time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("invalid spec", func(t *testing.T) {
		t.Parallel()

		_, err := parser.NextAfter("not a cron", "", after)
		require.Error(t, err)
	})

	t.Run("invalid timezone", func(t *testing.T) {
		t.Parallel()

		_, err := parser.NextAfter("0 4 * * *", "Atlantis/Lost", after)
		require.Error(t, err)
	})
}

func TestParser_NextAfterWithJitter(t *testing.T) {
	t.Parallel()

	parser := cronparser.New()
	after := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	base := time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)

	t.Run("zero jitter equals plain next", func(t *testing.T) {
		t.Parallel()

		next, err := parser.NextAfterWithJitter("0 4 * * *", "", after, 0)
		require.NoError(t, err)
		require.Equal(t, base, next.UTC())
	})

	t.Run("jitter stays within bounds", func(t *testing.T) {
		t.Parallel()

		const maxJitter = 30 * time.Second

		for range 50 {
			next, err := parser.NextAfterWithJitter("0 4 * * *", "", after, maxJitter)
			require.NoError(t, err)

			delta := next.Sub(base)
			require.GreaterOrEqual(t, delta, time.Duration(0))
			require.LessOrEqual(t, delta, maxJitter)
		}
	})
}
