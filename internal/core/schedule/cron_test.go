package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func anchorAt(hour, min int) *time.Time {
	t := time.Date(2026, 3, 1, hour, min, 0, 0, time.UTC)
	return &t
}

func TestGenerateCronPattern(t *testing.T) {
	cases := []struct {
		name     string
		interval int
		anchor   *time.Time
		want     string
	}{
		{"daily anchored", 24, anchorAt(14, 30), "30 14 * * *"},
		{"twice daily anchored", 12, anchorAt(14, 30), "30 2,14 * * *"},
		{"three times daily anchored", 8, anchorAt(9, 15), "15 1,9,17 * * *"},
		{"six times daily anchored", 4, anchorAt(23, 45), "45 3,7,11,15,19,23 * * *"},
		{"unanchored falls back to step form", 6, nil, "0 */6 * * *"},
		{"unanchored daily", 24, nil, "0 */24 * * *"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GenerateCronPattern(tc.interval, tc.anchor)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestGenerateCronPatternRejectsInvalidIntervals(t *testing.T) {
	for _, interval := range []int{-1, 0, 1, 3, 5, 7, 9, 13, 48} {
		_, err := GenerateCronPattern(interval, nil)
		require.Error(t, err, "interval %d", interval)
	}
}
