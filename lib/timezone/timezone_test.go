package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWholeDaysUntil(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, Location)

	cases := []struct {
		deadline time.Time
		expect   int
	}{
		{now.Add(time.Hour*23 + time.Minute*59), 0},
		{now.Add(time.Hour * 24), 1},
		{now.Add(time.Hour * 25), 1},
		{now.Add(time.Hour * 24 * 3), 3},
		{now.Add(time.Hour*24*3 + time.Minute), 3},
		// past deadlines floor downwards: an hour overdue is already
		// a full day short, never "due today"
		{now.Add(-time.Hour), -1},
		{now.Add(-time.Hour * 24), -1},
		{now.Add(-time.Hour * 30), -2},
	}

	for _, test := range cases {
		require.Equal(t, test.expect, WholeDaysUntil(now, test.deadline), "deadline %s", test.deadline)
	}
}

func TestEndOfDay(t *testing.T) {
	due := EndOfDay(2025, time.June, 14)
	require.Equal(t, 23, due.Hour())
	require.Equal(t, 59, due.Minute())
	require.Equal(t, 59, due.Second())
	require.Equal(t, Location, due.Location())
}
