package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testThresholds = []TierThreshold{
	{MaxDays: 7, Tier: 2},
	{MaxDays: 1, Tier: 4},
	{MaxDays: 3, Tier: 3},
}

func TestTierFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		due  time.Time
		want int
	}{
		{"due in hours", now.Add(6 * time.Hour), 4},
		{"due tomorrow", now.Add(24 * time.Hour), 4},
		{"due in two days", now.Add(48 * time.Hour), 3},
		{"due in five days", now.Add(5 * 24 * time.Hour), 2},
		{"due far out", now.Add(30 * 24 * time.Hour), 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TierFor(tc.due, now, testThresholds, 1))
		})
	}
}

// An event due in exactly the threshold day-count belongs to that
// threshold's tier, not the next lower one.
func TestTierForInclusiveBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, TierFor(now.Add(3*24*time.Hour), now, testThresholds, 1))
	assert.Equal(t, 2, TierFor(now.Add(7*24*time.Hour), now, testThresholds, 1))
}

func TestTierForUnorderedThresholds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Thresholds arrive as config data in arbitrary order; the smallest
	// matching ceiling must still win.
	due := now.Add(20 * time.Hour)
	assert.Equal(t, 4, TierFor(due, now, testThresholds, 1))
}

func TestTierForNoThresholds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, TierFor(now.Add(time.Hour), now, nil, 1))
}
