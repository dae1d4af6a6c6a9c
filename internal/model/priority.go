package model

import (
	"sort"
	"time"
)

// TierThreshold maps a day-count ceiling to a priority tier: an event due
// within MaxDays whole days gets Tier, unless a smaller threshold already
// matched. The boundary is inclusive.
type TierThreshold struct {
	MaxDays int
	Tier    int
}

// TierFor computes the priority tier for a due timestamp relative to now.
// Thresholds are evaluated in ascending MaxDays order; an event due in
// exactly MaxDays whole days belongs to that threshold's tier. If no
// threshold matches, defaultTier is returned.
func TierFor(due, now time.Time, thresholds []TierThreshold, defaultTier int) int {
	days := int(due.Sub(now).Hours() / 24)

	sorted := make([]TierThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MaxDays < sorted[j].MaxDays })

	for _, th := range sorted {
		if days <= th.MaxDays {
			return th.Tier
		}
	}
	return defaultTier
}
