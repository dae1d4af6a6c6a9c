package feed

import (
	"time"

	applog "canvasync/internal/log"
	"canvasync/internal/model"
)

// TierConfig carries the priority tiering settings into normalization.
type TierConfig struct {
	Thresholds  []model.TierThreshold
	DefaultTier int
}

// Normalize converts a RawEvent into an EventRecord. Events already due
// before now are dropped (false): only upcoming assignments reach the
// reconciler.
func Normalize(raw RawEvent, now time.Time, tiers TierConfig) (model.EventRecord, bool) {
	if raw.DueAt.Before(now) {
		applog.Debug("skipping past event", "uid", raw.UID, "summary", raw.Summary)
		return model.EventRecord{}, false
	}

	return model.EventRecord{
		UID:         raw.UID,
		Summary:     raw.Summary,
		Title:       CleanTitle(raw.Summary),
		Description: raw.Description,
		Course:      ClassifyCourse(raw.Summary, raw.Description),
		DueAt:       raw.DueAt.UTC(),
		Tier:        model.TierFor(raw.DueAt, now, tiers.Thresholds, tiers.DefaultTier),
	}, true
}

// NormalizeAll applies Normalize across a parsed feed, preserving order.
func NormalizeAll(raws []RawEvent, now time.Time, tiers TierConfig) []model.EventRecord {
	out := make([]model.EventRecord, 0, len(raws))
	for _, raw := range raws {
		if rec, ok := Normalize(raw, now, tiers); ok {
			out = append(out, rec)
		}
	}
	applog.Info("normalized upcoming events", "count", len(out), "parsed", len(raws))
	return out
}
