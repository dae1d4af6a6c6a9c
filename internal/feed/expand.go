package feed

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	applog "canvasync/internal/log"
)

const maxOccurrencesPerEvent = 500

// ExpandRecurrences replaces every RRULE-carrying event with its concrete
// occurrences inside [now, now+horizon]. Non-recurring events pass through
// unchanged. Each occurrence gets a derived UID of the form
// "<uid>#<RFC3339 start>" so instances reconcile independently.
func ExpandRecurrences(events []RawEvent, now time.Time, horizon time.Duration) []RawEvent {
	out := make([]RawEvent, 0, len(events))

	for _, ev := range events {
		if ev.RawRRule == "" {
			out = append(out, ev)
			continue
		}
		out = append(out, expandEvent(ev, now, now.Add(horizon))...)
	}

	return out
}

func expandEvent(ev RawEvent, rangeStart, rangeEnd time.Time) []RawEvent {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		applog.Error("failed to parse RRULE; keeping base event only", err, "uid", ev.UID, "rrule", ev.RawRRule)
		ev.RawRRule = ""
		return []RawEvent{ev}
	}
	r.DTStart(ev.DueAt)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.DueAt.Location()))
	}

	occTimes := set.Between(rangeStart, rangeEnd, true)
	if len(occTimes) > maxOccurrencesPerEvent {
		applog.Error("truncated occurrences for recurring event",
			errors.New("max occurrences reached"),
			"uid", ev.UID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	out := make([]RawEvent, 0, len(occTimes))
	for _, start := range occTimes {
		occ := ev
		occ.RawRRule = ""
		occ.ExDates = nil
		occ.DueAt = start.UTC()
		occ.UID = ev.UID + "#" + occ.DueAt.Format(time.RFC3339)
		out = append(out, occ)
	}

	return out
}
