package feed

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	applog "canvasync/internal/log"
)

// ParseError indicates the feed body is not a parseable calendar. Like
// FetchError it is fatal for the run.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "feed parse: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// RawEvent is one VEVENT as extracted from the feed, before recurrence
// expansion and normalization. DueAt is DTEND falling back to DTSTART,
// always in UTC; naive timestamps are treated as UTC.
type RawEvent struct {
	UID         string
	Summary     string
	Description string
	DueAt       time.Time

	RawRRule string
	ExDates  []time.Time
}

// Parse extracts assignment events from an ICS payload. Individual VEVENTs
// missing a UID or any timestamp are dropped with a warning; an unparseable
// calendar is a ParseError.
func Parse(body []byte) ([]RawEvent, error) {
	if len(body) == 0 {
		return nil, &ParseError{Err: errors.New("empty feed body")}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	events := make([]RawEvent, 0)

	for _, ve := range cal.Events() {
		ev, ok := parseVEvent(ve)
		if !ok {
			continue
		}
		events = append(events, ev)
	}

	applog.Info("feed parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (RawEvent, bool) {
	var out RawEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		applog.Debug("skipping event without UID")
		return out, false
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	// Due timestamp: DTEND is the Canvas due time; fall back to DTSTART.
	dueProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
	if dueProp == nil || dueProp.Value == "" {
		dueProp = ve.GetProperty(ical.ComponentPropertyDtStart)
	}
	if dueProp == nil || dueProp.Value == "" {
		applog.Info("skipping event without date", "summary", out.Summary)
		return out, false
	}

	due, err := parseFeedTime(dueProp.Value)
	if err != nil {
		applog.Error("skipping event with unparseable date", err, "summary", out.Summary)
		return out, false
	}
	out.DueAt = due

	// RRULE is kept raw here; expansion happens in expand.go.
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	// EXDATE may appear multiple times, each possibly comma-separated.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseFeedTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	return out, true
}

// parseFeedTime parses an ICS date or date-time value into UTC. Date-only
// values become UTC midnight; naive date-times are treated as UTC, the
// fixed time reference for the whole pipeline.
func parseFeedTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g. 20260101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Naive date-time, e.g. 20260101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	}

	// Date-only (all-day), e.g. 20260101
	return time.ParseInLocation("20060102", v, time.UTC)
}
