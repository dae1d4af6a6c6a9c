package model

import "time"

// EventRecord is the normalized representation of one upcoming assignment
// as produced by the feed layer. All timestamps are UTC.
type EventRecord struct {
	UID string // stable feed identity (iCalendar UID, possibly instance-qualified)

	Summary     string // raw feed summary, digested for change detection
	Title       string // display title with any trailing course bracket stripped
	Description string
	Course      string // derived grouping label, e.g. "CHEM 350"

	DueAt time.Time
	Tier  int // priority tier derived from time-to-due
}
