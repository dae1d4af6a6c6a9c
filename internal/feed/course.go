package feed

import (
	"regexp"
	"strings"
)

// CourseFallback is used when no matcher can extract a course name.
const CourseFallback = "General"

var (
	bracketRe        = regexp.MustCompile(`\[([^\]]+)\]`)
	deptCodeRe       = regexp.MustCompile(`([A-Z]{2,4}\s*\d{3}[A-Z]?)`)
	trailingBracket  = regexp.MustCompile(`\s*\[[^\]]+\]\s*$`)
	courseSeparators = []string{":", " - ", " – ", " — "}
)

// courseMatcher is one strategy for extracting a course name from an
// event's summary and description. Matchers are pure and evaluated in
// fixed priority order.
type courseMatcher func(summary, description string) (string, bool)

var courseMatchers = []courseMatcher{
	matchBracketSuffix,
	matchDepartmentCode,
	matchLeadingSegment,
}

// ClassifyCourse resolves the grouping label for an event. Canvas usually
// formats summaries as "Assignment Name [Course Name]"; the remaining
// matchers cover feeds that do not.
func ClassifyCourse(summary, description string) string {
	for _, match := range courseMatchers {
		if course, ok := match(summary, description); ok {
			return course
		}
	}
	return CourseFallback
}

func matchBracketSuffix(summary, _ string) (string, bool) {
	if m := bracketRe.FindStringSubmatch(summary); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// matchDepartmentCode looks for a department-code pattern such as
// "CHEM 350" or "CS101A" in the summary or description.
func matchDepartmentCode(summary, description string) (string, bool) {
	if m := deptCodeRe.FindStringSubmatch(summary + " " + description); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

func matchLeadingSegment(summary, _ string) (string, bool) {
	for _, sep := range courseSeparators {
		if i := strings.Index(summary, sep); i >= 0 {
			lead := strings.TrimSpace(summary[:i])
			if lead != "" {
				return lead, true
			}
		}
	}
	return "", false
}

// CleanTitle strips a trailing bracketed course suffix from a summary to
// produce the display title.
func CleanTitle(summary string) string {
	return strings.TrimSpace(trailingBracket.ReplaceAllString(summary, ""))
}
