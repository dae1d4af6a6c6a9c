package todoist

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	disallowedRe = regexp.MustCompile(`[^\w\s-]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// SanitizeLabel converts a course name into the store's allowed label
// character set: disallowed characters are stripped, whitespace runs
// collapse to a single underscore, and leading/trailing underscores are
// trimmed. "CHEM 350" becomes "CHEM_350".
func SanitizeLabel(name string) string {
	s := disallowedRe.ReplaceAllString(name, "")
	s = whitespaceRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
