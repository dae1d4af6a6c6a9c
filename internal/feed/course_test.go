package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCourse(t *testing.T) {
	cases := []struct {
		name        string
		summary     string
		description string
		want        string
	}{
		{"bracket suffix", "Problem Set 3 [CHEM 350]", "", "CHEM 350"},
		{"bracket wins over dept code", "Lab Report [Organic Chemistry]", "CHEM 350 lab", "Organic Chemistry"},
		{"dept code in summary", "CS250 Homework 4", "", "CS250"},
		{"dept code in description", "Weekly Quiz", "Covers MATH 221 chapter 5", "MATH 221"},
		{"dept code with trailing letter", "Essay draft", "For ENGL 101A section 2", "ENGL 101A"},
		{"colon separator", "Biology: Cell Structures Worksheet", "", "Biology"},
		{"dash separator", "World History - Unit 2 Review", "", "World History"},
		{"en dash separator", "Physics – Momentum Lab", "", "Physics"},
		{"fallback", "Read chapter five", "", "General"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyCourse(tc.summary, tc.description))
		})
	}
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Problem Set 3", CleanTitle("Problem Set 3 [CHEM 350]"))
	assert.Equal(t, "Problem Set 3", CleanTitle("  Problem Set 3  "))
	// Only a trailing bracket is a course suffix.
	assert.Equal(t, "[draft] Problem Set 3", CleanTitle("[draft] Problem Set 3"))
}
