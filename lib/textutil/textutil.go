package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CollapseSpace turns non-breaking spaces into ordinary ones, folds
// every whitespace run (newlines included) into a single space and trims
// the ends. Idempotent: CollapseSpace(CollapseSpace(s)) == CollapseSpace(s).
func CollapseSpace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.Trim(s, " ")
}

// ContainsFold reports whether substr occurs in s ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
