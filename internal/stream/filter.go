// Package stream re-emits a fully generated answer as a timed sequence
// of filtered units, simulating live token generation for callers that
// want incremental delivery.
package stream

import "strings"

// Filter decides what to emit for one unit (a single Unicode code
// point). emitted is the concatenation of everything emitted so far.
// Returning the empty string suppresses the unit; returning a different
// string rewrites it. Filters may suppress or rewrite units but the
// pipeline never reorders or duplicates them.
type Filter func(unit, emitted string) string

// maxNewlineRun caps consecutive emitted newlines.
const maxNewlineRun = 2

// DefaultFilter smooths model output for display: carriage returns are
// dropped, runs of spaces collapse to one, and newline runs are capped
// at two so the stream never renders large vertical gaps.
func DefaultFilter(unit, emitted string) string {
	switch unit {
	case "\r":
		return ""
	case " ":
		if strings.HasSuffix(emitted, " ") {
			return ""
		}
	case "\n":
		if trailingNewlines(emitted) >= maxNewlineRun {
			return ""
		}
	}
	return unit
}

// PassthroughFilter emits every unit unchanged.
func PassthroughFilter(unit, _ string) string {
	return unit
}

// trailingNewlines counts the consecutive newlines at the end of s.
func trailingNewlines(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '\n' {
			break
		}
		n++
	}
	return n
}
