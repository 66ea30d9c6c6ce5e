package turn

import (
	"strings"
)

// continuationTailRunes is how much of the truncated reply is quoted back
// to the model so it can pick up where it stopped.
const continuationTailRunes = 180

// buildContinuationPrompt wraps the tail of a truncated reply in an
// instruction asking the model to finish it.
func buildContinuationPrompt(current string) string {
	return "The previous answer was cut off mid-thought. Continue it: preserve " +
		"continuity with what was already written, do not repeat sentences that " +
		"already appeared, and end with one concise closing sentence. " +
		"Fragment of the truncated answer: " + tailRunes(current, continuationTailRunes)
}

// tailRunes returns the last n runes of s, or all of s if shorter.
func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// MergeContinuations appends a continuation fragment to the base reply
// without duplicating overlapping text.
//
// A blank continuation, or one the base already contains, leaves base
// unchanged. Otherwise the longest suffix of base that is also a prefix
// of the continuation is detected and only the remainder appended; with
// no overlap the fragment is appended on a new line.
func MergeContinuations(base, extra string) string {
	trimmedExtra := strings.TrimSpace(extra)
	if trimmedExtra == "" {
		return base
	}
	if strings.HasSuffix(base, trimmedExtra) || strings.Contains(base, trimmedExtra) {
		return base
	}

	if overlap := overlapRunes(base, trimmedExtra); overlap > 0 {
		extraRunes := []rune(trimmedExtra)
		return base + string(extraRunes[overlap:])
	}

	if strings.HasSuffix(base, "\n") {
		return base + trimmedExtra
	}
	return base + "\n" + trimmedExtra
}

// overlapRunes returns the length in runes of the longest suffix of base
// that equals a prefix of extra, or 0 when none exists.
func overlapRunes(base, extra string) int {
	baseRunes := []rune(base)
	extraRunes := []rune(extra)
	max := len(baseRunes)
	if len(extraRunes) < max {
		max = len(extraRunes)
	}
	for i := max; i > 0; i-- {
		if string(baseRunes[len(baseRunes)-i:]) == string(extraRunes[:i]) {
			return i
		}
	}
	return 0
}
