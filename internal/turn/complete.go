package turn

import (
	"strings"
	"unicode/utf8"
)

// minCompletionCheckRunes is the length below which a reply is always
// treated as complete. Short answers legitimately end without terminal
// punctuation; continuing them costs an extra backend call for nothing.
const minCompletionCheckRunes = 40

// terminalPunctuation are the sentence-final marks, ASCII and fullwidth.
var terminalPunctuation = []string{".", "!", "?", "。", "！", "？"}

// IsComplete reports whether a reply appears to have reached a natural
// end. It is a lexical heuristic, not a parser: blank or short text is
// complete; longer text is complete when it ends with sentence-final
// punctuation and its last line is not a truncated Markdown table
// fragment. Deterministic for a given input.
//
// Known misclassification: well-formed answers ending without terminal
// punctuation (code blocks, list items) read as incomplete and trigger an
// unnecessary continuation call.
func IsComplete(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	if utf8.RuneCountInString(trimmed) < minCompletionCheckRunes {
		return true
	}
	if !endsWithTerminalPunctuation(trimmed) {
		return false
	}

	lines := strings.Split(trimmed, "\n")
	lastLine := strings.TrimSpace(lines[len(lines)-1])
	if isTruncatedTableFragment(lastLine) {
		return false
	}
	return true
}

// isTruncatedTableFragment detects a dangling Markdown table row: a short
// last line containing a column separator with no sentence-final mark.
func isTruncatedTableFragment(lastLine string) bool {
	return strings.Contains(lastLine, "|") &&
		utf8.RuneCountInString(lastLine) < 15 &&
		!endsWithTerminalPunctuation(lastLine)
}

func endsWithTerminalPunctuation(s string) bool {
	for _, mark := range terminalPunctuation {
		if strings.HasSuffix(s, mark) {
			return true
		}
	}
	return false
}
