package turn

import (
	"context"
	"strings"
	"unicode/utf8"
)

const (
	// maxPreheatEntries caps how many recorded messages feed the preheat
	// excerpt.
	maxPreheatEntries = 20

	// maxPreheatRunes caps the rendered excerpt size. Rendering stops
	// after the line that crosses the cap.
	maxPreheatRunes = 2000
)

const (
	preheatHeader = "[Prior conversation context. It is provided for your understanding only; do not repeat it verbatim in your answer.]\n"
	preheatFooter = "--- End of prior context. Use it to understand the user's background, then answer.\nUser message:\n"
)

// buildEffectiveMessage prepends a bounded excerpt of the user's recorded
// conversation to the raw message, wrapped in instructions telling the
// model not to echo it.
//
// Preheat is best-effort and never fatal: an anonymous caller, a missing
// or empty context, and any store read failure all degrade to the raw
// message.
func (o *Orchestrator) buildEffectiveMessage(ctx context.Context, userID, rawMessage string) string {
	if userID == "" || o.contexts == nil {
		return rawMessage
	}

	entries, err := o.contexts.Read(ctx, userID)
	if err != nil {
		o.logger.Debug(ctx, "preheat skipped", "user_id", userID, "reason", err)
		return rawMessage
	}
	if len(entries) == 0 {
		return rawMessage
	}

	var b strings.Builder
	b.WriteString(preheatHeader)
	rendered := utf8.RuneCountInString(preheatHeader)

	start := 0
	if len(entries) > maxPreheatEntries {
		start = len(entries) - maxPreheatEntries
	}
	for _, entry := range entries[start:] {
		line := "[" + entry.Role + "]:" + entry.Content + "\n"
		b.WriteString(line)
		rendered += utf8.RuneCountInString(line)
		if rendered > maxPreheatRunes {
			break
		}
	}

	b.WriteString(preheatFooter)
	b.WriteString(rawMessage)
	return b.String()
}
