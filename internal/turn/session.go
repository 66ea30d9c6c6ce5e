// Package turn orchestrates a single conversational turn: session
// identity resolution, context preheat, the model call, reply
// sanitization, and truncation-triggered continuation.
package turn

import (
	"strings"

	"github.com/google/uuid"
)

// EnsureSessionID returns candidate unchanged when it is non-blank, and a
// freshly generated UUID otherwise.
//
// The session identity serves two purposes: it keys the model backend's
// conversation memory, and it is a literal value the sanitizer scrubs
// from displayed output should the model echo it.
func EnsureSessionID(candidate string) string {
	if strings.TrimSpace(candidate) == "" {
		return uuid.NewString()
	}
	return candidate
}
