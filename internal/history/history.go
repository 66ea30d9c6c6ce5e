// Package history stores per-user conversation context for preheating
// later turns.
//
// The store is tiered: an in-process TTL cache is the primary copy and a
// SQLite database is the fallback and durable copy. Context is serialized
// as a JSON array of entries and trimmed from the oldest entry once it
// exceeds a configured character budget.
package history

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no context exists for a user.
var ErrNotFound = errors.New("history: context not found")

// Entry is one recorded conversation message.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

// Store is the interface consumed by the turn orchestrator and the layer
// above it that records completed turns.
type Store interface {
	// Read returns the recorded context for a user, most recent last.
	// Returns ErrNotFound when the user has no context.
	Read(ctx context.Context, userID string) ([]Entry, error)

	// Append records one message and trims the context to its size budget.
	Append(ctx context.Context, userID, role, content string) error
}
