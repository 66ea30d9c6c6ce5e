package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// schema holds one serialized context blob per user. total_chars is
// denormalized for cheap inspection of per-user context growth.
const schema = `
CREATE TABLE IF NOT EXISTS chat_history (
	user_id      TEXT PRIMARY KEY,
	context_json TEXT NOT NULL,
	total_chars  INTEGER NOT NULL,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLStore persists serialized conversation context in a SQL database.
// It is the fallback tier behind the in-process cache.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite database at path and
// ensures the schema exists.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	store, err := NewSQLStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an existing database handle and ensures the schema.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init chat_history schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Get returns the serialized context for a user, or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, userID string) (string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT context_json FROM chat_history WHERE user_id = ?`, userID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select chat_history: %w", err)
	}
	return raw, nil
}

// Upsert writes the serialized context for a user, replacing any prior row.
func (s *SQLStore) Upsert(ctx context.Context, userID, contextJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_id, context_json, total_chars, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
			context_json = excluded.context_json,
			total_chars = excluded.total_chars,
			updated_at = CURRENT_TIMESTAMP`,
		userID, contextJSON, len(contextJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert chat_history: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
