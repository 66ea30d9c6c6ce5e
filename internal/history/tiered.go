package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shelfwise/librarian/internal/observability"
)

// Fallback is the durable tier behind the in-process cache.
// *SQLStore is the production implementation.
type Fallback interface {
	Get(ctx context.Context, userID string) (string, error)
	Upsert(ctx context.Context, userID, contextJSON string) error
}

// DefaultMaxChars caps serialized context size per user. Keeping the
// excerpt bounded keeps preheat prompts, token usage and latency bounded.
const DefaultMaxChars = 16000

// DefaultTTL is how long cached context stays valid without a write.
const DefaultTTL = 30 * time.Minute

// TieredStore implements Store with a cache-first read path and a
// database fallback: a hot copy with TTL, a durable copy behind it.
//
// Writes go to the cache immediately; the durable tier is updated via
// PersistSnapshot, which flushes the most recent serialized context for a
// user. lastSnapshot is process-local: a restart loses it, but the cache
// and database remain authoritative.
type TieredStore struct {
	cache    *contextCache
	fallback Fallback
	maxChars int

	logger  *observability.Logger
	metrics *observability.Metrics

	mu           sync.Mutex
	lastSnapshot map[string]string

	now func() time.Time
}

// TieredOption configures a TieredStore.
type TieredOption func(*TieredStore)

// WithMaxChars sets the serialized context size budget per user.
func WithMaxChars(n int) TieredOption {
	return func(t *TieredStore) {
		if n > 0 {
			t.maxChars = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *observability.Logger) TieredOption {
	return func(t *TieredStore) { t.logger = logger }
}

// WithMetrics attaches cache hit/miss metrics.
func WithMetrics(m *observability.Metrics) TieredOption {
	return func(t *TieredStore) { t.metrics = m }
}

// WithTTL sets the cache TTL.
func WithTTL(ttl time.Duration) TieredOption {
	return func(t *TieredStore) { t.cache.ttl = ttl }
}

// NewTieredStore creates a tiered context store. fallback may be nil, in
// which case the store is cache-only (contexts expire with the TTL).
func NewTieredStore(fallback Fallback, opts ...TieredOption) *TieredStore {
	t := &TieredStore{
		cache:        newContextCache(DefaultTTL, 0),
		fallback:     fallback,
		maxChars:     DefaultMaxChars,
		lastSnapshot: make(map[string]string),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Read returns the recorded context for a user, cache first, database on
// a miss. Returns ErrNotFound when neither tier has context.
func (t *TieredStore) Read(ctx context.Context, userID string) ([]Entry, error) {
	raw, err := t.rawContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

// Append records one message, trims the serialized context to the size
// budget from the oldest entry, writes the cache and retains a snapshot
// for PersistSnapshot.
//
// Blank arguments are ignored, matching the lenient contract of the
// recording layer above the core.
func (t *TieredStore) Append(ctx context.Context, userID, role, content string) error {
	if userID == "" || role == "" || content == "" {
		return nil
	}

	var entries []Entry
	if raw, err := t.rawContext(ctx, userID); err == nil {
		// Malformed stored context starts a fresh list rather than
		// failing the append.
		if decoded, derr := decodeEntries(raw); derr == nil {
			entries = decoded
		}
	}

	entries = append(entries, Entry{
		Role:    role,
		Content: content,
		TS:      t.now().UnixMilli(),
	})

	raw, err := encodeTrimmed(entries, t.maxChars)
	if err != nil {
		return err
	}

	t.cache.set(userID, raw)
	t.mu.Lock()
	t.lastSnapshot[userID] = raw
	t.mu.Unlock()

	t.logger.Debug(ctx, "history append",
		"user_id", userID, "role", role, "size", len(raw))
	return nil
}

// PersistSnapshot flushes the most recent context for a user to the
// durable tier, consuming the snapshot. A no-op when no snapshot exists
// or no fallback is configured.
func (t *TieredStore) PersistSnapshot(ctx context.Context, userID string) error {
	t.mu.Lock()
	raw, ok := t.lastSnapshot[userID]
	if ok {
		delete(t.lastSnapshot, userID)
	}
	t.mu.Unlock()

	if !ok || raw == "" || t.fallback == nil {
		return nil
	}
	if err := t.fallback.Upsert(ctx, userID, raw); err != nil {
		return err
	}
	t.logger.Debug(ctx, "history persisted", "user_id", userID, "size", len(raw))
	return nil
}

// Invalidate drops a user's cached context, forcing the next read to the
// durable tier.
func (t *TieredStore) Invalidate(userID string) {
	t.cache.delete(userID)
}

// rawContext reads serialized context, cache first then fallback.
func (t *TieredStore) rawContext(ctx context.Context, userID string) (string, error) {
	if raw, ok := t.cache.get(userID); ok {
		if t.metrics != nil {
			t.metrics.HistoryCacheHits.Inc()
		}
		return raw, nil
	}
	if t.metrics != nil {
		t.metrics.HistoryCacheMisses.Inc()
	}
	if t.fallback == nil {
		return "", ErrNotFound
	}

	raw, err := t.fallback.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			t.logger.Warn(ctx, "history fallback read failed",
				"user_id", userID, "error", err)
		}
		return "", err
	}
	t.logger.Debug(ctx, "history loaded from fallback",
		"user_id", userID, "size", len(raw))
	// Re-warm the cache so subsequent reads stay in process.
	t.cache.set(userID, raw)
	return raw, nil
}

// decodeEntries parses a serialized context blob.
func decodeEntries(raw string) ([]Entry, error) {
	if raw == "" {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// encodeTrimmed serializes entries, dropping the oldest until the result
// fits the character budget.
func encodeTrimmed(entries []Entry, maxChars int) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	for len(data) > maxChars && len(entries) > 0 {
		entries = entries[1:]
		data, err = json.Marshal(entries)
		if err != nil {
			return "", err
		}
	}
	return string(data), nil
}
