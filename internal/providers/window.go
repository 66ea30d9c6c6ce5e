// Package providers implements the chat model backend and its
// session-scoped conversation memory.
package providers

import (
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultWindowSize is the per-session message window retained for the
// model's conversational memory.
const DefaultWindowSize = 20

// defaultMaxSessions bounds how many session windows are retained.
// Beyond this, the least recently used session is evicted.
const defaultMaxSessions = 1000

// WindowMemory holds a bounded most-recent-N message window per session
// identity. It is the model-side conversation memory: a separate concern
// from the per-user context store, which feeds preheat prompts.
//
// Windows are created lazily on first use for a session and evicted LRU
// once the session cap is reached. Safe for concurrent use.
type WindowMemory struct {
	mu          sync.Mutex
	size        int
	maxSessions int
	windows     map[string]*window

	now func() time.Time
}

type window struct {
	messages []openai.ChatCompletionMessage
	lastUsed time.Time
}

// NewWindowMemory creates a window memory keeping at most size messages
// per session. Non-positive size uses DefaultWindowSize.
func NewWindowMemory(size int) *WindowMemory {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &WindowMemory{
		size:        size,
		maxSessions: defaultMaxSessions,
		windows:     make(map[string]*window),
		now:         time.Now,
	}
}

// Messages returns a copy of the current window for a session, oldest first.
func (m *WindowMemory) Messages(sessionID string) []openai.ChatCompletionMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[sessionID]
	if !ok {
		return nil
	}
	w.lastUsed = m.now()
	out := make([]openai.ChatCompletionMessage, len(w.messages))
	copy(out, w.messages)
	return out
}

// Append records a message in a session's window, trimming to the window
// size from the oldest message.
func (m *WindowMemory) Append(sessionID string, msg openai.ChatCompletionMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[sessionID]
	if !ok {
		m.evictLocked()
		w = &window{}
		m.windows[sessionID] = w
	}
	w.lastUsed = m.now()
	w.messages = append(w.messages, msg)
	if excess := len(w.messages) - m.size; excess > 0 {
		w.messages = append([]openai.ChatCompletionMessage(nil), w.messages[excess:]...)
	}
}

// Reset forgets a session's window.
func (m *WindowMemory) Reset(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, sessionID)
}

// Sessions returns the number of sessions currently tracked.
func (m *WindowMemory) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// evictLocked drops the least recently used window when at capacity.
func (m *WindowMemory) evictLocked() {
	if len(m.windows) < m.maxSessions {
		return
	}
	var oldestKey string
	var oldest time.Time
	for key, w := range m.windows {
		if oldestKey == "" || w.lastUsed.Before(oldest) {
			oldestKey = key
			oldest = w.lastUsed
		}
	}
	if oldestKey != "" {
		delete(m.windows, oldestKey)
	}
}
