package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/shelfwise/librarian/internal/observability"
)

// ErrMissingAPIKey is returned when the backend is constructed without a
// credential. Construction fails fast so a misconfigured deployment does
// not surface as a confusing runtime error mid-conversation.
var ErrMissingAPIKey = errors.New("providers: api key is required")

// Backend is the model-calling collaborator consumed by the turn
// orchestrator: one blocking chat-completion call correlated by session
// identity.
type Backend interface {
	Invoke(ctx context.Context, sessionID, message string) (string, error)
}

// Config configures the OpenAI-compatible chat backend.
type Config struct {
	// APIKey is required.
	APIKey string

	// BaseURL points at any OpenAI-compatible endpoint. Empty uses the
	// SDK default (api.openai.com).
	BaseURL string

	// Model is the model name sent with each request.
	Model string

	// Temperature controls sampling creativity.
	Temperature float32

	// MaxTokens bounds reply length. Generous values reduce mid-answer
	// truncation, which otherwise triggers the continuation path.
	MaxTokens int

	// Timeout bounds each call.
	Timeout time.Duration
}

// OpenAIBackend implements Backend against the OpenAI-compatible chat
// completion API via sashabaranov/go-openai.
//
// Conversation continuity works through an injected WindowMemory: each
// call sends the session's recent message window ahead of the new user
// message, then records both the user message and the reply.
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	memory      *WindowMemory
	logger      *observability.Logger
}

// NewOpenAIBackend creates the chat backend. memory may be nil, in which
// case a default-sized window memory is created. Returns ErrMissingAPIKey
// when cfg.APIKey is blank.
func NewOpenAIBackend(cfg Config, memory *WindowMemory, logger *observability.Logger) (*OpenAIBackend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if memory == nil {
		memory = NewWindowMemory(DefaultWindowSize)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		memory:      memory,
		logger:      logger,
	}, nil
}

// Invoke sends one chat completion request carrying the session's message
// window plus the new message, and returns the generated text.
func (b *OpenAIBackend) Invoke(ctx context.Context, sessionID, message string) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	userMsg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	}
	messages := append(b.memory.Messages(sessionID), userMsg)

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	text := resp.Choices[0].Message.Content
	b.logger.Debug(ctx, "chat completion",
		"model", b.model,
		"duration", time.Since(start),
		"history_messages", len(messages)-1,
		"reply_chars", len(text))

	b.memory.Append(sessionID, userMsg)
	b.memory.Append(sessionID, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: text,
	})
	return text, nil
}
