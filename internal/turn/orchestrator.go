package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwise/librarian/internal/history"
	"github.com/shelfwise/librarian/internal/observability"
)

// Backend is the model-calling collaborator: one blocking chat-completion
// call correlated by session identity.
type Backend interface {
	Invoke(ctx context.Context, sessionID, message string) (string, error)
}

// ContextReader is the slice of the context store the orchestrator
// consumes. Appending completed turns is the responsibility of the layer
// above the core.
type ContextReader interface {
	Read(ctx context.Context, userID string) ([]history.Entry, error)
}

// Orchestrator composes one conversational turn: resolve the session
// identity, preheat the prompt with prior context, call the model,
// sanitize the reply, and extend it once if it looks truncated.
type Orchestrator struct {
	backend  Backend
	contexts ContextReader
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithContextReader attaches the conversation context store used for
// preheating. Without it every message goes to the model as-is.
func WithContextReader(r ContextReader) Option {
	return func(o *Orchestrator) { o.contexts = r }
}

// WithLogger attaches a logger.
func WithLogger(logger *observability.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics attaches metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates a turn orchestrator around a model backend.
func New(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{backend: backend}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Chat executes one synchronous turn and returns the final answer.
// A blank sessionID is replaced with a fresh identity; userID may be
// empty for anonymous callers, which skips preheating.
//
// The only failure that propagates is an error from the primary model
// call. Preheat and continuation failures degrade gracefully.
func (o *Orchestrator) Chat(ctx context.Context, sessionID, message, userID string) (string, error) {
	return o.run(ctx, EnsureSessionID(sessionID), message, userID, "sync")
}

// Run executes one turn with an already resolved session identity. The
// streaming delivery layer resolves the identity up front (to announce it
// before generation starts) and runs the turn through here.
func (o *Orchestrator) Run(ctx context.Context, sessionID, message, userID string) (string, error) {
	return o.run(ctx, sessionID, message, userID, "stream")
}

func (o *Orchestrator) run(ctx context.Context, sessionID, message, userID, mode string) (string, error) {
	ctx = observability.WithSessionID(ctx, sessionID)
	if userID != "" {
		ctx = observability.WithUserID(ctx, userID)
	}

	effective := o.buildEffectiveMessage(ctx, userID, message)

	reply, err := o.invoke(ctx, sessionID, effective, "primary")
	if err != nil {
		o.countTurn(mode, "error")
		return "", fmt.Errorf("primary model call: %w", err)
	}

	answer := Sanitize(reply, sessionID)
	if len(answer) != len(reply) {
		o.logger.Debug(ctx, "sanitizer removed leaked identifiers",
			"before_chars", len(reply), "after_chars", len(answer))
	}

	if !IsComplete(answer) {
		answer = o.continueAnswer(ctx, sessionID, answer)
	}

	o.countTurn(mode, "success")
	return answer, nil
}

// continueAnswer asks the model once to finish a truncated reply and
// merges the result. Any continuation failure is absorbed: the truncated
// answer is better than no answer.
func (o *Orchestrator) continueAnswer(ctx context.Context, sessionID, answer string) string {
	if o.metrics != nil {
		o.metrics.ContinuationCounter.Inc()
	}
	o.logger.Debug(ctx, "reply looks truncated; attempting continuation",
		"answer_chars", len(answer))

	extra, err := o.invoke(ctx, sessionID, buildContinuationPrompt(answer), "continuation")
	if err != nil {
		o.logger.Warn(ctx, "continuation call failed; returning truncated answer",
			"error", err)
		return answer
	}
	return MergeContinuations(answer, Sanitize(extra, sessionID))
}

// invoke calls the model backend with latency and outcome metrics.
func (o *Orchestrator) invoke(ctx context.Context, sessionID, message, call string) (string, error) {
	start := time.Now()
	reply, err := o.backend.Invoke(ctx, sessionID, message)
	if o.metrics != nil {
		o.metrics.LLMRequestDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		o.metrics.LLMRequestCounter.WithLabelValues(call, status).Inc()
	}
	return reply, err
}

func (o *Orchestrator) countTurn(mode, status string) {
	if o.metrics != nil {
		o.metrics.TurnCounter.WithLabelValues(mode, status).Inc()
	}
}
