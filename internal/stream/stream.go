package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shelfwise/librarian/internal/observability"
	"github.com/shelfwise/librarian/internal/turn"
)

// DefaultUnitDelay is the pause between emitted units. Small enough to
// feel live, large enough not to flood slow consumers.
const DefaultUnitDelay = 25 * time.Millisecond

// Sinks receives the streaming delivery events. Nil callbacks are
// skipped. For one stream the pipeline guarantees: OnSession fires once,
// first; OnUnit fires zero or more times in answer order; then exactly
// one of OnComplete or OnError fires, terminally.
type Sinks struct {
	// OnSession delivers the resolved session identity before any model
	// call, so the caller can correlate the stream with a session even
	// if generation later fails.
	OnSession func(sessionID string)

	// OnUnit delivers one filtered unit.
	OnUnit func(unit string)

	// OnComplete delivers the concatenation of all emitted units. This
	// can differ from the generated answer when the filter suppressed
	// characters.
	OnComplete func(final string)

	// OnError delivers a terminal failure.
	OnError func(err error)
}

// Runner produces the final answer for one turn with an already resolved
// session identity. *turn.Orchestrator is the production implementation.
type Runner interface {
	Run(ctx context.Context, sessionID, message, userID string) (string, error)
}

// Deliverer streams fully generated answers unit by unit.
//
// Generation blocks the caller; emission runs on its own goroutine so a
// full-answer-length sequence of paced emissions never blocks the caller
// that requested streaming. Once emission starts it runs to completion
// or error; there is no cancellation primitive for an in-flight stream.
type Deliverer struct {
	runner  Runner
	filter  Filter
	delay   time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// Option configures a Deliverer.
type Option func(*Deliverer)

// WithFilter replaces the default character filter.
func WithFilter(f Filter) Option {
	return func(d *Deliverer) {
		if f != nil {
			d.filter = f
		}
	}
}

// WithUnitDelay sets the pause between emitted units.
func WithUnitDelay(delay time.Duration) Option {
	return func(d *Deliverer) {
		if delay >= 0 {
			d.delay = delay
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *observability.Logger) Option {
	return func(d *Deliverer) { d.logger = logger }
}

// WithMetrics attaches metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Deliverer) { d.metrics = m }
}

// New creates a Deliverer around a turn runner.
func New(runner Runner, opts ...Option) *Deliverer {
	d := &Deliverer{
		runner: runner,
		filter: DefaultFilter,
		delay:  DefaultUnitDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StreamChat runs one turn and streams the answer to the sinks.
//
// The session identity is resolved and announced immediately. The
// generation phase then blocks the caller; its failure is reported
// through OnError and no units are emitted. On success the emission
// phase is handed to a goroutine and StreamChat returns.
func (d *Deliverer) StreamChat(ctx context.Context, sessionID, message, userID string, sinks Sinks) {
	sid := turn.EnsureSessionID(sessionID)
	if sinks.OnSession != nil {
		sinks.OnSession(sid)
	}

	ctx = observability.WithSessionID(ctx, sid)
	final, err := d.runner.Run(ctx, sid, message, userID)
	if err != nil {
		d.logger.Warn(ctx, "stream generation failed", "error", err)
		if sinks.OnError != nil {
			sinks.OnError(err)
		}
		return
	}

	go d.emit(ctx, final, sinks)
}

// emit replays the final answer unit by unit through the filter.
// Delivery failures (panicking sinks or filters) are reported through
// OnError exactly once and end the stream; OnComplete never follows an
// error.
func (d *Deliverer) emit(ctx context.Context, final string, sinks Sinks) {
	completed := false
	defer func() {
		if r := recover(); r != nil && !completed {
			err := fmt.Errorf("stream delivery: %v", r)
			d.logger.Error(ctx, "stream delivery failed", "error", err)
			if sinks.OnError != nil {
				sinks.OnError(err)
			}
		}
	}()

	var emitted strings.Builder
	for _, r := range final {
		unit := d.filter(string(r), emitted.String())
		if unit == "" {
			continue
		}
		emitted.WriteString(unit)
		if sinks.OnUnit != nil {
			sinks.OnUnit(unit)
		}
		if d.metrics != nil {
			d.metrics.StreamUnitsEmitted.Inc()
		}
		if d.delay > 0 {
			time.Sleep(d.delay)
		}
	}

	d.logger.Debug(ctx, "stream complete", "emitted_chars", emitted.Len())
	completed = true
	if sinks.OnComplete != nil {
		sinks.OnComplete(emitted.String())
	}
}
