package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turn outcomes for the synchronous and streaming chat paths
//   - Model backend call latency, split by primary and continuation calls
//   - Continuation triggers from the truncation heuristic
//   - Stream units emitted by the simulated streaming pipeline
//   - Conversation history cache effectiveness
type Metrics struct {
	// TurnCounter counts completed turns.
	// Labels: mode (sync|stream), status (success|error)
	TurnCounter *prometheus.CounterVec

	// LLMRequestDuration measures model backend call latency in seconds.
	// Labels: call (primary|continuation)
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model backend calls.
	// Labels: call (primary|continuation), status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// ContinuationCounter counts turns where the truncation heuristic
	// triggered a continuation call.
	ContinuationCounter prometheus.Counter

	// StreamUnitsEmitted counts units delivered through the streaming pipeline.
	StreamUnitsEmitted prometheus.Counter

	// HistoryCacheHits counts context reads served from the in-process cache.
	HistoryCacheHits prometheus.Counter

	// HistoryCacheMisses counts context reads that fell back to the database.
	HistoryCacheMisses prometheus.Counter
}

// NewMetrics creates and registers metrics with the given registerer.
// If reg is nil, the default Prometheus registerer is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "turns_total",
			Help:      "Total chat turns by mode and status.",
		}, []string{"mode", "status"}),

		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "librarian",
			Name:      "llm_request_duration_seconds",
			Help:      "Model backend call latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"call"}),

		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "llm_requests_total",
			Help:      "Total model backend calls by kind and status.",
		}, []string{"call", "status"}),

		ContinuationCounter: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "continuations_total",
			Help:      "Turns where a continuation call was attempted.",
		}),

		StreamUnitsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "stream_units_emitted_total",
			Help:      "Units delivered through simulated streaming.",
		}),

		HistoryCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "history_cache_hits_total",
			Help:      "Context reads served from the in-process cache.",
		}),

		HistoryCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "librarian",
			Name:      "history_cache_misses_total",
			Help:      "Context reads that fell back to the database.",
		}),
	}
}
