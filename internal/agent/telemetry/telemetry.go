package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/researchchat/provider"
)

// Telemetry records research session metrics in Prometheus and mirrors the
// notable ones to the log. A nil *Telemetry is a no-op.
type Telemetry struct {
	logger *log.Logger

	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	evidence        *prometheus.HistogramVec
	searches        *prometheus.CounterVec
	llmCalls        *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
}

// SessionEvent summarises a finished research session.
type SessionEvent struct {
	ID         string
	Mode       string
	StopReason string
	Iterations int
	Goals      int
	Evidence   int
	Duration   time.Duration
	Err        error
}

// SearchEvent represents one search call.
type SearchEvent struct {
	Provider string
	Query    string
	Duration time.Duration
	Results  int
	Err      error
}

// LLMEvent represents one model call.
type LLMEvent struct {
	Purpose  string // plan, relevance, reflection, report
	Model    string
	Duration time.Duration
	Err      error
}

// NewTelemetry registers the collectors on reg. A nil reg keeps them
// unregistered, which tests use.
func NewTelemetry(reg prometheus.Registerer, logger *log.Logger) *Telemetry {
	if logger == nil {
		logger = log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags)
	}
	factory := promauto.With(reg)
	return &Telemetry{
		logger: logger,
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "researchchat",
			Name:      "sessions_total",
			Help:      "Research sessions by response mode and stop reason.",
		}, []string{"mode", "stop_reason"}),
		sessionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "researchchat",
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of research sessions.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),
		evidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "researchchat",
			Name:      "session_evidence_items",
			Help:      "Evidence items kept after final deduplication.",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}, []string{"mode"}),
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "researchchat",
			Name:      "search_calls_total",
			Help:      "Search calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "researchchat",
			Name:      "llm_calls_total",
			Help:      "Model calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		llmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "researchchat",
			Name:      "llm_call_duration_seconds",
			Help:      "Model call latency by purpose.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"purpose"}),
	}
}

// outcome labels a call result. Errors that may clear on their own are
// counted apart from hard failures.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case provider.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}

// RecordSessionEvent records a finished session.
func (t *Telemetry) RecordSessionEvent(ctx context.Context, event SessionEvent) {
	if t == nil {
		return
	}
	reason := event.StopReason
	if event.Err != nil && reason == "" {
		reason = "error"
	}
	t.sessions.WithLabelValues(event.Mode, reason).Inc()
	t.sessionDuration.WithLabelValues(event.Mode).Observe(event.Duration.Seconds())
	if event.Err == nil {
		t.evidence.WithLabelValues(event.Mode).Observe(float64(event.Evidence))
	}
	t.logger.Printf("Session Event: ID=%s, Mode=%s, Stop=%s, Iterations=%d, Goals=%d, Evidence=%d, Duration=%v, Err=%v",
		event.ID, event.Mode, reason, event.Iterations, event.Goals, event.Evidence, event.Duration, event.Err)
}

// RecordSearchEvent records a single search call.
func (t *Telemetry) RecordSearchEvent(ctx context.Context, event SearchEvent) {
	if t == nil {
		return
	}
	t.searches.WithLabelValues(event.Provider, outcome(event.Err)).Inc()
	if event.Err != nil {
		t.logger.Printf("Search Event: Provider=%s, Query=%q, Duration=%v, Err=%v", event.Provider, event.Query, event.Duration, event.Err)
	}
}

// RecordLLMEvent records a single model call.
func (t *Telemetry) RecordLLMEvent(ctx context.Context, event LLMEvent) {
	if t == nil {
		return
	}
	t.llmCalls.WithLabelValues(event.Purpose, outcome(event.Err)).Inc()
	t.llmLatency.WithLabelValues(event.Purpose).Observe(event.Duration.Seconds())
	if event.Err != nil {
		t.logger.Printf("LLM Event: Purpose=%s, Model=%s, Duration=%v, Err=%v", event.Purpose, event.Model, event.Duration, event.Err)
	}
}
