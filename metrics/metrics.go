// Package metrics defines the Prometheus collectors used by the retrieval
// core and exposes an HTTP handler for scraping.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can be constructed without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "educhat"

// Metrics holds all Prometheus collectors for educhat.
type Metrics struct {
	IndexBuildsTotal       *prometheus.CounterVec
	IndexBuildDuration     prometheus.Histogram
	EmbeddingRequestsTotal *prometheus.CounterVec
	ChunksEmbeddedTotal    prometheus.Counter
	ChainCacheTotal        *prometheus.CounterVec
	ChainCacheEntries      prometheus.Gauge
	FusionSkippedTotal     prometheus.Counter
	TurnsTotal             *prometheus.CounterVec
	TurnDuration           *prometheus.HistogramVec
	QuizzesTotal           *prometheus.CounterVec
	QuizDuration           prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_builds_total",
				Help:      "Per-document index resolutions by result (built, loaded, error).",
			},
			[]string{"result"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "index_build_duration_seconds",
				Help:      "Time spent chunking, embedding and persisting one document index.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		EmbeddingRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_requests_total",
				Help:      "Calls to the embedding capability by kind (documents, query) and status.",
			},
			[]string{"kind", "status"},
		),
		ChunksEmbeddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_embedded_total",
				Help:      "Total chunks embedded during index builds.",
			},
		),
		ChainCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_cache_total",
				Help:      "Chain cache lookups and evictions by result (hit, miss, evict, error).",
			},
			[]string{"result"},
		),
		ChainCacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chain_cache_entries",
				Help:      "Number of conversational chains currently cached.",
			},
		),
		FusionSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fusion_skipped_documents_total",
				Help:      "Documents left out of a combined index because they could not be indexed.",
			},
		),
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Conversation turns by mode and outcome (completed, fallback).",
			},
			[]string{"mode", "outcome"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end latency of a conversation turn.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		QuizzesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quizzes_total",
				Help:      "Quiz generation requests by outcome (ok, error).",
			},
			[]string{"outcome"},
		),
		QuizDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "quiz_duration_seconds",
				Help:      "Time spent generating one quiz.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.IndexBuildsTotal,
			m.IndexBuildDuration,
			m.EmbeddingRequestsTotal,
			m.ChunksEmbeddedTotal,
			m.ChainCacheTotal,
			m.ChainCacheEntries,
			m.FusionSkippedTotal,
			m.TurnsTotal,
			m.TurnDuration,
			m.QuizzesTotal,
			m.QuizDuration,
		)
	}

	return m
}

// IndexBuild records how an index request was satisfied.
func (m *Metrics) IndexBuild(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.IndexBuildsTotal.WithLabelValues(result).Inc()
	if result == "built" {
		m.IndexBuildDuration.Observe(d.Seconds())
	}
}

// Embedding records one call to the embedding capability.
func (m *Metrics) Embedding(kind string, err error, chunks int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EmbeddingRequestsTotal.WithLabelValues(kind, status).Inc()
	if err == nil && chunks > 0 {
		m.ChunksEmbeddedTotal.Add(float64(chunks))
	}
}

// ChainCache records a cache lookup result and the resulting cache size.
func (m *Metrics) ChainCache(result string, entries int) {
	if m == nil {
		return
	}
	m.ChainCacheTotal.WithLabelValues(result).Inc()
	m.ChainCacheEntries.Set(float64(entries))
}

// FusionSkipped records documents dropped from a combined index.
func (m *Metrics) FusionSkipped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.FusionSkippedTotal.Add(float64(n))
}

// Turn records a finished conversation turn.
func (m *Metrics) Turn(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(mode, outcome).Inc()
	m.TurnDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// Quiz records one quiz generation request.
func (m *Metrics) Quiz(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.QuizzesTotal.WithLabelValues(outcome).Inc()
	m.QuizDuration.Observe(d.Seconds())
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
