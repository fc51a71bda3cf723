package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	// Pipeline metrics
	DocumentsIngested *prometheus.CounterVec
	ChunksStored      *prometheus.CounterVec
	RetrievalDuration *prometheus.HistogramVec
	Generations       *prometheus.CounterVec
	RecordsDropped    prometheus.Counter
	ScriptsGenerated  *prometheus.CounterVec

	// Backend metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	BackendTokensUsed      *prometheus.CounterVec
	EmbeddingCacheLookups  *prometheus.CounterVec
	CompletionCacheLookups *prometheus.CounterVec
}

// NewMetrics registers every metric on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests independent.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "docforge"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of active HTTP requests",
			},
		),

		DocumentsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_ingested_total",
				Help:      "Documents processed by ingestion, by doc type and status",
			},
			[]string{"doc_type", "status"},
		),
		ChunksStored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_stored_total",
				Help:      "Chunks written to the knowledge store",
			},
			[]string{"doc_type"},
		),
		RetrievalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_duration_seconds",
				Help:      "Time to embed a query and fetch the nearest chunks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"filtered"},
		),
		Generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Test case generations by final state",
			},
			[]string{"status", "state"},
		),
		RecordsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_records_dropped_total",
				Help:      "Generated records discarded for missing mandatory keys",
			},
		),
		ScriptsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scripts_generated_total",
				Help:      "Scripts synthesized, by framework and outcome",
			},
			[]string{"framework", "outcome"},
		),

		BackendRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Text generation backend requests",
			},
			[]string{"provider", "model", "status"},
		),
		BackendRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Text generation backend latency",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		BackendTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_tokens_total",
				Help:      "Tokens consumed by the text generation backend",
			},
			[]string{"model", "type"},
		),
		EmbeddingCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cache_lookups_total",
				Help:      "Embedding cache lookups by result",
			},
			[]string{"result"},
		),
		CompletionCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_cache_lookups_total",
				Help:      "Shared completion cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Handler returns the Prometheus HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordIngestedDocument records one file outcome
func (m *Metrics) RecordIngestedDocument(docType string, chunks int, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "failed"
		docType = "unknown"
	}
	m.DocumentsIngested.WithLabelValues(docType, status).Inc()
	if !failed {
		m.ChunksStored.WithLabelValues(docType).Add(float64(chunks))
	}
}

// RecordRetrieval records a retrieval round trip
func (m *Metrics) RecordRetrieval(filtered bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.RetrievalDuration.WithLabelValues(strconv.FormatBool(filtered)).Observe(duration.Seconds())
}

// RecordGeneration records a finished generation
func (m *Metrics) RecordGeneration(status, state string, dropped int) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(status, state).Inc()
	m.RecordsDropped.Add(float64(dropped))
}

// RecordScript records a synthesized script
func (m *Metrics) RecordScript(framework string, degraded bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if degraded {
		outcome = "fallback"
	}
	m.ScriptsGenerated.WithLabelValues(framework, outcome).Inc()
}

// RecordBackendRequest records text generation backend metrics
func (m *Metrics) RecordBackendRequest(provider, model, status string, duration time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(provider, model, status).Inc()
	m.BackendRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	m.BackendTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.BackendTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// RecordEmbeddingCache records a cache lookup
func (m *Metrics) RecordEmbeddingCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.EmbeddingCacheLookups.WithLabelValues(result).Inc()
}

// RecordCompletionCache records a shared completion cache lookup
func (m *Metrics) RecordCompletionCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CompletionCacheLookups.WithLabelValues(result).Inc()
}

// HTTPMiddleware returns middleware for recording HTTP metrics
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		m.RecordHTTPRequest(r.Method, path, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
