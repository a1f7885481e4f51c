// Package metrics defines the Prometheus metrics exported by the assistant.
// All Record* helpers are safe to call on a nil *Metrics so components can be
// constructed without metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Backend metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendDurationSeconds *prometheus.HistogramVec

	// Reference cache metrics
	CatalogEventsTotal     *prometheus.CounterVec
	CatalogAgeSeconds      prometheus.Gauge
	CatalogPrograms        *prometheus.GaugeVec
	SingleflightDedupTotal *prometheus.CounterVec

	// Resolver metrics
	ResolverOutcomesTotal *prometheus.CounterVec

	// Capability metrics
	CapabilityInvocationsTotal *prometheus.CounterVec
	CapabilityDurationSeconds  *prometheus.HistogramVec
	EnrollmentsTotal           *prometheus.CounterVec

	// Router metrics
	RouterOutcomesTotal  *prometheus.CounterVec
	RouterIterations     prometheus.Histogram
	ReplyDurationSeconds *prometheus.HistogramVec

	// LLM metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMDurationSeconds *prometheus.HistogramVec
	LLMTokensTotal     *prometheus.CounterVec
	LLMFallbackTotal   *prometheus.CounterVec

	// Session metrics
	SessionsActive        prometheus.Gauge
	SessionEvictionsTotal *prometheus.CounterVec

	// Surface metrics
	ChatRequestsTotal  *prometheus.CounterVec
	HTTPErrorsTotal    *prometheus.CounterVec
	RateLimiterDropped *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		BackendRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_backend_requests_total",
				Help: "Total admissions backend requests by endpoint and status",
			},
			[]string{"endpoint", "status"}, // status: success, error, timeout, not_found
		),
		BackendDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ube_backend_duration_seconds",
				Help:    "Admissions backend request duration in seconds, retries included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"endpoint"}, // endpoint: carreras, grupos, malla, matricular
		),

		CatalogEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_catalog_events_total",
				Help: "Reference cache events",
			},
			[]string{"event"}, // event: hit, refresh, refresh_error, stale, restored, unavailable
		),
		CatalogAgeSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ube_catalog_age_seconds",
				Help: "Age of the cached catalog snapshot",
			},
		),
		CatalogPrograms: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ube_catalog_programs",
				Help: "Programs in the cached catalog by level",
			},
			[]string{"level"}, // level: grado, postgrado
		),
		SingleflightDedupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"},
		),

		ResolverOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_resolver_outcomes_total",
				Help: "Entity resolution outcomes",
			},
			[]string{"outcome"}, // outcome: resolved, not_found, malformed, unknown_id, unavailable, empty
		),

		CapabilityInvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_capability_invocations_total",
				Help: "Capability invocations by capability and status",
			},
			[]string{"capability", "status"}, // status: ok, not_found, empty, unavailable, prompt
		),
		CapabilityDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ube_capability_duration_seconds",
				Help:    "Capability invocation duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"capability"},
		),
		EnrollmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_enrollments_total",
				Help: "Enrollment submissions by status",
			},
			[]string{"status"}, // status: success, rejected, error
		),

		RouterOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_router_outcomes_total",
				Help: "Reasoning loop outcomes",
			},
			[]string{"outcome"}, // outcome: answer, exceeded, no_convergence, rate_limited, empty_input
		),
		RouterIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ube_router_iterations",
				Help:    "Decide steps taken per message",
				Buckets: []float64{1, 2, 3, 4, 6, 8},
			},
		),
		ReplyDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ube_reply_duration_seconds",
				Help:    "End-to-end reply latency by reply source",
				Buckets: []float64{0.05, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 45},
			},
			[]string{"source"}, // source: router, fallback
		),

		LLMRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_llm_requests_total",
				Help: "LLM API calls by provider, operation and status",
			},
			[]string{"provider", "operation", "status"}, // operation: decide, classify
		),
		LLMDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ube_llm_duration_seconds",
				Help:    "LLM API call duration in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
			},
			[]string{"provider", "operation"},
		),
		LLMTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_llm_tokens_total",
				Help: "LLM tokens consumed",
			},
			[]string{"provider", "operation", "type"}, // type: input, output
		),
		LLMFallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_llm_fallback_total",
				Help: "Times the fallback LLM provider was used",
			},
			[]string{"operation"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ube_sessions_active",
				Help: "Conversation sessions held in memory",
			},
		),
		SessionEvictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_session_evictions_total",
				Help: "Evicted sessions by reason",
			},
			[]string{"reason"}, // reason: idle, capacity
		),

		ChatRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_chat_requests_total",
				Help: "Inbound chat messages by channel and status",
			},
			[]string{"channel", "status"}, // channel: api, legacy, line
		),
		HTTPErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"},
		),
		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ube_rate_limiter_dropped_total",
				Help: "Total number of requests denied by a rate limiter",
			},
			[]string{"limiter_type"},
		),
	}
}

// RecordBackendRequest records one logical backend call.
func (m *Metrics) RecordBackendRequest(endpoint, status string, duration float64) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.BackendDurationSeconds.WithLabelValues(endpoint).Observe(duration)
}

// RecordCatalogEvent records a reference cache event.
func (m *Metrics) RecordCatalogEvent(event string) {
	if m == nil {
		return
	}
	m.CatalogEventsTotal.WithLabelValues(event).Inc()
}

// SetCatalogState updates snapshot gauges.
func (m *Metrics) SetCatalogState(ageSeconds float64, undergraduate, graduate int) {
	if m == nil {
		return
	}
	m.CatalogAgeSeconds.Set(ageSeconds)
	m.CatalogPrograms.WithLabelValues("grado").Set(float64(undergraduate))
	m.CatalogPrograms.WithLabelValues("postgrado").Set(float64(graduate))
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(module string) {
	if m == nil {
		return
	}
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordResolution records an entity resolution outcome.
func (m *Metrics) RecordResolution(outcome string) {
	if m == nil {
		return
	}
	m.ResolverOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordCapability records a capability invocation.
func (m *Metrics) RecordCapability(capability, status string, duration float64) {
	if m == nil {
		return
	}
	m.CapabilityInvocationsTotal.WithLabelValues(capability, status).Inc()
	m.CapabilityDurationSeconds.WithLabelValues(capability).Observe(duration)
}

// RecordEnrollment records an enrollment submission.
func (m *Metrics) RecordEnrollment(status string) {
	if m == nil {
		return
	}
	m.EnrollmentsTotal.WithLabelValues(status).Inc()
}

// RecordRouterOutcome records how a message left the reasoning loop.
func (m *Metrics) RecordRouterOutcome(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.RouterOutcomesTotal.WithLabelValues(outcome).Inc()
	if iterations > 0 {
		m.RouterIterations.Observe(float64(iterations))
	}
}

// RecordReply records end-to-end reply latency.
func (m *Metrics) RecordReply(source string, duration float64) {
	if m == nil {
		return
	}
	m.ReplyDurationSeconds.WithLabelValues(source).Observe(duration)
}

// RecordLLMRequest records an LLM API call.
func (m *Metrics) RecordLLMRequest(provider, operation, status string, duration float64) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	m.LLMDurationSeconds.WithLabelValues(provider, operation).Observe(duration)
}

// RecordLLMTokens records token usage reported by a provider.
func (m *Metrics) RecordLLMTokens(provider, operation string, input, output int) {
	if m == nil {
		return
	}
	if input > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, operation, "input").Add(float64(input))
	}
	if output > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, operation, "output").Add(float64(output))
	}
}

// RecordLLMFallback records use of the fallback provider.
func (m *Metrics) RecordLLMFallback(operation string) {
	if m == nil {
		return
	}
	m.LLMFallbackTotal.WithLabelValues(operation).Inc()
}

// SetSessionsActive sets the active session gauge.
func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// RecordSessionEviction records evicted sessions.
func (m *Metrics) RecordSessionEviction(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionEvictionsTotal.WithLabelValues(reason).Add(float64(n))
}

// RecordChatRequest records an inbound chat message.
func (m *Metrics) RecordChatRequest(channel, status string) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(channel, status).Inc()
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	if m == nil {
		return
	}
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}
