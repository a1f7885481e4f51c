package config

import "time"

// HTTP server timeouts
const (
	// HTTPRead is the server read timeout. Chat payloads are small JSON bodies.
	HTTPRead = 10 * time.Second

	// HTTPReadHeader bounds slow header delivery.
	HTTPReadHeader = 5 * time.Second

	// HTTPWrite must cover a full reasoning turn (RouterTimeout default 30s)
	// plus fallback rendering and serialization.
	HTTPWrite = 45 * time.Second

	// HTTPIdle is the keep-alive idle timeout.
	HTTPIdle = 120 * time.Second
)

// Chat / webhook processing
const (
	// ChatRequest bounds one chat request end to end, including waiting for
	// the session lock held by an earlier turn.
	ChatRequest = 40 * time.Second

	// LINEEventProcessing bounds one LINE event. The reply token stays valid
	// far longer, but users expect an answer within the loading animation.
	LINEEventProcessing = 55 * time.Second

	// FallbackMargin is reserved after the reasoning loop gives up so the
	// fallback responder can still fetch the catalog and render its answer.
	FallbackMargin = 10 * time.Second

	// WriteMargin separates the request deadline from the server write timeout.
	WriteMargin = 5 * time.Second
)

// Backend timeouts
const (
	// BackendRequest is the default timeout for one backend HTTP request.
	BackendRequest = 10 * time.Second

	// BackendRetryInitial is the first retry delay; later retries double it.
	BackendRetryInitial = 500 * time.Millisecond
)

// Database timeouts
const (
	// DatabaseBusyTimeout is the SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 5 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Health probes
const (
	// ReadinessCheckTimeout bounds the dependency checks behind /readyz.
	ReadinessCheckTimeout = 3 * time.Second

	// StartupProbeTimeout bounds the warning-only backend probe at startup.
	StartupProbeTimeout = 5 * time.Second

	// WarmupTimeout bounds the initial catalog load.
	WarmupTimeout = 20 * time.Second
)

// Background jobs
const (
	// SessionSweepInterval is how often idle sessions are evicted.
	SessionSweepInterval = time.Minute

	// GaugeUpdateInterval is how often cache and session gauges are refreshed.
	GaugeUpdateInterval = 30 * time.Second
)
