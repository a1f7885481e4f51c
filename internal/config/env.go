package config

// Environment variable keys.
//
//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Core (Required)
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvAPIBaseURL    = "API_BASE_URL"
	EnvOpenRouterKey = "TOKEN_LLAMA"

	// Server
	EnvPort             = "PORT"
	EnvLogLevel         = "LOG_LEVEL"
	EnvShutdownTimeout  = "SHUTDOWN_TIMEOUT"
	EnvDataDir          = "DATA_DIR"
	EnvMaxMessageLength = "MAX_MESSAGE_LENGTH"

	// Backend / reference cache
	EnvBackendTimeout         = "BACKEND_TIMEOUT"
	EnvBackendMaxRetries      = "BACKEND_MAX_RETRIES"
	EnvCatalogTTL             = "CATALOG_TTL"
	EnvCatalogRetryBackoff    = "CATALOG_RETRY_BACKOFF"
	EnvCatalogRefreshInterval = "CATALOG_REFRESH_INTERVAL"

	// LLM
	EnvOpenRouterBaseURL         = "OPENROUTER_BASE_URL"
	EnvGeminiRouterModel         = "GEMINI_ROUTER_MODEL"
	EnvGeminiClassifierModel     = "GEMINI_CLASSIFIER_MODEL"
	EnvOpenRouterRouterModel     = "OPENROUTER_ROUTER_MODEL"
	EnvOpenRouterClassifierModel = "OPENROUTER_CLASSIFIER_MODEL"
	EnvRouterPrimaryProvider     = "ROUTER_PRIMARY_PROVIDER"
	EnvClassifierPrimaryProvider = "CLASSIFIER_PRIMARY_PROVIDER"

	// Router
	EnvRouterMaxIterations = "ROUTER_MAX_ITERATIONS"
	EnvRouterTimeout       = "ROUTER_TIMEOUT"

	// Sessions
	EnvSessionIdleTTL          = "SESSION_IDLE_TTL"
	EnvSessionMax              = "SESSION_MAX"
	EnvSessionMaxExchanges     = "SESSION_MAX_EXCHANGES"
	EnvSessionLLMBurst         = "SESSION_LLM_BURST"
	EnvSessionLLMRefillPerHour = "SESSION_LLM_REFILL_PER_HOUR"

	// Capabilities
	EnvCurriculumView  = "CURRICULUM_VIEW"
	EnvAdmissionsEmail = "ADMISSIONS_EMAIL"
	EnvPaymentBaseURL  = "PAYMENT_BASE_URL"

	// LINE (optional surface)
	EnvLineChannelAccessToken = "LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "LINE_CHANNEL_SECRET"

	// R2 snapshot mirror
	EnvR2Endpoint        = "R2_ENDPOINT"
	EnvR2AccessKeyID     = "R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "R2_BUCKET"
	EnvR2SnapshotKey     = "R2_SNAPSHOT_KEY"

	// Sentry
	EnvSentryToken       = "SENTRY_TOKEN"
	EnvSentryHost        = "SENTRY_HOST"
	EnvSentryEnvironment = "SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "SENTRY_SAMPLE_RATE"

	// Better Stack
	EnvBetterStackToken    = "BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "BETTERSTACK_ENDPOINT"

	// Metrics auth
	EnvMetricsUsername = "METRICS_USERNAME"
	EnvMetricsPassword = "METRICS_PASSWORD"
)
