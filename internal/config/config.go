// Package config provides application configuration management.
// It loads settings from environment variables (and an optional .env file)
// and applies defaults for timeouts, cache, session and LLM settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Curriculum views understood by the curriculum capability.
const (
	CurriculumSummary  = "summary"
	CurriculumFull     = "full"
	CurriculumOverview = "overview"
)

// LLM providers.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// Config holds all application configuration
type Config struct {
	// Credentials (required)
	GeminiAPIKey     string
	OpenRouterAPIKey string
	APIBaseURL       string // Admissions backend base URL, ends with "/"

	// LLM
	OpenRouterBaseURL         string
	GeminiRouterModel         string
	GeminiClassifierModel     string
	OpenRouterRouterModel     string
	OpenRouterClassifierModel string
	RouterPrimaryProvider     string // "gemini" or "openrouter"
	ClassifierPrimaryProvider string // "gemini" or "openrouter"

	// Server
	Port             string
	LogLevel         string
	ShutdownTimeout  time.Duration
	DataDir          string
	MaxMessageLength int

	// Backend and reference cache
	BackendTimeout         time.Duration
	BackendMaxRetries      int
	CatalogTTL             time.Duration
	CatalogRetryBackoff    time.Duration
	CatalogRefreshInterval time.Duration // 0 disables refresh-ahead

	// Reasoning loop
	RouterMaxIterations int
	RouterTimeout       time.Duration

	// Session memory
	SessionIdleTTL          time.Duration
	SessionMax              int
	SessionMaxExchanges     int
	SessionLLMBurst         float64
	SessionLLMRefillPerHour float64

	// Capabilities
	CurriculumView  string
	AdmissionsEmail string
	PaymentBaseURL  string

	// LINE Messaging API (optional)
	LineChannelToken  string
	LineChannelSecret string

	// R2 snapshot mirror (optional)
	R2Endpoint        string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2SnapshotKey     string

	// Observability
	SentryToken         string
	SentryHost          string
	SentryEnvironment   string
	SentrySampleRate    float64
	BetterStackToken    string
	BetterStackEndpoint string
	MetricsUsername     string
	MetricsPassword     string // empty = no auth
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		GeminiAPIKey:     getEnv(EnvGeminiAPIKey, ""),
		OpenRouterAPIKey: getEnv(EnvOpenRouterKey, ""),
		APIBaseURL:       normalizeBaseURL(getEnv(EnvAPIBaseURL, "")),

		OpenRouterBaseURL:         getEnv(EnvOpenRouterBaseURL, "https://openrouter.ai/api/v1/"),
		GeminiRouterModel:         getEnv(EnvGeminiRouterModel, "gemini-2.0-flash"),
		GeminiClassifierModel:     getEnv(EnvGeminiClassifierModel, "gemini-2.0-flash"),
		OpenRouterRouterModel:     getEnv(EnvOpenRouterRouterModel, "meta-llama/llama-3.3-70b-instruct"),
		OpenRouterClassifierModel: getEnv(EnvOpenRouterClassifierModel, "meta-llama/llama-3.3-70b-instruct"),
		RouterPrimaryProvider:     strings.ToLower(getEnv(EnvRouterPrimaryProvider, ProviderGemini)),
		ClassifierPrimaryProvider: strings.ToLower(getEnv(EnvClassifierPrimaryProvider, ProviderOpenRouter)),

		Port:             getEnv(EnvPort, "8000"),
		LogLevel:         getEnv(EnvLogLevel, "info"),
		ShutdownTimeout:  getDurationEnv(EnvShutdownTimeout, 30*time.Second),
		DataDir:          getEnv(EnvDataDir, getDefaultDataDir()),
		MaxMessageLength: getIntEnv(EnvMaxMessageLength, 2000),

		BackendTimeout:         getDurationEnv(EnvBackendTimeout, BackendRequest),
		BackendMaxRetries:      getIntEnv(EnvBackendMaxRetries, 2),
		CatalogTTL:             getDurationEnv(EnvCatalogTTL, 300*time.Second),
		CatalogRetryBackoff:    getDurationEnv(EnvCatalogRetryBackoff, 30*time.Second),
		CatalogRefreshInterval: getDurationEnv(EnvCatalogRefreshInterval, 4*time.Minute),

		RouterMaxIterations: getIntEnv(EnvRouterMaxIterations, 2),
		RouterTimeout:       getDurationEnv(EnvRouterTimeout, 30*time.Second),

		SessionIdleTTL:          getDurationEnv(EnvSessionIdleTTL, 2*time.Hour),
		SessionMax:              getIntEnv(EnvSessionMax, 10000),
		SessionMaxExchanges:     getIntEnv(EnvSessionMaxExchanges, 20),
		SessionLLMBurst:         getFloatEnv(EnvSessionLLMBurst, 20),
		SessionLLMRefillPerHour: getFloatEnv(EnvSessionLLMRefillPerHour, 60),

		CurriculumView:  strings.ToLower(getEnv(EnvCurriculumView, CurriculumSummary)),
		AdmissionsEmail: getEnv(EnvAdmissionsEmail, "admisiones@ube.edu.ec"),
		PaymentBaseURL:  getEnv(EnvPaymentBaseURL, "https://pagos.ube.edu.ec/matricula"),

		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		R2Endpoint:        getEnv(EnvR2Endpoint, ""),
		R2AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
		R2SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
		R2BucketName:      getEnv(EnvR2BucketName, ""),
		R2SnapshotKey:     getEnv(EnvR2SnapshotKey, "catalog/snapshot.json.zst"),

		SentryToken:         getEnv(EnvSentryToken, ""),
		SentryHost:          getEnv(EnvSentryHost, ""),
		SentryEnvironment:   getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:    getFloatEnv(EnvSentrySampleRate, 1.0),
		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
		MetricsUsername:     getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword:     getEnv(EnvMetricsPassword, ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks required values and ranges, reporting every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.GeminiAPIKey == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvGeminiAPIKey))
	}
	if c.OpenRouterAPIKey == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvOpenRouterKey))
	}
	if c.APIBaseURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvAPIBaseURL))
	} else if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", EnvAPIBaseURL, c.APIBaseURL))
	}
	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPort))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvDataDir))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvMaxMessageLength, c.MaxMessageLength))
	}

	if c.BackendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvBackendTimeout, c.BackendTimeout))
	}
	if c.BackendMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvBackendMaxRetries, c.BackendMaxRetries))
	}
	if c.CatalogTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvCatalogTTL, c.CatalogTTL))
	}
	if c.CatalogRetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %v", EnvCatalogRetryBackoff, c.CatalogRetryBackoff))
	}
	if c.CatalogRefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %v", EnvCatalogRefreshInterval, c.CatalogRefreshInterval))
	}

	if c.RouterMaxIterations < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", EnvRouterMaxIterations, c.RouterMaxIterations))
	}
	if c.RouterTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvRouterTimeout, c.RouterTimeout))
	}
	if !validProvider(c.RouterPrimaryProvider) {
		errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", EnvRouterPrimaryProvider, ProviderGemini, ProviderOpenRouter, c.RouterPrimaryProvider))
	}
	if !validProvider(c.ClassifierPrimaryProvider) {
		errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", EnvClassifierPrimaryProvider, ProviderGemini, ProviderOpenRouter, c.ClassifierPrimaryProvider))
	}

	if c.SessionIdleTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvSessionIdleTTL, c.SessionIdleTTL))
	}
	if c.SessionMax < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", EnvSessionMax, c.SessionMax))
	}
	if c.SessionMaxExchanges < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", EnvSessionMaxExchanges, c.SessionMaxExchanges))
	}
	if c.SessionLLMBurst <= 0 || c.SessionLLMRefillPerHour < 0 {
		errs = append(errs, fmt.Errorf("%s must be positive and %s non-negative", EnvSessionLLMBurst, EnvSessionLLMRefillPerHour))
	}

	switch c.CurriculumView {
	case CurriculumSummary, CurriculumFull, CurriculumOverview:
	default:
		errs = append(errs, fmt.Errorf("%s must be one of summary, full, overview; got %q", EnvCurriculumView, c.CurriculumView))
	}

	if (c.LineChannelToken == "") != (c.LineChannelSecret == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvLineChannelAccessToken, EnvLineChannelSecret))
	}
	r2Set := 0
	for _, v := range []string{c.R2Endpoint, c.R2AccessKeyID, c.R2SecretAccessKey, c.R2BucketName} {
		if v != "" {
			r2Set++
		}
	}
	if r2Set != 0 && r2Set != 4 {
		errs = append(errs, errors.New("R2 settings are incomplete: endpoint, access key, secret key and bucket are all required"))
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", EnvSentrySampleRate, c.SentrySampleRate))
	}

	return errors.Join(errs...)
}

func validProvider(p string) bool {
	return p == ProviderGemini || p == ProviderOpenRouter
}

// normalizeBaseURL appends the trailing slash backend paths are joined onto.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasSuffix(raw, "/") {
		return raw
	}
	return raw + "/"
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "assistant.db")
}

// ChatTimeout bounds one chat request. It is ChatRequest unless the router
// timeout plus FallbackMargin needs longer, so the fallback never starts on
// an expired context.
func (c *Config) ChatTimeout() time.Duration {
	return max(ChatRequest, c.RouterTimeout+FallbackMargin)
}

// LINETimeout bounds one LINE event on the same terms as ChatTimeout.
func (c *Config) LINETimeout() time.Duration {
	return max(LINEEventProcessing, c.RouterTimeout+FallbackMargin)
}

// HTTPWriteTimeout is the server write timeout. It always outlasts ChatTimeout.
func (c *Config) HTTPWriteTimeout() time.Duration {
	return max(HTTPWrite, c.ChatTimeout()+WriteMargin)
}

// LINEEnabled reports whether the LINE webhook surface is configured.
func (c *Config) LINEEnabled() bool {
	return c.LineChannelToken != "" && c.LineChannelSecret != ""
}

// R2Enabled reports whether the R2 snapshot mirror is configured.
func (c *Config) R2Enabled() bool {
	return c.R2Endpoint != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

// SentryEnabled reports whether error tracking is configured.
func (c *Config) SentryEnabled() bool {
	return c.SentryToken != "" && c.SentryHost != ""
}
