// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/dr-matricula-go/internal/buildinfo"
	"github.com/garyellow/dr-matricula-go/internal/capability"
	"github.com/garyellow/dr-matricula-go/internal/catalog"
	"github.com/garyellow/dr-matricula-go/internal/chat"
	"github.com/garyellow/dr-matricula-go/internal/config"
	"github.com/garyellow/dr-matricula-go/internal/fallback"
	"github.com/garyellow/dr-matricula-go/internal/genai"
	"github.com/garyellow/dr-matricula-go/internal/line"
	"github.com/garyellow/dr-matricula-go/internal/logger"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
	"github.com/garyellow/dr-matricula-go/internal/r2client"
	"github.com/garyellow/dr-matricula-go/internal/ratelimit"
	"github.com/garyellow/dr-matricula-go/internal/refcache"
	"github.com/garyellow/dr-matricula-go/internal/resolver"
	"github.com/garyellow/dr-matricula-go/internal/router"
	"github.com/garyellow/dr-matricula-go/internal/sentry"
	"github.com/garyellow/dr-matricula-go/internal/session"
	"github.com/garyellow/dr-matricula-go/internal/storage"
	"github.com/garyellow/dr-matricula-go/internal/ubeapi"
)

// catalogCache is the part of the reference cache the application drives.
type catalogCache interface {
	Get(ctx context.Context) (*catalog.Catalog, error)
	Refresh(ctx context.Context) error
	Status() refcache.Status
	UpdateGauges()
}

// backendProber checks that the admissions backend answers.
type backendProber interface {
	Health(ctx context.Context) error
}

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg         *config.Config
	logger      *logger.Logger
	db          *storage.DB
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	backend     backendProber
	cache       catalogCache
	sessions    *session.Store
	llmLimiter  *ratelimit.KeyedLimiter
	decider     genai.Decider
	classifier  genai.Classifier
	lineHandler *line.Handler // nil when LINE is not configured
	router      *gin.Engine
	server      *http.Server
	wg          sync.WaitGroup // background jobs
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})
	log = log.WithField("service", "dr-matricula").WithField("version", buildinfo.Release())
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog.*Context calls pick up session and request ids
	// through the ContextHandler.
	slog.SetDefault(log.Logger)

	log.Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Release(),
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.WithError(err).Warn("Error tracking initialization failed")
	} else if sentry.IsEnabled() {
		log.WithField("host", cfg.SentryHost).Info("Error tracking enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	stores := []refcache.SnapshotStore{db}
	if cfg.R2Enabled() {
		mirror, err := r2client.New(ctx, r2client.Config{
			Endpoint:    cfg.R2Endpoint,
			AccessKeyID: cfg.R2AccessKeyID,
			SecretKey:   cfg.R2SecretAccessKey,
			BucketName:  cfg.R2BucketName,
			SnapshotKey: cfg.R2SnapshotKey,
		})
		if err != nil {
			log.WithError(err).Warn("R2 snapshot mirror disabled")
		} else {
			stores = append(stores, mirror)
			log.WithField("bucket", cfg.R2BucketName).Info("R2 snapshot mirror enabled")
		}
	}

	backend, err := ubeapi.New(ubeapi.Config{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.BackendTimeout,
		MaxRetries: cfg.BackendMaxRetries,
		Metrics:    m,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("backend client: %w", err)
	}

	cache := refcache.New(backend, refcache.Options{
		TTL:          cfg.CatalogTTL,
		RetryBackoff: cfg.CatalogRetryBackoff,
		Stores:       stores,
		Metrics:      m,
		Logger:       log.Logger,
	})

	llmCfg := buildLLMConfig(cfg, m)
	classifier, err := genai.NewClassifier(ctx, llmCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("classifier: %w", err)
	}
	decider, err := genai.NewDecider(ctx, llmCfg)
	if err != nil {
		_ = classifier.Close()
		_ = db.Close()
		return nil, fmt.Errorf("decider: %w", err)
	}

	caps := capability.New(capability.Deps{
		Catalog:  cache,
		Resolver: resolver.New(classifier, resolver.WithMetrics(m)),
		Backend:  backend,
		Ledger:   db,
		Metrics:  m,
	}, capability.Options{
		CurriculumView:  cfg.CurriculumView,
		AdmissionsEmail: cfg.AdmissionsEmail,
		PaymentBaseURL:  cfg.PaymentBaseURL,
	})

	sessions := session.NewStore(session.Config{
		IdleTTL:       cfg.SessionIdleTTL,
		MaxSessions:   cfg.SessionMax,
		MaxExchanges:  cfg.SessionMaxExchanges,
		SweepInterval: config.SessionSweepInterval,
		Metrics:       m,
	})
	llmLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:       "llm",
		Burst:      cfg.SessionLLMBurst,
		RefillRate: ratelimit.PerHour(cfg.SessionLLMRefillPerHour),
		Metrics:    m,
	})

	steps := router.NewLLMDecider(decider)
	replier := router.New(router.Deps{
		Capabilities: steps,
		Arguments:    steps,
		Invoker:      caps,
		Fallback:     fallback.New(caps),
		Sessions:     sessions,
		Limiter:      llmLimiter,
		Metrics:      m,
	}, router.Config{
		MaxIterations: cfg.RouterMaxIterations,
		Timeout:       cfg.RouterTimeout,
	})

	app := &Application{
		cfg:        cfg,
		logger:     log,
		db:         db,
		metrics:    m,
		registry:   registry,
		backend:    backend,
		cache:      cache,
		sessions:   sessions,
		llmLimiter: llmLimiter,
		decider:    decider,
		classifier: classifier,
	}

	if cfg.LINEEnabled() {
		app.lineHandler, err = line.NewHandler(line.HandlerConfig{
			ChannelSecret:    cfg.LineChannelSecret,
			ChannelToken:     cfg.LineChannelToken,
			Replier:          replier,
			Logger:           log.WithModule("line"),
			Metrics:          m,
			MaxMessageLength: cfg.MaxMessageLength,
			EventTimeout:     cfg.LINETimeout(),
		})
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("line webhook: %w", err)
		}
		log.Info("LINE webhook enabled")
	}

	chatHandler := chat.NewHandler(chat.Config{
		Replier:          replier,
		Logger:           log.WithModule("chat"),
		Metrics:          m,
		MaxMessageLength: cfg.MaxMessageLength,
		Timeout:          cfg.ChatTimeout(),
	})
	gin.SetMode(gin.ReleaseMode)
	app.router = app.newRouter(chatHandler)

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: config.HTTPReadHeader,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      cfg.HTTPWriteTimeout(),
		IdleTimeout:       config.HTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// buildLLMConfig maps application settings onto the provider chains.
func buildLLMConfig(cfg *config.Config, m *metrics.Metrics) genai.Config {
	return genai.Config{
		GeminiAPIKey:              cfg.GeminiAPIKey,
		OpenRouterAPIKey:          cfg.OpenRouterAPIKey,
		OpenRouterBaseURL:         cfg.OpenRouterBaseURL,
		GeminiRouterModel:         cfg.GeminiRouterModel,
		GeminiClassifierModel:     cfg.GeminiClassifierModel,
		OpenRouterRouterModel:     cfg.OpenRouterRouterModel,
		OpenRouterClassifierModel: cfg.OpenRouterClassifierModel,
		RouterPrimary:             genai.Provider(cfg.RouterPrimaryProvider),
		ClassifierPrimary:         genai.Provider(cfg.ClassifierPrimaryProvider),
		Retry:                     genai.DefaultRetryConfig(),
		Metrics:                   m,
	}
}

// newRouter builds the gin engine with middleware and every route.
func (a *Application) newRouter(chatHandler *chat.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if sentry.IsEnabled() {
		r.Use(sentry.Middleware())
	}
	r.Use(securityHeadersMiddleware())
	r.Use(requestIDMiddleware())
	r.Use(loggingMiddleware(a.logger))

	r.GET("/livez", a.livenessCheck)
	r.HEAD("/livez", a.livenessCheck)
	r.GET("/readyz", a.readinessCheck)
	r.HEAD("/readyz", a.readinessCheck)
	r.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	chatHandler.Register(r)
	if a.lineHandler != nil {
		r.POST("/webhook", a.lineHandler.Handle)
	}
	return r
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// readinessCheck reports ready once the database answers and a catalog
// snapshot (fresh, stale or restored) is loaded.
func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	st := a.cache.Status()
	if !st.Loaded {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "catalog not loaded",
		})
		return
	}

	enrollments, err := a.db.CountEnrollments(ctx, "")
	if err != nil {
		a.logger.WithError(err).Warn("Failed to count enrollments in readiness check")
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "connected",
		"catalog": gin.H{
			"programs":    st.Programs,
			"fetched_at":  st.FetchedAt.UTC().Format(time.RFC3339),
			"age_seconds": int(st.Age.Seconds()),
			"stale":       st.Stale,
			"restored":    st.Restored,
		},
		"sessions":    a.sessionCount(),
		"enrollments": enrollments,
		"features":    a.features(),
	})
}

func (a *Application) sessionCount() int {
	if a.sessions == nil {
		return 0
	}
	return a.sessions.Len()
}

func (a *Application) features() map[string]bool {
	return map[string]bool{
		"line":      a.lineHandler != nil,
		"r2_mirror": a.cfg != nil && a.cfg.R2Enabled(),
		"sentry":    sentry.IsEnabled(),
	}
}

// Run starts the HTTP server and background jobs, then blocks until
// SIGINT/SIGTERM and shuts down in order: jobs, HTTP server, LINE events,
// sessions, model clients, database, logger.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown must run after background jobs have stopped.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	if a.lineHandler != nil {
		a.logger.Info("Waiting for LINE events to complete...")
		if err := a.lineHandler.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("LINE handler shutdown timeout")
		}
	}

	a.logger.Info("Closing resources...")
	a.closeResources()

	if sentry.IsEnabled() {
		sentry.Flush(2 * time.Second)
	}

	a.logger.Info("Shutdown complete")
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
	}
	return nil
}

// closeResources releases everything Initialize acquired. Nil fields are skipped.
func (a *Application) closeResources() {
	if a.sessions != nil {
		a.sessions.Stop()
	}
	if a.llmLimiter != nil {
		a.llmLimiter.Stop()
	}
	if a.decider != nil {
		if err := a.decider.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "decider").Error("Component close error")
		}
	}
	if a.classifier != nil {
		if err := a.classifier.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "classifier").Error("Component close error")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}
}
