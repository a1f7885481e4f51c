package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/dr-matricula-go/internal/catalog"
	"github.com/garyellow/dr-matricula-go/internal/chat"
	"github.com/garyellow/dr-matricula-go/internal/config"
	"github.com/garyellow/dr-matricula-go/internal/ctxutil"
	"github.com/garyellow/dr-matricula-go/internal/logger"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
	"github.com/garyellow/dr-matricula-go/internal/refcache"
	"github.com/garyellow/dr-matricula-go/internal/router"
	"github.com/garyellow/dr-matricula-go/internal/session"
	"github.com/garyellow/dr-matricula-go/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeCache struct {
	status    refcache.Status
	getErr    error
	gets      atomic.Int32
	refreshes atomic.Int32
	gauges    atomic.Int32
}

func (f *fakeCache) Get(context.Context) (*catalog.Catalog, error) {
	f.gets.Add(1)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &catalog.Catalog{Undergraduate: []catalog.Program{{ID: 1, Name: "Derecho"}}}, nil
}

func (f *fakeCache) Refresh(context.Context) error {
	f.refreshes.Add(1)
	return nil
}

func (f *fakeCache) Status() refcache.Status { return f.status }
func (f *fakeCache) UpdateGauges()           { f.gauges.Add(1) }

type fakeBackend struct{ err error }

func (f fakeBackend) Health(context.Context) error { return f.err }

type staticReplier struct{}

func (staticReplier) Handle(_ context.Context, _, message string) router.Reply {
	return router.Reply{Text: "eco: " + message, Source: router.SourceRouter}
}

// setupTestApp creates a minimal Application for testing endpoints.
func setupTestApp(t *testing.T, cache *fakeCache) *Application {
	t.Helper()

	db, err := storage.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := metrics.New(prometheus.NewRegistry())
	sessions := session.NewStore(session.Config{SweepInterval: -1, Metrics: m})
	t.Cleanup(sessions.Stop)

	return &Application{
		cfg:      &config.Config{MetricsUsername: "prometheus"},
		logger:   logger.NewWithWriter("error", io.Discard),
		db:       db,
		metrics:  m,
		registry: prometheus.NewRegistry(),
		backend:  fakeBackend{},
		cache:    cache,
		sessions: sessions,
	}
}

func serve(t *testing.T, h http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestLivenessCheck(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t, &fakeCache{})
	_ = app.db.Close() // liveness never checks dependencies

	r := gin.New()
	r.GET("/livez", app.livenessCheck)
	w := serve(t, r, http.MethodGet, "/livez", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", decode(t, w)["status"])
}

func TestReadinessCheck(t *testing.T) {
	t.Parallel()

	t.Run("catalog loaded", func(t *testing.T) {
		t.Parallel()
		app := setupTestApp(t, &fakeCache{status: refcache.Status{
			Loaded:    true,
			FetchedAt: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC),
			Programs:  12,
			Stale:     true,
		}})
		r := gin.New()
		r.GET("/readyz", app.readinessCheck)

		w := serve(t, r, http.MethodGet, "/readyz", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode(t, w)
		assert.Equal(t, "ready", resp["status"])
		assert.Equal(t, "connected", resp["database"])
		cat, ok := resp["catalog"].(map[string]any)
		require.True(t, ok)
		assert.InDelta(t, 12, cat["programs"], 0)
		assert.Equal(t, true, cat["stale"])
		assert.Equal(t, "2026-10-14T08:00:00Z", cat["fetched_at"])
		assert.Contains(t, resp, "features")
	})

	t.Run("catalog not loaded", func(t *testing.T) {
		t.Parallel()
		app := setupTestApp(t, &fakeCache{})
		r := gin.New()
		r.GET("/readyz", app.readinessCheck)

		w := serve(t, r, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "catalog not loaded", decode(t, w)["reason"])
	})

	t.Run("database closed", func(t *testing.T) {
		t.Parallel()
		app := setupTestApp(t, &fakeCache{status: refcache.Status{Loaded: true}})
		_ = app.db.Close()
		r := gin.New()
		r.GET("/readyz", app.readinessCheck)

		w := serve(t, r, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "database unavailable", decode(t, w)["reason"])
	})
}

func TestNewRouter(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t, &fakeCache{})
	r := app.newRouter(chat.NewHandler(chat.Config{
		Replier: staticReplier{},
		Logger:  app.logger,
	}))

	w := serve(t, r, http.MethodPost, "/v1/chat", strings.NewReader(`{"session_id":"s1","message":"hola"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "eco: hola", decode(t, w)["response_text"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = serve(t, r, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// LINE is not configured.
	w = serve(t, r, http.MethodPost, "/webhook", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(requestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		id, _ := ctxutil.GetRequestID(c.Request.Context())
		c.String(http.StatusOK, id)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))

	w = serve(t, r, http.MethodGet, "/", nil)
	assert.Len(t, w.Body.String(), 36, "generated ids are UUIDs")
	assert.Equal(t, w.Body.String(), w.Header().Get(requestIDHeader))
}

func TestStartupChecks(t *testing.T) {
	t.Parallel()

	t.Run("primes catalog", func(t *testing.T) {
		t.Parallel()
		cache := &fakeCache{status: refcache.Status{Loaded: true, Programs: 1}}
		app := setupTestApp(t, cache)
		app.backend = fakeBackend{err: errors.New("backend down")}

		app.startupChecks(context.Background())
		assert.Equal(t, int32(1), cache.gets.Load(), "health probe failure is not fatal")
	})

	t.Run("catalog failure is logged only", func(t *testing.T) {
		t.Parallel()
		cache := &fakeCache{getErr: errors.New("unavailable")}
		app := setupTestApp(t, cache)

		app.startupChecks(context.Background())
		assert.Equal(t, int32(1), cache.gets.Load())
	})
}

func TestRecordGauges(t *testing.T) {
	t.Parallel()
	cache := &fakeCache{}
	app := setupTestApp(t, cache)

	require.NoError(t, app.sessions.Do(context.Background(), "s1", func(*session.Session) error { return nil }))
	app.recordGauges()

	assert.Equal(t, int32(1), cache.gauges.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(app.metrics.SessionsActive), 0)
}

func TestRefreshAhead(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		cache := &fakeCache{}
		app := setupTestApp(t, cache)
		app.refreshAhead(context.Background()) // returns at once
		assert.Zero(t, cache.refreshes.Load())
	})

	t.Run("stops on cancel", func(t *testing.T) {
		t.Parallel()
		cache := &fakeCache{}
		app := setupTestApp(t, cache)
		app.cfg.CatalogRefreshInterval = 5 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			app.refreshAhead(ctx)
		}()
		require.Eventually(t, func() bool { return cache.refreshes.Load() > 0 }, time.Second, 5*time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("refresh job did not stop")
		}
	})
}
