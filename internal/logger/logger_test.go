package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/garyellow/dr-matricula-go/internal/ctxutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log %q: %v", buf.String(), err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	log.Warn("catalog refresh failed")

	entry := decodeLine(t, &buf)
	for _, field := range []string{"timestamp", "level", "message"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("JSON log missing required field %q", field)
		}
	}
	if entry["level"] != "warning" {
		t.Errorf("level = %v, want warning", entry["level"])
	}
	if entry["message"] != "catalog refresh failed" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record should be filtered at warn level, got %q", buf.String())
	}
	if log.Level() != slog.LevelWarn {
		t.Errorf("Level() = %v, want warn", log.Level())
	}
}

func TestLogger_Fields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf)
	log.WithModule("router").
		WithSessionID("u1").
		WithError(errors.New("boom")).
		WithFields(map[string]any{"iterations": 2}).
		Debugf("loop %s", "exceeded")

	entry := decodeLine(t, &buf)
	if entry["module"] != "router" {
		t.Errorf("module = %v", entry["module"])
	}
	if entry["session_id"] != "u1" {
		t.Errorf("session_id = %v", entry["session_id"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
	if entry["iterations"] != float64(2) {
		t.Errorf("iterations = %v", entry["iterations"])
	}
	if entry["message"] != "loop exceeded" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestContextHandler_Handle(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	ctx := ctxutil.WithSessionID(context.Background(), "line:U123")
	ctx = ctxutil.WithRequestID(ctx, "req-abc")
	ctx = ctxutil.WithChannel(ctx, "line")
	log.InfoContext(ctx, "handled")

	entry := decodeLine(t, &buf)
	want := map[string]string{"session_id": "line:U123", "request_id": "req-abc", "channel": "line"}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestContextHandler_SkipsEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	log.InfoContext(ctxutil.WithSessionID(context.Background(), ""), "handled")

	if strings.Contains(buf.String(), "session_id") {
		t.Errorf("empty session ID should not be logged: %s", buf.String())
	}
}

func TestMultiHandler(t *testing.T) {
	t.Parallel()

	var debugBuf, errorBuf bytes.Buffer
	mh := NewMultiHandler(
		nil,
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	if len(mh.handlers) != 2 {
		t.Fatalf("expected nil handlers to be filtered, got %d", len(mh.handlers))
	}

	slog.New(mh).With("k", "v").Info("only debug sink")

	if !strings.Contains(debugBuf.String(), `"k":"v"`) {
		t.Errorf("debug sink missing record attrs: %s", debugBuf.String())
	}
	if errorBuf.Len() != 0 {
		t.Errorf("error sink should not receive info: %s", errorBuf.String())
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	records []string
	delay   time.Duration
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	time.Sleep(h.delay)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Message)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func TestAsyncHandler_ShutdownDrains(t *testing.T) {
	sink := &recordingHandler{}
	async := NewAsyncHandler(sink, AsyncOptions{BufferSize: 16})
	log := slog.New(async)
	for range 5 {
		log.Info("queued")
	}

	if err := async.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := sink.count(); got != 5 {
		t.Errorf("drained %d records, want 5", got)
	}

	// Records after shutdown are ignored and a second shutdown is a no-op.
	log.Info("late")
	if err := async.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestAsyncHandler_DropsWhenFull(t *testing.T) {
	sink := &recordingHandler{delay: 20 * time.Millisecond}
	async := NewAsyncHandler(sink, AsyncOptions{BufferSize: 1})
	log := slog.New(async)
	for range 20 {
		log.Info("burst")
	}

	if async.Dropped() == 0 {
		t.Error("expected some records to be dropped with a 1-slot buffer")
	}
	if err := async.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestLogger_ShutdownWithoutRemote(t *testing.T) {
	t.Parallel()

	log := NewWithWriter("info", &bytes.Buffer{})
	if err := log.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	var nilLog *Logger
	if err := nilLog.Shutdown(context.Background()); err != nil {
		t.Errorf("nil Shutdown() error = %v", err)
	}
}
