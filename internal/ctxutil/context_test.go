package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestSessionIDContext(t *testing.T) {
	t.Parallel()

	t.Run("empty context", func(t *testing.T) {
		t.Parallel()
		if sessionID := GetSessionID(context.Background()); sessionID != "" {
			t.Errorf("Expected empty string, got %s", sessionID)
		}
	})

	t.Run("with session ID", func(t *testing.T) {
		t.Parallel()
		ctx := WithSessionID(context.Background(), "u1")
		if got := GetSessionID(ctx); got != "u1" {
			t.Errorf("Expected sessionID u1, got %s", got)
		}
	})
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	if _, ok := GetRequestID(context.Background()); ok {
		t.Error("Expected no request ID in empty context")
	}

	ctx := WithRequestID(context.Background(), "req-123")
	requestID, ok := GetRequestID(ctx)
	if !ok || requestID != "req-123" {
		t.Errorf("Expected req-123, got %q (ok=%v)", requestID, ok)
	}
}

func TestPreserveTracing(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	parent = WithSessionID(parent, "line:U1")
	parent = WithRequestID(parent, "req-9")
	parent = WithChannel(parent, "line")
	cancel()

	detached := PreserveTracing(parent)

	if detached.Err() != nil {
		t.Errorf("detached context should not be canceled, got %v", detached.Err())
	}
	if _, ok := detached.Deadline(); ok {
		t.Error("detached context should have no deadline")
	}
	if got := GetSessionID(detached); got != "line:U1" {
		t.Errorf("session ID = %q, want line:U1", got)
	}
	if got, _ := GetRequestID(detached); got != "req-9" {
		t.Errorf("request ID = %q, want req-9", got)
	}
	if got := GetChannel(detached); got != "line" {
		t.Errorf("channel = %q, want line", got)
	}
}
