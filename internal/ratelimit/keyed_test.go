package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestKeyed(t *testing.T, cfg KeyedConfig) (*KeyedLimiter, *fakeClock) {
	t.Helper()
	if cfg.CleanupPeriod == 0 {
		cfg.CleanupPeriod = time.Hour
	}
	kl := NewKeyedLimiter(cfg)
	clock := newFakeClock()
	kl.now = clock.Now
	t.Cleanup(kl.Stop)
	return kl, clock
}

func TestKeyedLimiter_PerKey(t *testing.T) {
	t.Parallel()
	kl, _ := newTestKeyed(t, KeyedConfig{Name: "test", Burst: 1, RefillRate: 0})

	if !kl.Allow("session-1") {
		t.Error("first request for session-1 denied")
	}
	if kl.Allow("session-1") {
		t.Error("second request for session-1 allowed with burst 1")
	}
	if !kl.Allow("session-2") {
		t.Error("session-2 must not share session-1's bucket")
	}
	if !kl.Allow("") {
		t.Error("the empty key is never limited")
	}
	if got := kl.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestKeyedLimiter_Available(t *testing.T) {
	t.Parallel()
	kl, _ := newTestKeyed(t, KeyedConfig{Name: "test", Burst: 5, RefillRate: 0})

	if got := kl.Available("unknown"); got != 5 {
		t.Errorf("Available(unknown) = %v, want 5", got)
	}
	kl.Allow("k")
	kl.Allow("k")
	if got := kl.Available("k"); got != 3 {
		t.Errorf("Available(k) = %v, want 3", got)
	}
}

func TestKeyedLimiter_Sweep(t *testing.T) {
	t.Parallel()
	kl, clock := newTestKeyed(t, KeyedConfig{Name: "test", Burst: 2, RefillRate: 1})

	kl.Allow("idle")
	kl.Allow("busy")
	kl.Allow("busy")

	clock.Advance(time.Second)
	if removed := kl.sweep(); removed != 1 {
		t.Errorf("sweep() removed %d, want 1", removed)
	}
	if got := kl.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	clock.Advance(time.Second)
	kl.sweep()
	if got := kl.Len(); got != 0 {
		t.Errorf("Len() = %d after full refill, want 0", got)
	}
}

func TestKeyedLimiter_RecordsDrops(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	kl, _ := newTestKeyed(t, KeyedConfig{Name: "session_llm", Burst: 1, RefillRate: 0, Metrics: m})

	kl.Allow("k")
	kl.Allow("k")
	kl.Allow("k")

	if got := testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("session_llm")); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
}

func TestKeyedLimiter_Concurrent(t *testing.T) {
	t.Parallel()
	kl, _ := newTestKeyed(t, KeyedConfig{Name: "test", Burst: 10, RefillRate: 0})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed = map[string]int{}
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			if kl.Allow(key) {
				mu.Lock()
				allowed[key]++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for key, n := range allowed {
		if n != 10 {
			t.Errorf("%s allowed %d, want 10", key, n)
		}
	}
}

func TestKeyedLimiter_StopIdempotent(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "test", Burst: 1, CleanupPeriod: time.Millisecond})
	kl.Stop()
	kl.Stop()
}
