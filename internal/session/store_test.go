package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newManualStore returns a store without a background sweep and with a
// controllable clock.
func newManualStore(t *testing.T, cfg Config) (*Store, *clock) {
	t.Helper()
	cfg.SweepInterval = -1
	s := NewStore(cfg)
	c := &clock{now: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	s.now = c.Now
	t.Cleanup(s.Stop)
	return s, c
}

func appendExchange(t *testing.T, s *Store, key, input, output string) {
	t.Helper()
	err := s.Do(context.Background(), key, func(sess *Session) error {
		sess.Append(Exchange{Input: input, Output: output, Capabilities: []string{"program_detail"}})
		return nil
	})
	require.NoError(t, err)
}

func TestStore_AppendsPairs(t *testing.T) {
	t.Parallel()
	s, _ := newManualStore(t, Config{})

	appendExchange(t, s, "u1", "Derecho", "Derecho es una carrera de grado.")
	got, ok := s.Snapshot("u1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "Derecho", got[0].Input)

	appendExchange(t, s, "u1", "¿Y los grupos?", "Los grupos disponibles...")
	got, _ = s.Snapshot("u1")
	require.Len(t, got, 2)
	assert.Equal(t, "Derecho", got[0].Input, "first pair must be untouched")
	assert.Equal(t, "¿Y los grupos?", got[1].Input)
}

func TestStore_DoPropagatesError(t *testing.T) {
	t.Parallel()
	s, _ := newManualStore(t, Config{})

	wantErr := fmt.Errorf("turn failed")
	err := s.Do(context.Background(), "k", func(*Session) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestStore_SerializesSameKey(t *testing.T) {
	t.Parallel()
	s, _ := newManualStore(t, Config{})

	var (
		inFlight atomic.Int32
		maxSeen  atomic.Int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Do(context.Background(), "shared", func(sess *Session) error {
				n := inFlight.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				sess.Append(Exchange{Input: fmt.Sprint(i)})
				inFlight.Add(-1)
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	got, _ := s.Snapshot("shared")
	assert.Len(t, got, 20)
}

func TestStore_DistinctKeysDoNotBlock(t *testing.T) {
	t.Parallel()
	s, _ := newManualStore(t, Config{})

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Do(context.Background(), "a", func(*Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Do(ctx, "b", func(*Session) error { return nil }))

	close(release)
	<-done
}

func TestStore_WaitHonorsContext(t *testing.T) {
	t.Parallel()
	s, _ := newManualStore(t, Config{})

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Do(context.Background(), "k", func(*Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := s.Do(ctx, "k", func(*Session) error { called = true; return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	close(release)
	<-done
}

func TestStore_MaxExchanges(t *testing.T) {
	t.Parallel()
	s, _ := newManualStore(t, Config{MaxExchanges: 3})

	for i := 0; i < 5; i++ {
		appendExchange(t, s, "k", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	got, _ := s.Snapshot("k")
	require.Len(t, got, 3)
	assert.Equal(t, "q2", got[0].Input)
	assert.Equal(t, "q4", got[2].Input)
}

func TestStore_IdleEviction(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	s, c := newManualStore(t, Config{IdleTTL: time.Hour, Metrics: m})

	appendExchange(t, s, "old", "hola", "¡Hola!")
	c.Advance(50 * time.Minute)
	appendExchange(t, s, "recent", "hola", "¡Hola!")
	c.Advance(20 * time.Minute)

	assert.Equal(t, 1, s.Sweep())
	_, ok := s.Snapshot("old")
	assert.False(t, ok)
	_, ok = s.Snapshot("recent")
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionEvictionsTotal.WithLabelValues(EvictIdle)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionsActive), 0)
}

func TestStore_IdleEvictionSkipsHeld(t *testing.T) {
	t.Parallel()
	s, c := newManualStore(t, Config{IdleTTL: time.Minute})

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Do(context.Background(), "busy", func(*Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	c.Advance(time.Hour)
	assert.Zero(t, s.Sweep())
	assert.Equal(t, 1, s.Len())

	close(release)
	<-done
}

func TestStore_CapacityEviction(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	s, c := newManualStore(t, Config{MaxSessions: 2, Metrics: m})

	appendExchange(t, s, "a", "1", "1")
	c.Advance(time.Second)
	appendExchange(t, s, "b", "2", "2")
	c.Advance(time.Second)
	appendExchange(t, s, "a", "3", "3") // a becomes most recent
	c.Advance(time.Second)
	appendExchange(t, s, "c", "4", "4")

	assert.Equal(t, 2, s.Len())
	_, ok := s.Snapshot("b")
	assert.False(t, ok, "least recently used session must be evicted")
	got, ok := s.Snapshot("a")
	require.True(t, ok)
	assert.Len(t, got, 2)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionEvictionsTotal.WithLabelValues(EvictCapacity)), 0)
}

func TestStore_CapacityEvictionKeepsNewSession(t *testing.T) {
	t.Parallel()
	s, _ := newManualStore(t, Config{MaxSessions: 1})

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Do(context.Background(), "a", func(*Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	// Every other session is in use, so nothing can be evicted yet.
	appendExchange(t, s, "b", "hola", "respuesta")
	got, ok := s.Snapshot("b")
	require.True(t, ok, "a new session survives its first turn")
	assert.Len(t, got, 1)
	assert.Equal(t, 2, s.Len())

	close(release)
	require.NoError(t, <-done)

	appendExchange(t, s, "b", "otra", "respuesta")
	got, ok = s.Snapshot("b")
	require.True(t, ok)
	assert.Len(t, got, 2, "the same entry keeps serving b")
}

func TestStore_SnapshotDoesNotCreate(t *testing.T) {
	t.Parallel()
	s, _ := newManualStore(t, Config{})

	got, ok := s.Snapshot("missing")
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Zero(t, s.Len())
}

func TestStore_BackgroundSweep(t *testing.T) {
	t.Parallel()
	s := NewStore(Config{IdleTTL: time.Millisecond, SweepInterval: 5 * time.Millisecond})
	defer s.Stop()

	require.NoError(t, s.Do(context.Background(), "k", func(*Session) error { return nil }))
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStore_StopIdempotent(t *testing.T) {
	t.Parallel()
	s := NewStore(Config{SweepInterval: time.Millisecond})
	s.Stop()
	s.Stop()
}
