// Package session keeps per-conversation memory in process. Each key has a
// single writer at a time; different keys never contend.
package session

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

// Defaults for zero Config fields.
const (
	DefaultIdleTTL       = 2 * time.Hour
	DefaultMaxSessions   = 10000
	DefaultMaxExchanges  = 20
	DefaultSweepInterval = time.Minute
)

// Eviction reasons.
const (
	EvictIdle     = "idle"
	EvictCapacity = "capacity"
)

// Config configures a Store.
type Config struct {
	IdleTTL       time.Duration
	MaxSessions   int
	MaxExchanges  int
	SweepInterval time.Duration // negative disables the background sweep
	Metrics       *metrics.Metrics
}

type entry struct {
	session  *Session
	sem      chan struct{} // capacity 1; held for the duration of Do
	users    int           // holders and waiters, guarded by Store.mu
	lastUsed time.Time
	elem     *list.Element
}

// Store holds sessions keyed by opaque id.
type Store struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recently used; values are keys

	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewStore creates a store and starts its idle sweep.
func NewStore(cfg Config) *Store {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxExchanges <= 0 {
		cfg.MaxExchanges = DefaultMaxExchanges
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	s := &Store{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
		lru:     list.New(),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.done)
	}
	return s
}

// Do runs fn with exclusive access to the session for key, creating it on
// first use. Waiting for the lock honors ctx.
func (s *Store) Do(ctx context.Context, key string, fn func(*Session) error) error {
	e := s.checkout(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		s.release(key, e)
		return ctx.Err()
	}
	defer func() {
		<-e.sem
		s.release(key, e)
	}()

	return fn(e.session)
}

// checkout registers a user of key's entry.
func (s *Store) checkout(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{
			session: &Session{id: key, maxExchanges: s.cfg.MaxExchanges},
			sem:     make(chan struct{}, 1),
		}
		e.elem = s.lru.PushFront(key)
		s.entries[key] = e
		// Count the caller before evicting so the new entry is never a candidate.
		e.users++
		e.lastUsed = s.now()
		s.evictOverCapacityLocked()
		s.cfg.Metrics.SetSessionsActive(len(s.entries))
		return e
	}
	s.lru.MoveToFront(e.elem)
	e.users++
	e.lastUsed = s.now()
	return e
}

func (s *Store) release(key string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.users--
	e.lastUsed = s.now()
	if cur, ok := s.entries[key]; ok && cur == e {
		s.lru.MoveToFront(e.elem)
	}
}

// evictOverCapacityLocked drops least recently used sessions nobody holds.
func (s *Store) evictOverCapacityLocked() {
	evicted := 0
	for el := s.lru.Back(); el != nil && len(s.entries) > s.cfg.MaxSessions; {
		prev := el.Prev()
		key := el.Value.(string)
		if e := s.entries[key]; e.users == 0 {
			s.removeLocked(key, e)
			evicted++
		}
		el = prev
	}
	s.cfg.Metrics.RecordSessionEviction(EvictCapacity, evicted)
}

func (s *Store) removeLocked(key string, e *entry) {
	s.lru.Remove(e.elem)
	delete(s.entries, key)
}

// Sweep removes sessions idle longer than the TTL and returns how many
// were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.cfg.IdleTTL)
	evicted := 0
	for el := s.lru.Back(); el != nil; {
		prev := el.Prev()
		key := el.Value.(string)
		e := s.entries[key]
		if !e.lastUsed.Before(cutoff) {
			break
		}
		if e.users == 0 {
			s.removeLocked(key, e)
			evicted++
		}
		el = prev
	}
	s.cfg.Metrics.RecordSessionEviction(EvictIdle, evicted)
	s.cfg.Metrics.SetSessionsActive(len(s.entries))
	return evicted
}

func (s *Store) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("Evicted idle sessions", "count", n)
			}
		}
	}
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns a copy of key's history without creating the session.
func (s *Store) Snapshot(key string) ([]Exchange, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.session.Exchanges(), true
}

// Stop halts the sweep and waits for it. Safe to call more than once.
func (s *Store) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	<-s.done
}
