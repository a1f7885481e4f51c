package ratelimit

import (
	"sync"
	"time"

	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter.
type KeyedConfig struct {
	Name          string  // metrics label, e.g. "session_llm"
	Burst         float64 // tokens per key
	RefillRate    float64 // tokens per second
	CleanupPeriod time.Duration
	Metrics       *metrics.Metrics
}

// KeyedLimiter keeps one bucket per key. Buckets that have refilled
// completely are dropped by a background sweep, so idle keys cost nothing.
type KeyedLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*Limiter
	config  KeyedConfig
	now     func() time.Time
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewKeyedLimiter starts a keyed limiter. Call Stop to end the sweep.
//
//	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
//	    Name:          "session_llm",
//	    Burst:         20,
//	    RefillRate:    ratelimit.PerHour(60),
//	    CleanupPeriod: 5 * time.Minute,
//	})
//	defer limiter.Stop()
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}
	kl := &KeyedLimiter{
		buckets: make(map[string]*Limiter),
		config:  cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go kl.cleanupLoop()
	return kl
}

// Allow takes a token from key's bucket. The empty key is never limited.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	if kl.bucket(key).Allow() {
		return true
	}
	kl.config.Metrics.RecordRateLimiterDrop(kl.config.Name)
	return false
}

func (kl *KeyedLimiter) bucket(key string) *Limiter {
	kl.mu.RLock()
	b, ok := kl.buckets[key]
	kl.mu.RUnlock()
	if ok {
		return b
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()
	if b, ok = kl.buckets[key]; ok {
		return b
	}
	b = newWithClock(kl.config.Burst, kl.config.RefillRate, kl.now)
	kl.buckets[key] = b
	return b
}

// Available returns the tokens left for key. Unknown keys have a full bucket.
func (kl *KeyedLimiter) Available(key string) float64 {
	kl.mu.RLock()
	b, ok := kl.buckets[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.config.Burst
	}
	return b.Available()
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.buckets)
}

func (kl *KeyedLimiter) cleanupLoop() {
	defer close(kl.done)
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.sweep()
		}
	}
}

// sweep drops every full bucket and returns how many were removed.
func (kl *KeyedLimiter) sweep() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	removed := 0
	for key, b := range kl.buckets {
		if b.IsFull() {
			delete(kl.buckets, key)
			removed++
		}
	}
	return removed
}

// Stop ends the sweep and waits for it to exit. Safe to call more than once.
func (kl *KeyedLimiter) Stop() {
	kl.once.Do(func() { close(kl.stopCh) })
	<-kl.done
}
