// Package refcache holds the program catalog in memory with a fixed expiry.
//
// Reads are lock-free: the current snapshot lives behind an atomic pointer
// and is swapped wholesale on refresh. Concurrent callers that find the
// snapshot expired share a single backend fetch. When a refresh fails the
// previous snapshot keeps being served; callers only see
// domerrors.ErrDataUnavailable when no snapshot was ever obtained, neither
// from the backend nor from a SnapshotStore.
package refcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/garyellow/dr-matricula-go/internal/catalog"
	domerrors "github.com/garyellow/dr-matricula-go/internal/errors"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
)

const (
	DefaultTTL          = 300 * time.Second
	DefaultRetryBackoff = 30 * time.Second
	DefaultFetchTimeout = 20 * time.Second

	flightKey = "catalog"
)

// Fetcher loads the catalog from the source of truth.
type Fetcher interface {
	FetchCatalog(ctx context.Context) (*catalog.Catalog, error)
}

// Snapshot is a persisted copy of the catalog.
type Snapshot struct {
	Catalog     *catalog.Catalog
	FetchedAt   time.Time
	Fingerprint string
}

// SnapshotStore persists the last known good catalog.
// LoadSnapshot returns domerrors.ErrNotFound when nothing was saved yet.
type SnapshotStore interface {
	Name() string
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// Options configures a Cache.
type Options struct {
	TTL          time.Duration
	RetryBackoff time.Duration // refresh attempts suppressed after a failure while stale data exists
	FetchTimeout time.Duration
	Stores       []SnapshotStore
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Now          func() time.Time
}

type entry struct {
	catalog     *catalog.Catalog
	fetchedAt   time.Time
	fingerprint string
	restored    bool
}

// Cache is the process-wide catalog cache. It is safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	opts    Options
	log     *slog.Logger

	current  atomic.Pointer[entry]
	failedAt atomic.Int64 // unix nanos of the last failed refresh, 0 if none
	group    singleflight.Group
}

// New creates a cache over fetcher. Zero option values take defaults.
func New(fetcher Fetcher, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Cache{fetcher: fetcher, opts: opts, log: log.With("module", "refcache")}
}

// Get returns the current catalog, refreshing it first when it has expired.
// Two calls within the TTL return the same *catalog.Catalog.
// The returned value must be treated as read-only.
func (c *Cache) Get(ctx context.Context) (*catalog.Catalog, error) {
	now := c.opts.Now()
	if e := c.current.Load(); e != nil {
		if c.fresh(e, now) {
			c.opts.Metrics.RecordCatalogEvent("hit")
			return e.catalog, nil
		}
		if c.backingOff(now) {
			c.opts.Metrics.RecordCatalogEvent("stale")
			return e.catalog, nil
		}
	}
	return c.load(ctx, false)
}

// Refresh fetches the catalog regardless of expiry. Failures keep the
// previous snapshot and are returned to the caller.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err := c.load(ctx, true)
	return err
}

func (c *Cache) load(ctx context.Context, force bool) (*catalog.Catalog, error) {
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.refresh(ctx, force)
	})
	select {
	case res := <-ch:
		if res.Shared {
			c.opts.Metrics.RecordSingleflightDedup(flightKey)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalog.Catalog), nil
	case <-ctx.Done():
		// The shared fetch keeps running for the other waiters.
		if e := c.current.Load(); e != nil {
			return e.catalog, nil
		}
		return nil, fmt.Errorf("%w: %w", domerrors.ErrDataUnavailable, ctx.Err())
	}
}

func (c *Cache) fresh(e *entry, now time.Time) bool {
	return !e.restored && now.Sub(e.fetchedAt) < c.opts.TTL
}

func (c *Cache) backingOff(now time.Time) bool {
	last := c.failedAt.Load()
	return last != 0 && now.Sub(time.Unix(0, last)) < c.opts.RetryBackoff
}

// refresh runs inside the singleflight group, so at most one fetch is in
// flight. It re-checks freshness because a concurrent flight may have just
// completed between the caller's check and joining the group.
func (c *Cache) refresh(ctx context.Context, force bool) (*catalog.Catalog, error) {
	prev := c.current.Load()
	if !force && prev != nil && c.fresh(prev, c.opts.Now()) {
		return prev.catalog, nil
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
	defer cancel()

	cat, err := c.fetcher.FetchCatalog(fetchCtx)
	if err == nil && cat == nil {
		err = errors.New("fetcher returned nil catalog")
	}
	if err != nil {
		return c.onFailure(fetchCtx, prev, err)
	}

	next := &entry{catalog: cat, fetchedAt: c.opts.Now(), fingerprint: cat.Fingerprint()}
	c.current.Store(next)
	c.failedAt.Store(0)
	c.opts.Metrics.RecordCatalogEvent("refresh")
	c.log.DebugContext(ctx, "Catalog refreshed",
		"programs", cat.Len(),
		"fingerprint", next.fingerprint)

	if prev == nil || prev.fingerprint != next.fingerprint {
		c.persist(fetchCtx, next)
	}
	return cat, nil
}

func (c *Cache) onFailure(ctx context.Context, prev *entry, cause error) (*catalog.Catalog, error) {
	c.failedAt.Store(c.opts.Now().UnixNano())
	c.opts.Metrics.RecordCatalogEvent("refresh_error")

	if prev != nil {
		c.log.WarnContext(ctx, "Catalog refresh failed, serving previous snapshot",
			"error", cause,
			"age", c.opts.Now().Sub(prev.fetchedAt).Round(time.Second).String())
		c.opts.Metrics.RecordCatalogEvent("stale")
		return prev.catalog, nil
	}

	if restored := c.restore(ctx); restored != nil {
		c.log.WarnContext(ctx, "Catalog fetch failed, serving stored snapshot",
			"error", cause,
			"fetched_at", restored.fetchedAt)
		return restored.catalog, nil
	}

	c.opts.Metrics.RecordCatalogEvent("unavailable")
	c.log.ErrorContext(ctx, "Catalog unavailable", "error", cause)
	return nil, fmt.Errorf("%w: %w", domerrors.ErrDataUnavailable, cause)
}

// restore installs the first snapshot found in the configured stores.
// Restored entries never count as fresh, so the next call retries the backend
// once the retry backoff has passed.
func (c *Cache) restore(ctx context.Context) *entry {
	for _, store := range c.opts.Stores {
		snap, err := store.LoadSnapshot(ctx)
		if err != nil {
			if !errors.Is(err, domerrors.ErrNotFound) {
				c.log.WarnContext(ctx, "Snapshot load failed", "store", store.Name(), "error", err)
			}
			continue
		}
		if snap == nil || snap.Catalog == nil || snap.Catalog.Validate() != nil {
			continue
		}
		e := &entry{
			catalog:     snap.Catalog,
			fetchedAt:   snap.FetchedAt,
			fingerprint: snap.Fingerprint,
			restored:    true,
		}
		if e.fingerprint == "" {
			e.fingerprint = snap.Catalog.Fingerprint()
		}
		if c.current.CompareAndSwap(nil, e) {
			c.opts.Metrics.RecordCatalogEvent("restored")
			return e
		}
		return c.current.Load()
	}
	return nil
}

func (c *Cache) persist(ctx context.Context, e *entry) {
	snap := Snapshot{Catalog: e.catalog, FetchedAt: e.fetchedAt, Fingerprint: e.fingerprint}
	for _, store := range c.opts.Stores {
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			c.log.WarnContext(ctx, "Snapshot save failed", "store", store.Name(), "error", err)
		}
	}
}

// Status describes the cached snapshot for readiness checks and gauges.
type Status struct {
	Loaded    bool
	FetchedAt time.Time
	Age       time.Duration
	Stale     bool
	Restored  bool
	Programs  int
}

// Status reports the current snapshot without triggering a refresh.
func (c *Cache) Status() Status {
	e := c.current.Load()
	if e == nil {
		return Status{}
	}
	now := c.opts.Now()
	return Status{
		Loaded:    true,
		FetchedAt: e.fetchedAt,
		Age:       now.Sub(e.fetchedAt),
		Stale:     !c.fresh(e, now),
		Restored:  e.restored,
		Programs:  e.catalog.Len(),
	}
}

// UpdateGauges publishes snapshot age and size.
func (c *Cache) UpdateGauges() {
	e := c.current.Load()
	if e == nil {
		return
	}
	c.opts.Metrics.SetCatalogState(c.opts.Now().Sub(e.fetchedAt).Seconds(), len(e.catalog.Undergraduate), len(e.catalog.Graduate))
}
