package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/dr-matricula-go/internal/config"
)

// startBackgroundJobs starts all background goroutines tracked by the WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		a.startupChecks(ctx)
		a.refreshAhead(ctx)
	})
	a.wg.Go(func() {
		a.updateGauges(ctx)
	})
}

// startupChecks probes the backend and primes the catalog. Failures are
// logged only; readiness stays false until a snapshot is loaded.
func (a *Application) startupChecks(ctx context.Context) {
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, config.StartupProbeTimeout)
	if err := a.backend.Health(probeCtx); err != nil {
		a.logger.WithError(err).Warn("Backend health probe failed; continuing")
	}
	cancel()

	warmCtx, cancel := context.WithTimeout(ctx, config.WarmupTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(warmCtx)
	g.Go(func() error {
		if _, err := a.cache.Get(gctx); err != nil {
			return fmt.Errorf("catalog prime: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.db.Ping(gctx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.WithError(err).Warn("Warmup incomplete")
		return
	}

	st := a.cache.Status()
	a.logger.WithField("programs", st.Programs).
		WithField("restored", st.Restored).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Warmup completed")
}

// refreshAhead reloads the catalog before it expires so requests rarely pay
// for a backend round trip. A zero interval disables it.
func (a *Application) refreshAhead(ctx context.Context) {
	interval := a.cfg.CatalogRefreshInterval
	if interval <= 0 {
		return
	}
	a.logger.WithField("interval", interval.String()).Debug("Catalog refresh job started")
	defer a.logger.Debug("Catalog refresh job stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.cache.Refresh(ctx); err != nil && ctx.Err() == nil {
				a.logger.WithError(err).Warn("Catalog refresh failed; serving previous snapshot")
			}
		}
	}
}

// updateGauges periodically publishes catalog and session gauges.
func (a *Application) updateGauges(ctx context.Context) {
	a.logger.Debug("Gauge job started")
	defer a.logger.Debug("Gauge job stopped")

	ticker := time.NewTicker(config.GaugeUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recordGauges()
		}
	}
}

func (a *Application) recordGauges() {
	a.cache.UpdateGauges()
	a.metrics.SetSessionsActive(a.sessionCount())
}
