package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyellow/dr-matricula-go/internal/catalog"
	domerrors "github.com/garyellow/dr-matricula-go/internal/errors"
	"github.com/garyellow/dr-matricula-go/internal/refcache"
)

// Name identifies the store in logs.
func (db *DB) Name() string {
	return "sqlite"
}

// SaveSnapshot replaces the stored catalog snapshot.
func (db *DB) SaveSnapshot(ctx context.Context, snap refcache.Snapshot) error {
	if snap.Catalog == nil {
		return fmt.Errorf("save snapshot: %w", domerrors.ErrInvalidInput)
	}
	payload, err := json.Marshal(snap.Catalog)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	fingerprint := snap.Fingerprint
	if fingerprint == "" {
		fingerprint = snap.Catalog.Fingerprint()
	}

	query := `
		INSERT INTO catalog_snapshot (id, payload, fingerprint, fetched_at, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			fingerprint = excluded.fingerprint,
			fetched_at = excluded.fetched_at,
			saved_at = excluded.saved_at
	`
	if _, err := db.conn.ExecContext(ctx, query, string(payload), fingerprint, snap.FetchedAt.UnixMilli(), db.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot or domerrors.ErrNotFound.
func (db *DB) LoadSnapshot(ctx context.Context) (*refcache.Snapshot, error) {
	var (
		payload     string
		fingerprint string
		fetchedAt   int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT payload, fingerprint, fetched_at FROM catalog_snapshot WHERE id = 1`,
	).Scan(&payload, &fingerprint, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var cat catalog.Catalog
	if err := json.Unmarshal([]byte(payload), &cat); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &refcache.Snapshot{
		Catalog:     &cat,
		FetchedAt:   time.UnixMilli(fetchedAt),
		Fingerprint: fingerprint,
	}, nil
}
