package storage

import (
	"context"
	"database/sql"
	"fmt"
)

func initSchema(ctx context.Context, db *sql.DB) error {
	if err := createSnapshotTable(ctx, db); err != nil {
		return err
	}
	return createEnrollmentsTable(ctx, db)
}

// catalog_snapshot holds at most one row (id = 1).
func createSnapshotTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS catalog_snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		saved_at INTEGER NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create catalog_snapshot table: %w", err)
	}
	return nil
}

func createEnrollmentsTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS enrollment_requests (
		reference TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		program_id INTEGER NOT NULL,
		program_name TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_enrollment_requests_session ON enrollment_requests(session_id);
	CREATE INDEX IF NOT EXISTS idx_enrollment_requests_created_at ON enrollment_requests(created_at);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create enrollment_requests table: %w", err)
	}
	return nil
}
