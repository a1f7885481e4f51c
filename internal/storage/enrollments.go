package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Enrollment is one submitted enrollment request.
type Enrollment struct {
	Reference   string
	SessionID   string
	ProgramID   int
	ProgramName string
	Status      string
	CreatedAt   time.Time
}

// RecordEnrollment appends an enrollment request to the ledger.
func (db *DB) RecordEnrollment(ctx context.Context, e Enrollment) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = db.now()
	}
	query := `
		INSERT INTO enrollment_requests (reference, session_id, program_id, program_name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	start := time.Now()
	if _, err := db.conn.ExecContext(ctx, query, e.Reference, e.SessionID, e.ProgramID, e.ProgramName, e.Status, createdAt.UnixMilli()); err != nil {
		slog.ErrorContext(ctx, "failed to record enrollment",
			"reference", e.Reference,
			"program_id", e.ProgramID,
			"error", err)
		return fmt.Errorf("failed to record enrollment: %w", err)
	}

	if duration := time.Since(start); duration > 100*time.Millisecond {
		slog.WarnContext(ctx, "slow database operation",
			"operation", "RecordEnrollment",
			"duration_ms", duration.Milliseconds())
	}
	return nil
}

// EnrollmentsBySession returns the session's requests, oldest first.
func (db *DB) EnrollmentsBySession(ctx context.Context, sessionID string) ([]Enrollment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT reference, session_id, program_id, program_name, status, created_at
		FROM enrollment_requests
		WHERE session_id = ?
		ORDER BY created_at, reference
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Enrollment
	for rows.Next() {
		var (
			e         Enrollment
			createdAt int64
		)
		if err := rows.Scan(&e.Reference, &e.SessionID, &e.ProgramID, &e.ProgramName, &e.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEnrollments returns the number of ledger rows with the given status.
// An empty status counts every row.
func (db *DB) CountEnrollments(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM enrollment_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	return n, nil
}
