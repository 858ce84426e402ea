package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at DATETIME NOT NULL,
    component TEXT NOT NULL,
    action TEXT NOT NULL,
    subject TEXT NOT NULL,
    message TEXT NOT NULL,
    is_error INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_log_subject ON audit_log(subject);
`

// SQLSink appends audit entries to an append-only audit_log table. Entries
// are never updated or deleted by the portal.
type SQLSink struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLSink builds the sink and ensures the audit_log table exists.
func NewSQLSink(db *sql.DB) (*SQLSink, error) {
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("failed to create audit_log table: %w", err)
	}
	return &SQLSink{db: db, now: time.Now}, nil
}

// Record implements Sink.
func (s *SQLSink) Record(ctx context.Context, component, action, subject, message string, isError bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (recorded_at, component, action, subject, message, is_error) VALUES (?, ?, ?, ?, ?, ?)`,
		s.now().UTC(), component, action, subject, message, isError,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// CountBySubject returns the number of entries recorded for a subject and
// action. Used by operational tooling and tests.
func (s *SQLSink) CountBySubject(ctx context.Context, subject, action string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE subject = ? AND action = ?`, subject, action,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return n, nil
}
