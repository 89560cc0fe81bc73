package persistence

import (
	"context"
	"fmt"
)

// RecordAudit appends an entry to the audit log. The entry timestamp is
// assigned by the database.
func (s *SQLiteStore) RecordAudit(ctx context.Context, entry AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (kind, subject, detail) VALUES (?, ?, ?)
	`, entry.Kind, entry.Subject, entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// ListAudit returns entries of the given kind in chronological order.
// An empty kind returns everything.
func (s *SQLiteStore) ListAudit(ctx context.Context, kind string) ([]AuditEntry, error) {
	query := `SELECT kind, subject, detail, timestamp FROM audit_log`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.Kind, &e.Subject, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
