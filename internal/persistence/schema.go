package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		estimated_duration REAL NOT NULL,
		profile INTEGER NOT NULL,
		priority REAL NOT NULL,
		predicted_success_rate REAL NOT NULL,
		status INTEGER NOT NULL,
		retry_count INTEGER NOT NULL,
		max_retries INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS edges (
		prerequisite_id TEXT NOT NULL,
		dependent_id TEXT NOT NULL,
		kind INTEGER NOT NULL,
		confidence REAL NOT NULL,
		reason TEXT,
		PRIMARY KEY (prerequisite_id, dependent_id, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_dependent ON edges(dependent_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		subject TEXT,
		detail TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_kind_timestamp
		ON audit_log(kind, timestamp);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
