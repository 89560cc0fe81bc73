package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/waveplan/waveplan/internal/task"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SaveTask upserts a task. The analyzer metadata slices are not persisted;
// they only matter before graph construction.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, description, estimated_duration, profile, priority,
			predicted_success_rate, status, retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			estimated_duration = excluded.estimated_duration,
			profile = excluded.profile,
			priority = excluded.priority,
			predicted_success_rate = excluded.predicted_success_rate,
			status = excluded.status,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries,
			updated_at = CURRENT_TIMESTAMP
	`, t.ID, t.Description, t.EstimatedDuration, t.Profile, t.Priority,
		t.PredictedSuccessRate, t.Status, t.RetryCount, t.MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

// GetTask returns the task with the given ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, estimated_duration, profile, priority,
			predicted_success_rate, status, retry_count, max_retries
		FROM tasks WHERE id = ?
	`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return t, err
}

// UpdateTaskStatus updates a task's status and retry count.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, id string, status task.Status, retryCount int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, retry_count = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, retryCount, id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return nil
}

// ListTasks returns all tasks ordered by ID.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, estimated_duration, profile, priority,
			predicted_success_rate, status, retry_count, max_retries
		FROM tasks ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.Description, &t.EstimatedDuration, &t.Profile,
		&t.Priority, &t.PredictedSuccessRate, &t.Status, &t.RetryCount, &t.MaxRetries)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ReplaceEdges swaps the stored edge set for the given one in a single
// transaction, preserving the full inference provenance row per kind.
func (s *SQLiteStore) ReplaceEdges(ctx context.Context, edges []task.Edge) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM edges`); err != nil {
		return fmt.Errorf("failed to clear edges: %w", err)
	}
	for _, e := range edges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO edges (prerequisite_id, dependent_id, kind, confidence, reason)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(prerequisite_id, dependent_id, kind) DO UPDATE SET
				confidence = excluded.confidence,
				reason = excluded.reason
		`, e.Prerequisite, e.Dependent, e.Kind, e.Confidence, e.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert edge %s: %w", e, err)
		}
	}
	return tx.Commit()
}

// ListEdges returns all stored edges ordered by endpoints then kind.
func (s *SQLiteStore) ListEdges(ctx context.Context) ([]task.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT prerequisite_id, dependent_id, kind, confidence, reason
		FROM edges ORDER BY prerequisite_id, dependent_id, kind
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	var edges []task.Edge
	for rows.Next() {
		var e task.Edge
		if err := rows.Scan(&e.Prerequisite, &e.Dependent, &e.Kind, &e.Confidence, &e.Reason); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
