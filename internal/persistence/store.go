// Package persistence stores scheduling state in SQLite: tasks, resolved
// dependency edges with their inference provenance, and an append-only
// audit log of classifier decisions and parameter mutations. The engine is
// fully functional in memory; the store is an optional sink.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/waveplan/waveplan/internal/task"
	_ "modernc.org/sqlite"
)

// AuditEntry is one logged decision or mutation.
type AuditEntry struct {
	Kind      string // "parameters", "retry", "bottleneck", "cycle"
	Subject   string // task ID, worker ID, or "" for global
	Detail    string
	Timestamp time.Time
}

// Store defines the persistence interface.
type Store interface {
	SaveTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status task.Status, retryCount int) error
	ListTasks(ctx context.Context) ([]*task.Task, error)

	ReplaceEdges(ctx context.Context, edges []task.Edge) error
	ListEdges(ctx context.Context) ([]task.Edge, error)

	RecordAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, kind string) ([]AuditEntry, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store at the given path. Parent
// directories are created; WAL mode and a busy timeout are enabled.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing. A shared cache
// lets multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return open(ctx, "file::memory:?mode=memory&cache=shared")
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite needs foreign keys enabled via PRAGMA.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
