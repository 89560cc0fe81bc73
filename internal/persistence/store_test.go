package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/waveplan/waveplan/internal/task"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTaskRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &task.Task{
		ID:                   "build-api",
		Description:          "Build the API",
		EstimatedDuration:    12.5,
		Profile:              task.ProfileIO,
		Priority:             0.8,
		PredictedSuccessRate: 0.9,
		Status:               task.StatusPending,
		MaxRetries:           3,
	}
	if err := s.SaveTask(ctx, in); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	got, err := s.GetTask(ctx, "build-api")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Description != in.Description || got.EstimatedDuration != in.EstimatedDuration ||
		got.Profile != in.Profile || got.Priority != in.Priority ||
		got.PredictedSuccessRate != in.PredictedSuccessRate || got.MaxRetries != in.MaxRetries {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, in)
	}
}

func TestSaveTaskUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveTask(ctx, &task.Task{ID: "t", Description: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTask(ctx, &task.Task{ID: "t", Description: "second", Status: task.StatusRunning}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTask(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "second" || got.Status != task.StatusRunning {
		t.Errorf("upsert did not replace: %+v", got)
	}

	tasks, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Errorf("ListTasks = %d rows, want 1", len(tasks))
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveTask(ctx, &task.Task{ID: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateTaskStatus(ctx, "t", task.StatusFailed, 2); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetTask(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusFailed || got.RetryCount != 2 {
		t.Errorf("task = %+v, want failed with retry count 2", got)
	}

	if err := s.UpdateTaskStatus(ctx, "ghost", task.StatusFailed, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for unknown task", err)
	}
}

func TestListTasksOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if err := s.SaveTask(ctx, &task.Task{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if len(tasks) != len(want) {
		t.Fatalf("ListTasks = %d rows, want %d", len(tasks), len(want))
	}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("tasks[%d].ID = %s, want %s", i, tasks[i].ID, id)
		}
	}
}

func TestReplaceEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []task.Edge{
		{Prerequisite: "a", Dependent: "b", Kind: task.EdgeExplicit, Confidence: 1.0, Reason: "declared"},
		{Prerequisite: "a", Dependent: "b", Kind: task.EdgeSemantic, Confidence: 0.7, Reason: "vocabulary"},
	}
	if err := s.ReplaceEdges(ctx, first); err != nil {
		t.Fatalf("ReplaceEdges: %v", err)
	}
	got, err := s.ListEdges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ListEdges = %d rows, want 2", len(got))
	}
	// One row per kind keeps the provenance distinguishable.
	if got[0].Kind == got[1].Kind {
		t.Errorf("edges share kind: %+v", got)
	}

	second := []task.Edge{
		{Prerequisite: "b", Dependent: "c", Kind: task.EdgeDataFlow, Confidence: 0.9},
	}
	if err := s.ReplaceEdges(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, err = s.ListEdges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Prerequisite != "b" || got[0].Dependent != "c" {
		t.Errorf("edges after replace = %+v, want only b->c", got)
	}
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []AuditEntry{
		{Kind: "retry", Subject: "t1", Detail: "transient error, retrying after backoff"},
		{Kind: "parameters", Detail: "max parallel 4 -> 3"},
		{Kind: "retry", Subject: "t2", Detail: "escalated after exhausted retries"},
	}
	for _, e := range entries {
		if err := s.RecordAudit(ctx, e); err != nil {
			t.Fatalf("RecordAudit: %v", err)
		}
	}

	retries, err := s.ListAudit(ctx, "retry")
	if err != nil {
		t.Fatal(err)
	}
	if len(retries) != 2 || retries[0].Subject != "t1" || retries[1].Subject != "t2" {
		t.Errorf("retry entries = %+v, want t1 then t2", retries)
	}
	if retries[0].Timestamp.IsZero() {
		t.Error("timestamp not assigned by the database")
	}

	all, err := s.ListAudit(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all entries = %d, want 3", len(all))
	}
}

func TestMemoryStore(t *testing.T) {
	s, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.SaveTask(ctx, &task.Task{ID: "mem-task"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTask(ctx, "mem-task"); err != nil {
		t.Errorf("GetTask: %v", err)
	}
}
