package worker

import (
	"context"
	"sync"
	"time"
)

// SimOutcome scripts one execution result for a SimWorker.
type SimOutcome struct {
	Success         bool
	DurationSeconds float64
	FailureCategory string
}

// SimWorker is an in-process worker for tests and demos. Outcomes can be
// scripted per task; unscripted tasks succeed with the configured default
// duration. Execution optionally sleeps a scaled-down fraction of the
// reported duration so concurrent dispatch paths are exercised.
type SimWorker struct {
	id              string
	mu              sync.Mutex
	outcomes        map[string][]SimOutcome // consumed front-to-back per task
	DefaultDuration float64
	SleepScale      time.Duration // sleep per reported second, 0 to disable
	executed        []string
}

// NewSimWorker creates a simulated worker.
func NewSimWorker(id string) *SimWorker {
	return &SimWorker{
		id:              id,
		outcomes:        make(map[string][]SimOutcome),
		DefaultDuration: 1,
	}
}

// ID implements Worker.
func (w *SimWorker) ID() string { return w.id }

// Script queues outcomes for a task; each execution consumes one.
func (w *SimWorker) Script(taskID string, outcomes ...SimOutcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes[taskID] = append(w.outcomes[taskID], outcomes...)
}

// Executed returns the task IDs this worker ran, in order.
func (w *SimWorker) Executed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.executed...)
}

// Execute implements Worker.
func (w *SimWorker) Execute(ctx context.Context, taskID string) (Result, error) {
	w.mu.Lock()
	w.executed = append(w.executed, taskID)
	out := SimOutcome{Success: true, DurationSeconds: w.DefaultDuration}
	if queued := w.outcomes[taskID]; len(queued) > 0 {
		out = queued[0]
		w.outcomes[taskID] = queued[1:]
	}
	sleep := time.Duration(out.DurationSeconds * float64(w.SleepScale))
	w.mu.Unlock()

	if sleep > 0 {
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return Result{FailureCategory: "cancelled"}, ctx.Err()
		}
	}

	return Result{
		Success:         out.Success,
		DurationSeconds: out.DurationSeconds,
		FailureCategory: out.FailureCategory,
	}, nil
}
