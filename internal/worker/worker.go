// Package worker defines the boundary to the external execution layer. The
// engine decides what runs when; a Worker performs the actual work and
// reports back success, duration, and a failure category.
package worker

import (
	"context"
)

// Result is what a worker reports after executing a task.
type Result struct {
	Success         bool
	DurationSeconds float64
	FailureCategory string // "", or one of the retry classifier's categories
}

// Worker executes task payloads. Implementations live outside the engine
// (command runners, agent processes); the engine only sees this interface.
type Worker interface {
	// Execute runs the task with the given ID and returns its outcome.
	Execute(ctx context.Context, taskID string) (Result, error)

	// ID returns the stable worker identifier used by the load balancer.
	ID() string
}
