// Package scheduler composes execution waves: ordered sets of ready tasks
// admitted under a resource budget and the current adaptive parameters.
package scheduler

import (
	"time"

	"github.com/waveplan/waveplan/internal/adaptive"
)

// Resources is the budget a wave is admitted against.
type Resources struct {
	CPUCores               int
	MemoryBudgetMB         float64
	EstimatedMemoryPerTask float64 // MB per memory-bound task
}

// DefaultResources returns a conservative single-host budget.
func DefaultResources() Resources {
	return Resources{
		CPUCores:               4,
		MemoryBudgetMB:         8192,
		EstimatedMemoryPerTask: 1024,
	}
}

// Wave is an ordered set of task IDs chosen to run concurrently, annotated
// with the budget and parameter snapshot used to admit them. A wave is
// immutable once emitted.
type Wave struct {
	ID            string
	TaskIDs       []string
	Budget        Resources
	Parameters    adaptive.Parameters
	ForceAdmitted bool // set when the deadlock escape valve admitted the sole task
	CreatedAt     time.Time
}

// Empty reports whether the wave admits no tasks.
func (w Wave) Empty() bool { return len(w.TaskIDs) == 0 }
