package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/waveplan/waveplan/internal/balancer"
	"github.com/waveplan/waveplan/internal/scheduler"
	"github.com/waveplan/waveplan/internal/task"
	"github.com/waveplan/waveplan/internal/worker"
)

// idlePoll is how long Run waits before re-polling when no wave can be
// emitted yet (tasks running or retry backoff pending).
const idlePoll = 10 * time.Millisecond

// Run drives the full loop against the given workers until every task is
// resolved or no further progress is possible: pull a wave, assign each
// task to a worker, execute concurrently, feed outcomes back, repeat.
// Workers are registered with the load balancer if they aren't already.
func (e *Engine) Run(ctx context.Context, workers []worker.Worker) error {
	if len(workers) == 0 {
		return fmt.Errorf("no workers provided")
	}
	byID := make(map[string]worker.Worker, len(workers))
	for _, w := range workers {
		byID[w.ID()] = w
		e.balancer.Register(balancer.Worker{ID: w.ID()})
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wave, err := e.NextWave()
		if errors.Is(err, scheduler.ErrInvariantViolation) {
			// Internal defect: abort without emitting a wave. Re-running is safe.
			return err
		}
		if err != nil {
			return err
		}

		if wave.Empty() {
			if e.done() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idlePoll):
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(wave.Parameters.MaxParallelTasks)
		for _, id := range wave.TaskIDs {
			taskID := id
			t, ok := e.graphTask(taskID)
			if !ok {
				continue
			}
			workerID, err := e.Assign(t)
			if err != nil {
				log.Printf("engine: assigning %s: %v", taskID, err)
				e.ReportFailure(taskID, "", 0, "resource-exhaustion")
				continue
			}
			w := byID[workerID]
			e.ReportDispatched(taskID, workerID)

			g.Go(func() error {
				res, err := w.Execute(gctx, taskID)
				switch {
				case err != nil && res.FailureCategory != "":
					e.ReportFailure(taskID, workerID, res.DurationSeconds, res.FailureCategory)
				case err != nil:
					e.ReportFailure(taskID, workerID, res.DurationSeconds, "unknown")
				case res.Success:
					e.ReportCompletion(taskID, workerID, res.DurationSeconds)
				default:
					e.ReportFailure(taskID, workerID, res.DurationSeconds, res.FailureCategory)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// done reports whether no further progress is possible: nothing ready,
// nothing running, and no retry backoff outstanding.
func (e *Engine) done() bool {
	finished := false
	_ = e.call(func() {
		if e.graph == nil {
			finished = true
			return
		}
		counts := e.graph.StatusCounts()
		if counts[task.StatusRunning] > 0 || counts[task.StatusReady] > 0 {
			return
		}
		if e.pendingRetries() || len(e.graph.ReadyTasks()) > 0 {
			return
		}
		finished = true
	})
	return finished
}

// graphTask fetches a task snapshot through the coordinator.
func (e *Engine) graphTask(id string) (*task.Task, bool) {
	var t *task.Task
	var ok bool
	_ = e.call(func() {
		if e.graph != nil {
			t, ok = e.graph.Get(id)
		}
	})
	return t, ok
}
