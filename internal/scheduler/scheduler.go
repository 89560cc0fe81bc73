package scheduler

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/waveplan/waveplan/internal/adaptive"
	"github.com/waveplan/waveplan/internal/graph"
	"github.com/waveplan/waveplan/internal/task"
)

// ErrInvariantViolation reports an internal scheduling defect: no task can
// be admitted even though unfinished tasks remain and nothing is running or
// awaiting retry. The cycle is aborted without emitting a wave; retrying
// the whole cycle is safe.
var ErrInvariantViolation = errors.New("scheduling invariant violation: unfinished tasks but nothing admissible")

// Score weights for ranking ready tasks.
const (
	weightPriority    = 0.3
	weightDuration    = 0.2
	weightSuccessRate = 0.2
	weightCritical    = 0.3
)

// NextWave computes the next execution wave. Ready tasks are ranked by a
// weighted score and greedily admitted while the per-profile resource
// budgets, the batch size, and the parallelism cap (less any already
// running tasks) all hold. If budgets would admit nothing despite a
// non-empty ready set, exactly one task is force-admitted to guarantee
// forward progress.
func NextWave(g *graph.Graph, res Resources, params adaptive.Parameters) (Wave, error) {
	wave := Wave{
		ID:         uuid.NewString(),
		Budget:     res,
		Parameters: params,
		CreatedAt:  time.Now(),
	}

	ready := g.ReadyTasks()
	counts := g.StatusCounts()
	if len(ready) == 0 {
		if g.Remaining() > 0 && counts[task.StatusRunning] == 0 && counts[task.StatusFailed] == 0 {
			return Wave{}, ErrInvariantViolation
		}
		return wave, nil
	}

	ranked := rankReady(g, ready)

	// Parallelism allowance accounts for tasks already in flight.
	allowance := params.MaxParallelTasks - counts[task.StatusRunning]
	if allowance > params.BatchSize {
		allowance = params.BatchSize
	}
	if allowance <= 0 {
		return wave, nil
	}

	budget := newBudget(res, params)
	for _, t := range ranked {
		if len(wave.TaskIDs) >= allowance {
			break
		}
		if budget.admit(t) {
			wave.TaskIDs = append(wave.TaskIDs, t.ID)
		}
	}

	// Escape valve: budgets exhausted before admitting anything.
	if len(wave.TaskIDs) == 0 {
		wave.TaskIDs = []string{lightestFootprint(ranked).ID}
		wave.ForceAdmitted = true
	}
	return wave, nil
}

// rankReady orders ready tasks by descending score, ties broken by
// lexicographic ID so equal scores never depend on map iteration order.
func rankReady(g *graph.Graph, ready []*task.Task) []*task.Task {
	remaining := graph.RemainingPath(g)
	score := func(t *task.Task) float64 {
		dur := t.EstimatedDuration
		if dur < 1 {
			dur = 1
		}
		return weightPriority*t.Priority +
			weightDuration*(1/dur) +
			weightSuccessRate*t.PredictedSuccessRate +
			weightCritical*remaining[t.ID]
	}

	ranked := make([]*task.Task, len(ready))
	copy(ranked, ready)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// budget tracks per-profile admission headroom for one wave.
type budget struct {
	cpuFree int
	ioFree  int
	memFree int
}

func newBudget(res Resources, params adaptive.Parameters) *budget {
	b := &budget{
		cpuFree: res.CPUCores,
		ioFree:  int(float64(res.CPUCores) * params.ResourceOversubscriptionFactor),
	}
	if res.EstimatedMemoryPerTask > 0 {
		b.memFree = int(res.MemoryBudgetMB / res.EstimatedMemoryPerTask)
	} else {
		b.memFree = res.CPUCores
	}
	return b
}

// admit consumes headroom for the task's profile. Mixed tasks draw from
// whichever budget has headroom: CPU first, then I/O, then memory.
func (b *budget) admit(t *task.Task) bool {
	switch t.Profile {
	case task.ProfileCPU:
		if b.cpuFree > 0 {
			b.cpuFree--
			return true
		}
	case task.ProfileIO:
		if b.ioFree > 0 {
			b.ioFree--
			return true
		}
	case task.ProfileMemory:
		if b.memFree > 0 {
			b.memFree--
			return true
		}
	case task.ProfileMixed:
		switch {
		case b.cpuFree > 0:
			b.cpuFree--
			return true
		case b.ioFree > 0:
			b.ioFree--
			return true
		case b.memFree > 0:
			b.memFree--
			return true
		}
	}
	return false
}

// lightestFootprint picks the force-admission candidate: I/O-bound tasks
// are cheapest (they yield the core), then mixed, CPU, and memory last;
// ties are broken by shorter estimated duration, then ID.
func lightestFootprint(ranked []*task.Task) *task.Task {
	rank := func(p task.ResourceProfile) int {
		switch p {
		case task.ProfileIO:
			return 0
		case task.ProfileMixed:
			return 1
		case task.ProfileCPU:
			return 2
		default: // memory
			return 3
		}
	}
	best := ranked[0]
	for _, t := range ranked[1:] {
		switch {
		case rank(t.Profile) < rank(best.Profile):
			best = t
		case rank(t.Profile) == rank(best.Profile) && t.EstimatedDuration < best.EstimatedDuration:
			best = t
		case rank(t.Profile) == rank(best.Profile) && t.EstimatedDuration == best.EstimatedDuration && t.ID < best.ID:
			best = t
		}
	}
	return best
}
