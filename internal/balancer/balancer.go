// Package balancer assigns ready tasks to the least-loaded capable worker
// and tracks outstanding load plus per-worker efficiency history.
package balancer

import (
	"errors"
	"sort"
	"sync"

	"github.com/waveplan/waveplan/internal/task"
)

// Score weights for worker selection; lowest combined score wins.
const (
	weightLoad       = 0.4
	weightCapability = 0.3
	weightEfficiency = 0.3
)

// historyLimit bounds the efficiency records kept per worker and task type.
const historyLimit = 1000

// ErrNoCapableWorker is returned when no registered worker can run the task.
var ErrNoCapableWorker = errors.New("no capable worker for task")

// Worker describes an execution slot the engine can dispatch to.
// Capabilities maps a resource profile name to a match quality in [0,1];
// a nil map means the worker handles every profile equally well. A zero
// value for a profile marks the worker incapable of it.
type Worker struct {
	ID           string
	Capabilities map[string]float64
}

// Balancer tracks per-worker load and efficiency history.
type Balancer struct {
	mu       sync.Mutex
	workers  map[string]Worker
	load     map[string]float64              // workerID -> sum of predicted durations
	history  map[string]map[string][]float64 // workerID -> task type -> efficiency records
	breakers *BreakerRegistry
}

// New creates an empty balancer.
func New() *Balancer {
	return &Balancer{
		workers:  make(map[string]Worker),
		load:     make(map[string]float64),
		history:  make(map[string]map[string][]float64),
		breakers: NewBreakerRegistry(),
	}
}

// Register adds or replaces a worker.
func (b *Balancer) Register(w Worker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workers[w.ID] = w
	if _, ok := b.load[w.ID]; !ok {
		b.load[w.ID] = 0
	}
}

// Workers returns the registered worker IDs, sorted.
func (b *Balancer) Workers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.workers))
	for id := range b.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Assign picks the worker with the lowest combined score of current load,
// capability mismatch, and historical inefficiency. Ties break by worker
// ID. Workers with an open circuit breaker are skipped unless every
// capable worker is open. The chosen worker's load is charged with the
// task's predicted duration.
func (b *Balancer) Assign(t *task.Task) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capable := b.capableWorkers(t)
	if len(capable) == 0 {
		return "", ErrNoCapableWorker
	}

	candidates := make([]string, 0, len(capable))
	for _, id := range capable {
		if b.breakers.Available(id) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		// Every breaker is open; something still has to run.
		candidates = capable
	}

	best := ""
	bestScore := 0.0
	for _, id := range candidates {
		s := b.scoreLocked(id, t)
		if best == "" || s < bestScore || (s == bestScore && id < best) {
			best = id
			bestScore = s
		}
	}

	b.load[best] += t.EstimatedDuration
	return best, nil
}

// TaskCompleted releases the predicted load (floored at zero) and appends
// an efficiency record of predicted over actual duration, trimmed to the
// most recent 1000 entries. The worker's breaker records the outcome.
func (b *Balancer) TaskCompleted(workerID string, t *task.Task, actualDuration float64, success bool) {
	b.mu.Lock()
	b.load[workerID] -= t.EstimatedDuration
	if b.load[workerID] < 0 {
		b.load[workerID] = 0
	}

	efficiency := 0.0
	if actualDuration > 0 {
		efficiency = t.EstimatedDuration / actualDuration
	}
	taskType := t.Profile.String()
	if b.history[workerID] == nil {
		b.history[workerID] = make(map[string][]float64)
	}
	records := append(b.history[workerID][taskType], efficiency)
	if len(records) > historyLimit {
		records = records[len(records)-historyLimit:]
	}
	b.history[workerID][taskType] = records
	b.mu.Unlock()

	b.breakers.Record(workerID, success)
}

// Load returns the outstanding predicted load for a worker.
func (b *Balancer) Load(workerID string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load[workerID]
}

// capableWorkers returns sorted IDs of workers able to run the task.
// Caller must hold b.mu.
func (b *Balancer) capableWorkers(t *task.Task) []string {
	var ids []string
	for id, w := range b.workers {
		if capabilityMatch(w, t) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// scoreLocked computes the assignment score; lower is better.
// Caller must hold b.mu.
func (b *Balancer) scoreLocked(workerID string, t *task.Task) float64 {
	w := b.workers[workerID]
	return weightLoad*b.load[workerID] +
		weightCapability*(1-capabilityMatch(w, t)) +
		weightEfficiency*(1-b.efficiencyLocked(workerID, t.Profile.String()))
}

// efficiencyLocked averages the worker's efficiency records for the task
// type, clamped to [0,1] for scoring. A worker with no history scores a
// neutral 1 so unknown workers are not penalized.
func (b *Balancer) efficiencyLocked(workerID, taskType string) float64 {
	records := b.history[workerID][taskType]
	if len(records) == 0 {
		return 1
	}
	sum := 0.0
	for _, r := range records {
		sum += r
	}
	mean := sum / float64(len(records))
	if mean > 1 {
		return 1
	}
	if mean < 0 {
		return 0
	}
	return mean
}

func capabilityMatch(w Worker, t *task.Task) float64 {
	if w.Capabilities == nil {
		return 1
	}
	return w.Capabilities[t.Profile.String()]
}
