// Package graph merges inferred dependency edges into a single directed
// graph, resolves cycles, and answers the topological queries the scheduler
// needs. After resolution the subgraph of edges at or above the confidence
// threshold is guaranteed acyclic.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"

	"github.com/waveplan/waveplan/internal/task"
)

// MergedEdge is the single edge kept for a (prerequisite, dependent) pair
// after merging: the maximum confidence across contributing kinds, with the
// full provenance retained for diagnostics.
type MergedEdge struct {
	Prerequisite string
	Dependent    string
	Kind         task.EdgeKind // kind of the highest-confidence contributor
	Confidence   float64
	Provenance   []task.Edge
}

// StructuralCycle describes an unbreakable cycle of explicit edges. The
// participating tasks are marked skipped; the rest of the graph proceeds.
type StructuralCycle struct {
	TaskIDs []string
	Reason  string
}

// Resolution is the outcome of building or re-thresholding a graph. Callers
// must inspect Fatal explicitly: those tasks were skipped, not scheduled.
type Resolution struct {
	Graph   *Graph
	Removed []MergedEdge      // edges dropped to break cycles
	Fatal   []StructuralCycle // explicit-only cycles, tasks marked skipped
}

// Graph owns the task set and the resolved edge set. All mutation goes
// through Graph methods; accessors return defensive clones.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*task.Task
	merged     []MergedEdge        // all merged edges, any confidence
	active     []MergedEdge        // confidence >= threshold, post-resolution
	dependents map[string][]string // prerequisite -> dependents over active edges
	prereqs    map[string][]string // dependent -> prerequisites over active edges
	threshold  float64
}

// Build merges edges, filters by confidence threshold, resolves cycles, and
// returns the resolution. Edges referencing unknown tasks and malformed
// input are rejected with a ValidationError before any graph state exists.
func Build(tasks []*task.Task, edges []task.Edge, confidenceThreshold float64) (Resolution, error) {
	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		if err := task.Validate(t); err != nil {
			return Resolution{}, err
		}
		if _, dup := byID[t.ID]; dup {
			return Resolution{}, &task.ValidationError{Subject: t.ID, Reason: "duplicate task id"}
		}
		byID[t.ID] = t.Clone()
	}
	for _, e := range edges {
		if err := task.ValidateEdge(e); err != nil {
			return Resolution{}, err
		}
		if _, ok := byID[e.Prerequisite]; !ok {
			return Resolution{}, &task.ValidationError{Subject: e.Prerequisite, Reason: fmt.Sprintf("edge %s references unknown prerequisite", e)}
		}
		if _, ok := byID[e.Dependent]; !ok {
			return Resolution{}, &task.ValidationError{Subject: e.Dependent, Reason: fmt.Sprintf("edge %s references unknown dependent", e)}
		}
	}

	g := &Graph{
		tasks:     byID,
		merged:    mergeEdges(edges),
		threshold: confidenceThreshold,
	}
	res := g.resolve()
	return res, nil
}

// mergeEdges collapses duplicate (prerequisite, dependent) pairs, keeping the
// maximum confidence and recording every contributing edge as provenance.
func mergeEdges(edges []task.Edge) []MergedEdge {
	type pair struct{ pre, dep string }
	byPair := make(map[pair]*MergedEdge)
	var order []pair
	for _, e := range edges {
		k := pair{e.Prerequisite, e.Dependent}
		m, ok := byPair[k]
		if !ok {
			byPair[k] = &MergedEdge{
				Prerequisite: e.Prerequisite,
				Dependent:    e.Dependent,
				Kind:         e.Kind,
				Confidence:   e.Confidence,
				Provenance:   []task.Edge{e},
			}
			order = append(order, k)
			continue
		}
		m.Provenance = append(m.Provenance, e)
		if e.Confidence > m.Confidence ||
			(e.Confidence == m.Confidence && e.Kind.RemovalRank() > m.Kind.RemovalRank()) {
			m.Confidence = e.Confidence
			m.Kind = e.Kind
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].pre != order[j].pre {
			return order[i].pre < order[j].pre
		}
		return order[i].dep < order[j].dep
	})
	merged := make([]MergedEdge, 0, len(order))
	for _, k := range order {
		merged = append(merged, *byPair[k])
	}
	return merged
}

// Rethreshold re-runs cycle resolution against a new confidence threshold,
// preserving task statuses. Lowering the threshold can re-admit previously
// filtered edges and therefore re-introduce cycles, so resolution starts
// over from the full merged edge set.
func (g *Graph) Rethreshold(confidenceThreshold float64) Resolution {
	g.mu.Lock()
	g.threshold = confidenceThreshold
	g.mu.Unlock()
	return g.resolve()
}

// ConfidenceThreshold returns the threshold the active edge set was
// resolved against.
func (g *Graph) ConfidenceThreshold() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}

// rebuildAdjacency recomputes the dependent/prerequisite maps from active.
// Caller must hold g.mu.
func (g *Graph) rebuildAdjacency() {
	g.dependents = make(map[string][]string)
	g.prereqs = make(map[string][]string)
	for _, e := range g.active {
		g.dependents[e.Prerequisite] = append(g.dependents[e.Prerequisite], e.Dependent)
		g.prereqs[e.Dependent] = append(g.prereqs[e.Dependent], e.Prerequisite)
	}
}

// ReadyTasks returns pending tasks whose prerequisites over active edges are
// all resolved (completed or skipped), sorted by ID for determinism.
func (g *Graph) ReadyTasks() []*task.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*task.Task
	for _, t := range g.tasks {
		if t.Status != task.StatusPending {
			continue
		}
		satisfied := true
		for _, preID := range g.prereqs[t.ID] {
			pre := g.tasks[preID]
			if pre == nil || !pre.Status.Terminal() {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, t.Clone())
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// DependentsOf returns the IDs of tasks directly depending on the given
// task over active edges, sorted.
func (g *Graph) DependentsOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	deps := append([]string(nil), g.dependents[id]...)
	sort.Strings(deps)
	return deps
}

// PrerequisitesOf returns the IDs of direct prerequisites over active
// edges, sorted.
func (g *Graph) PrerequisitesOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	pres := append([]string(nil), g.prereqs[id]...)
	sort.Strings(pres)
	return pres
}

// IsAcyclic reports whether the active edge set is acyclic.
// Always true after a successful resolution.
func (g *Graph) IsAcyclic() bool {
	_, err := g.Order()
	return err == nil
}

// Order returns a topological ordering of all task IDs over active edges.
func (g *Graph) Order() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []toposort.Edge
	hasEdge := make(map[string]bool)
	for _, e := range g.active {
		edges = append(edges, toposort.Edge{e.Prerequisite, e.Dependent})
		hasEdge[e.Prerequisite] = true
		hasEdge[e.Dependent] = true
	}
	for id := range g.tasks {
		if !hasEdge[id] {
			edges = append(edges, toposort.Edge{nil, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("graph contains cycle: %w", err)
	}
	order := make([]string, 0, len(g.tasks))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// ActiveEdges returns the post-resolution edge set.
func (g *Graph) ActiveEdges() []MergedEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]MergedEdge(nil), g.active...)
}

// Get returns a clone of the task with the given ID.
func (g *Graph) Get(id string) (*task.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns clones of all tasks, sorted by ID.
func (g *Graph) Tasks() []*task.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*task.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus transitions a task to the given status.
func (g *Graph) SetStatus(id string, s task.Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	t.Status = s
	return nil
}

// IncrementRetry marks a failed task pending again and bumps its retry
// counter, returning the new count.
func (g *Graph) IncrementRetry(id string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return 0, fmt.Errorf("task %q not found", id)
	}
	t.RetryCount++
	t.Status = task.StatusPending
	return t.RetryCount, nil
}

// Remaining reports how many tasks are not yet in a terminal state.
func (g *Graph) Remaining() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, t := range g.tasks {
		if !t.Status.Terminal() {
			n++
		}
	}
	return n
}

// StatusCounts returns the number of tasks per status.
func (g *Graph) StatusCounts() map[task.Status]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	counts := make(map[task.Status]int)
	for _, t := range g.tasks {
		counts[t.Status]++
	}
	return counts
}
