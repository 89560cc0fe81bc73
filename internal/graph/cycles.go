package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/waveplan/waveplan/internal/task"
)

// resolve filters merged edges by the confidence threshold and breaks cycles
// via strongly-connected-component analysis. Within each cycle the
// lowest-confidence edge is removed, ties broken by kind (semantic first,
// explicit never). A cycle of only explicit edges cannot be broken: its
// tasks are marked skipped and reported as fatal while the rest of the
// graph proceeds.
func (g *Graph) resolve() Resolution {
	g.mu.Lock()
	defer g.mu.Unlock()

	active := make([]MergedEdge, 0, len(g.merged))
	for _, e := range g.merged {
		if e.Confidence >= g.threshold {
			active = append(active, e)
		}
	}

	var removed []MergedEdge
	var fatal []StructuralCycle

	for {
		scc := stronglyConnected(g.taskIDs(), active)
		cyclic := cyclicComponents(scc)
		if len(cyclic) == 0 {
			break
		}

		for _, component := range cyclic {
			inCycle := make(map[string]bool, len(component))
			for _, id := range component {
				inCycle[id] = true
			}

			// Candidate edges are internal to the cycle and not explicit.
			candidate := -1
			for i, e := range active {
				if !inCycle[e.Prerequisite] || !inCycle[e.Dependent] {
					continue
				}
				if e.Kind == task.EdgeExplicit {
					continue
				}
				if candidate == -1 || lessRemovable(active[i], active[candidate]) {
					candidate = i
				}
			}

			if candidate == -1 {
				// Explicit-only cycle: structural error for these tasks.
				sort.Strings(component)
				fatal = append(fatal, StructuralCycle{
					TaskIDs: component,
					Reason:  fmt.Sprintf("unbreakable cycle of explicit dependencies: %s", strings.Join(component, " -> ")),
				})
				for _, id := range component {
					if t := g.tasks[id]; t != nil {
						t.Status = task.StatusSkipped
					}
				}
				// Drop the cycle's internal edges so resolution terminates.
				kept := active[:0]
				for _, e := range active {
					if inCycle[e.Prerequisite] && inCycle[e.Dependent] {
						continue
					}
					kept = append(kept, e)
				}
				active = kept
				continue
			}

			removed = append(removed, active[candidate])
			active = append(active[:candidate], active[candidate+1:]...)
		}
	}

	g.active = active
	g.rebuildAdjacency()
	return Resolution{Graph: g, Removed: removed, Fatal: fatal}
}

// lessRemovable orders edges for cycle-breaking: lower confidence first,
// then lower kind priority, then lexicographic endpoints for determinism.
func lessRemovable(a, b MergedEdge) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence < b.Confidence
	}
	if a.Kind.RemovalRank() != b.Kind.RemovalRank() {
		return a.Kind.RemovalRank() < b.Kind.RemovalRank()
	}
	if a.Prerequisite != b.Prerequisite {
		return a.Prerequisite < b.Prerequisite
	}
	return a.Dependent < b.Dependent
}

// taskIDs returns all task IDs. Caller must hold g.mu.
func (g *Graph) taskIDs() []string {
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// cyclicComponents filters SCCs down to actual cycles (more than one node).
// Self-loops are rejected at edge validation, so single-node components are
// never cyclic here.
func cyclicComponents(components [][]string) [][]string {
	var cyclic [][]string
	for _, c := range components {
		if len(c) > 1 {
			cyclic = append(cyclic, c)
		}
	}
	return cyclic
}

// stronglyConnected runs Tarjan's algorithm over the given nodes and edges.
func stronglyConnected(nodes []string, edges []MergedEdge) [][]string {
	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adj[e.Prerequisite] = append(adj[e.Prerequisite], e.Dependent)
	}

	index := make(map[string]int, len(nodes))
	lowlink := make(map[string]int, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	var stack []string
	next := 0
	var components [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := index[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && index[w] < lowlink[v] {
				lowlink[v] = index[w]
			}
		}

		if lowlink[v] == index[v] {
			var component []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			components = append(components, component)
		}
	}

	for _, v := range nodes {
		if _, seen := index[v]; !seen {
			strongconnect(v)
		}
	}
	return components
}
