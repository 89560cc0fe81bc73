package graph

import "sort"

// CriticalPath returns the longest duration-weighted path through the
// resolved graph and its total duration. For each task the longest
// cumulative duration among all paths ending at it is memoized over the
// DAG; the critical path is a maximal such path. Ties are broken by
// lexicographic task ID so the result is deterministic.
func CriticalPath(g *Graph) ([]string, float64) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := g.taskIDs()
	memo := make(map[string]float64, len(ids))
	choice := make(map[string]string, len(ids)) // task -> chosen predecessor

	var longestTo func(id string) float64
	longestTo = func(id string) float64 {
		if v, ok := memo[id]; ok {
			return v
		}
		t := g.tasks[id]
		best := 0.0
		bestPre := ""
		pres := append([]string(nil), g.prereqs[id]...)
		sort.Strings(pres)
		for _, pre := range pres {
			v := longestTo(pre)
			if v > best || (v == best && bestPre == "") {
				best = v
				bestPre = pre
			}
		}
		total := t.EstimatedDuration + best
		memo[id] = total
		choice[id] = bestPre
		return total
	}

	end := ""
	total := 0.0
	for _, id := range ids {
		v := longestTo(id)
		if v > total || (v == total && (end == "" || id < end)) {
			total = v
			end = id
		}
	}
	if end == "" {
		return nil, 0
	}

	// Walk the chosen predecessors back from the maximal end task.
	var reversed []string
	for id := end; id != ""; id = choice[id] {
		reversed = append(reversed, id)
	}
	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path, total
}

// RemainingPath returns, for every task, the longest duration-weighted
// chain starting at that task (its own duration plus the longest chain of
// dependents). The scheduler uses it to favor tasks that unblock the most
// downstream work.
func RemainingPath(g *Graph) map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	memo := make(map[string]float64, len(g.tasks))
	var longestFrom func(id string) float64
	longestFrom = func(id string) float64 {
		if v, ok := memo[id]; ok {
			return v
		}
		t := g.tasks[id]
		best := 0.0
		for _, dep := range g.dependents[id] {
			if v := longestFrom(dep); v > best {
				best = v
			}
		}
		memo[id] = t.EstimatedDuration + best
		return memo[id]
	}
	for id := range g.tasks {
		longestFrom(id)
	}
	return memo
}
