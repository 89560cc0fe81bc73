// Package analyzer derives weighted dependency edges between tasks from
// independent signals: explicit declarations, file/resource conflicts,
// import relationships, semantic keyword matching, and declared data flow.
// Analysis is a pure function of task metadata; edges for the same pair are
// not deduplicated here, that happens at graph construction.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/waveplan/waveplan/internal/task"
)

// Confidence assigned per signal.
const (
	confExplicit       = 1.0
	confReadAfterWrite = 0.90
	confWriteWrite     = 0.95
	confDataFlow       = 0.90

	confImportDirect   = 0.95
	confImportPackage  = 0.90
	confImportRelative = 0.85
	confImportWildcard = 0.60
)

// Analyzer infers dependency edges from task metadata.
type Analyzer struct {
	semantic SemanticScorer
}

// New creates an Analyzer with the default keyword-based semantic scorer.
func New() *Analyzer {
	return &Analyzer{semantic: DefaultSemanticScorer{}}
}

// NewWithScorer creates an Analyzer with a custom semantic inference strategy.
func NewWithScorer(s SemanticScorer) *Analyzer {
	return &Analyzer{semantic: s}
}

// Analyze returns all inferred edges for the given task set.
// Tasks with missing IDs are rejected with a ValidationError; semantic
// ambiguity is never an error, it just emits no edge.
func (a *Analyzer) Analyze(tasks []*task.Task) ([]task.Edge, error) {
	for _, t := range tasks {
		if err := task.Validate(t); err != nil {
			return nil, err
		}
	}

	// Sort by ID so edge emission order is deterministic.
	sorted := make([]*task.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var edges []task.Edge
	edges = append(edges, explicitEdges(sorted)...)
	edges = append(edges, fileConflictEdges(sorted)...)
	edges = append(edges, importEdges(sorted)...)
	edges = append(edges, a.semanticEdges(sorted)...)
	edges = append(edges, dataFlowEdges(sorted)...)
	return edges, nil
}

// explicitEdges maps declared prerequisites to confidence-1.0 edges.
func explicitEdges(tasks []*task.Task) []task.Edge {
	var edges []task.Edge
	for _, t := range tasks {
		for _, depID := range t.DependsOn {
			if depID == t.ID {
				continue
			}
			edges = append(edges, task.Edge{
				Prerequisite: depID,
				Dependent:    t.ID,
				Kind:         task.EdgeExplicit,
				Confidence:   confExplicit,
				Reason:       fmt.Sprintf("%s declares prerequisite %s", t.ID, depID),
			})
		}
	}
	return edges
}

// fileConflictEdges serializes tasks touching the same paths. A writer
// precedes any reader of the same path; two writers of the same path get a
// single serializing edge with the lexicographically smaller ID first, so
// the pair never runs concurrently but no cycle is introduced.
func fileConflictEdges(tasks []*task.Task) []task.Edge {
	var edges []task.Edge
	for _, writer := range tasks {
		for _, path := range writer.WritesFiles {
			for _, other := range tasks {
				if other.ID == writer.ID {
					continue
				}
				if containsString(other.ReadsFiles, path) {
					edges = append(edges, task.Edge{
						Prerequisite: writer.ID,
						Dependent:    other.ID,
						Kind:         task.EdgeFileConflict,
						Confidence:   confReadAfterWrite,
						Reason:       fmt.Sprintf("%s writes %s read by %s", writer.ID, path, other.ID),
					})
				}
				// Emit the write-write edge once per pair, from the smaller ID.
				if writer.ID < other.ID && containsString(other.WritesFiles, path) {
					edges = append(edges, task.Edge{
						Prerequisite: writer.ID,
						Dependent:    other.ID,
						Kind:         task.EdgeFileConflict,
						Confidence:   confWriteWrite,
						Reason:       fmt.Sprintf("%s and %s both write %s", writer.ID, other.ID, path),
					})
				}
			}
		}
	}
	return edges
}

// importEdges links a task importing a module to the task that creates it,
// scaled by import specificity.
func importEdges(tasks []*task.Task) []task.Edge {
	var edges []task.Edge
	for _, creator := range tasks {
		for _, module := range creator.Creates {
			for _, importer := range tasks {
				if importer.ID == creator.ID {
					continue
				}
				best := 0.0
				matched := ""
				for _, imp := range importer.Imports {
					conf := importSpecificity(imp, module)
					if conf > best {
						best = conf
						matched = imp
					}
				}
				if best > 0 {
					edges = append(edges, task.Edge{
						Prerequisite: creator.ID,
						Dependent:    importer.ID,
						Kind:         task.EdgeImport,
						Confidence:   best,
						Reason:       fmt.Sprintf("%s imports %q created by %s", importer.ID, matched, creator.ID),
					})
				}
			}
		}
	}
	return edges
}

// importSpecificity grades how precisely an import statement names a module.
// Direct matches score highest, wildcards bottom out at the floor. Returns 0
// when the import does not reference the module at all.
func importSpecificity(imp, module string) float64 {
	switch {
	case imp == module:
		return confImportDirect
	case strings.Contains(imp, "*"):
		prefix := strings.TrimSuffix(imp[:strings.Index(imp, "*")], "/")
		if prefix != "" && (module == prefix || strings.HasPrefix(module, prefix+"/") || strings.HasPrefix(module, prefix+".")) {
			return confImportWildcard
		}
		return 0
	case strings.HasPrefix(imp, "./") || strings.HasPrefix(imp, "../"):
		trimmed := strings.TrimLeft(imp, "./")
		if trimmed == module || strings.HasSuffix(module, "/"+trimmed) {
			return confImportRelative
		}
		return 0
	case strings.HasPrefix(imp, module+"/") || strings.HasPrefix(imp, module+"."):
		return confImportPackage
	}
	return 0
}

// dataFlowEdges links declared producers to consumers of the same artifact.
// Fan-in and fan-out both emit each pairwise edge independently.
func dataFlowEdges(tasks []*task.Task) []task.Edge {
	var edges []task.Edge
	for _, producer := range tasks {
		for _, artifact := range producer.Produces {
			for _, consumer := range tasks {
				if consumer.ID == producer.ID {
					continue
				}
				if containsString(consumer.Consumes, artifact) {
					edges = append(edges, task.Edge{
						Prerequisite: producer.ID,
						Dependent:    consumer.ID,
						Kind:         task.EdgeDataFlow,
						Confidence:   confDataFlow,
						Reason:       fmt.Sprintf("%s produces %q consumed by %s", producer.ID, artifact, consumer.ID),
					})
				}
			}
		}
	}
	return edges
}

func (a *Analyzer) semanticEdges(tasks []*task.Task) []task.Edge {
	var edges []task.Edge
	for _, pre := range tasks {
		for _, dep := range tasks {
			if pre.ID == dep.ID {
				continue
			}
			conf, why := a.semantic.Score(pre.Description, dep.Description)
			if conf <= 0 {
				continue
			}
			edges = append(edges, task.Edge{
				Prerequisite: pre.ID,
				Dependent:    dep.ID,
				Kind:         task.EdgeSemantic,
				Confidence:   conf,
				Reason:       why,
			})
		}
	}
	return edges
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
