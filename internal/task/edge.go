package task

import "fmt"

// EdgeKind identifies which inference signal produced a dependency edge.
type EdgeKind int

const (
	EdgeSemantic EdgeKind = iota
	EdgeDataFlow
	EdgeImport
	EdgeFileConflict
	EdgeExplicit
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeSemantic:
		return "semantic"
	case EdgeDataFlow:
		return "data-flow"
	case EdgeImport:
		return "import"
	case EdgeFileConflict:
		return "file-conflict"
	case EdgeExplicit:
		return "explicit"
	}
	return "unknown"
}

// RemovalRank orders kinds for cycle-breaking tie-breaks: lower ranks are
// removed first. Explicit edges are never removed automatically.
func (k EdgeKind) RemovalRank() int { return int(k) }

// Edge is a weighted dependency: Prerequisite must finish before Dependent
// may start. Multiple edges may exist for the same pair with different
// kinds; they are merged at graph construction, not before.
type Edge struct {
	Prerequisite string
	Dependent    string
	Kind         EdgeKind
	Confidence   float64 // [0,1]
	Reason       string
}

func (e Edge) String() string {
	return fmt.Sprintf("%s->%s (%s %.2f: %s)", e.Prerequisite, e.Dependent, e.Kind, e.Confidence, e.Reason)
}
