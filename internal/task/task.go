package task

// Status represents the current state of a task.
type Status int

const (
	StatusPending   Status = iota // Waiting for dependencies
	StatusReady                   // All dependencies resolved, ready to run
	StatusRunning                 // Currently executing
	StatusCompleted               // Finished successfully
	StatusFailed                  // Finished with error (non-terminal until retry policy resolves it)
	StatusSkipped                 // Intentionally not run
)

// String returns the lowercase name used in logs and persistence.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether the status is a terminal state.
// Failed is not terminal: the retry classifier decides what happens next.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// ResourceProfile classifies a task's dominant resource demand.
type ResourceProfile int

const (
	ProfileCPU ResourceProfile = iota
	ProfileIO
	ProfileMemory
	ProfileMixed
)

func (p ResourceProfile) String() string {
	switch p {
	case ProfileCPU:
		return "cpu-bound"
	case ProfileIO:
		return "io-bound"
	case ProfileMemory:
		return "memory-bound"
	case ProfileMixed:
		return "mixed"
	}
	return "unknown"
}

// Task represents a unit of work to be scheduled.
// The engine decides when it runs; executing the actual work is the
// caller's worker abstraction.
type Task struct {
	ID                   string
	Description          string
	EstimatedDuration    float64 // seconds
	Profile              ResourceProfile
	Priority             float64
	PredictedSuccessRate float64 // [0,1]
	Status               Status
	RetryCount           int
	MaxRetries           int

	// Metadata consumed by the dependency analyzer.
	DependsOn   []string // Explicitly declared prerequisite task IDs
	ReadsFiles  []string // Files/resources this task reads
	WritesFiles []string // Files/resources this task writes
	Imports     []string // Modules/symbols this task imports
	Creates     []string // Modules/symbols this task creates
	Consumes    []string // Named data artifacts this task consumes
	Produces    []string // Named data artifacts this task produces
}

// Clone returns a deep copy so callers can hand tasks across goroutine
// boundaries without sharing slices.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.DependsOn = cloneStrings(t.DependsOn)
	cp.ReadsFiles = cloneStrings(t.ReadsFiles)
	cp.WritesFiles = cloneStrings(t.WritesFiles)
	cp.Imports = cloneStrings(t.Imports)
	cp.Creates = cloneStrings(t.Creates)
	cp.Consumes = cloneStrings(t.Consumes)
	cp.Produces = cloneStrings(t.Produces)
	return &cp
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
