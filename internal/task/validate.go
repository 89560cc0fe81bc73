package task

import "fmt"

// ValidationError reports malformed task or edge input. Validation failures
// are rejected before any graph mutation, so the caller can fix the input
// and resubmit.
type ValidationError struct {
	Subject string // task or edge identifier, "" if unknown
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %q: %s", e.Subject, e.Reason)
}

// Validate checks a task for structural problems before it enters the engine.
func Validate(t *Task) error {
	if t == nil {
		return &ValidationError{Reason: "task is nil"}
	}
	if t.ID == "" {
		return &ValidationError{Reason: "task has no id"}
	}
	if t.EstimatedDuration < 0 {
		return &ValidationError{Subject: t.ID, Reason: "estimated duration is negative"}
	}
	if t.PredictedSuccessRate < 0 || t.PredictedSuccessRate > 1 {
		return &ValidationError{Subject: t.ID, Reason: fmt.Sprintf("predicted success rate %.2f outside [0,1]", t.PredictedSuccessRate)}
	}
	if t.MaxRetries < 0 {
		return &ValidationError{Subject: t.ID, Reason: "max retries is negative"}
	}
	return nil
}

// ValidateEdge checks an externally supplied edge.
func ValidateEdge(e Edge) error {
	if e.Prerequisite == "" || e.Dependent == "" {
		return &ValidationError{Subject: e.String(), Reason: "edge endpoint has no id"}
	}
	if e.Prerequisite == e.Dependent {
		return &ValidationError{Subject: e.Prerequisite, Reason: "edge is a self-loop"}
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return &ValidationError{Subject: e.String(), Reason: fmt.Sprintf("confidence %.2f outside [0,1]", e.Confidence)}
	}
	return nil
}
