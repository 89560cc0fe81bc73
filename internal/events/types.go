package events

import (
	"time"

	"github.com/waveplan/waveplan/internal/adaptive"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicSchedule = "schedule"
	TopicTuning   = "tuning"
)

// Event type constants
const (
	EventTypeWaveEmitted        = "schedule.wave"
	EventTypeTaskDispatched     = "task.dispatched"
	EventTypeTaskCompleted      = "task.completed"
	EventTypeTaskFailed         = "task.failed"
	EventTypeTaskRetryScheduled = "task.retry"
	EventTypeTaskEscalated      = "task.escalated"
	EventTypeTaskSkipped        = "task.skipped"
	EventTypeParametersAdjusted = "tuning.parameters"
	EventTypeBottleneckDetected = "tuning.bottleneck"
)

// WaveEmittedEvent is published when the scheduler emits a new wave.
type WaveEmittedEvent struct {
	WaveID        string
	TaskIDs       []string
	ForceAdmitted bool
	Timestamp     time.Time
}

func (e WaveEmittedEvent) EventType() string { return EventTypeWaveEmitted }
func (e WaveEmittedEvent) TaskID() string    { return "" }

// TaskDispatchedEvent is published when a task is assigned to a worker.
type TaskDispatchedEvent struct {
	ID        string
	WorkerID  string
	Timestamp time.Time
}

func (e TaskDispatchedEvent) EventType() string { return EventTypeTaskDispatched }
func (e TaskDispatchedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a completion report is applied.
type TaskCompletedEvent struct {
	ID        string
	WorkerID  string
	Duration  float64 // seconds
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a failure report is applied.
type TaskFailedEvent struct {
	ID        string
	WorkerID  string
	Category  string
	Duration  float64 // seconds
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskRetryScheduledEvent is published when the classifier decides to retry.
type TaskRetryScheduledEvent struct {
	ID         string
	RetryCount int
	Delay      time.Duration
	Reason     string
	Timestamp  time.Time
}

func (e TaskRetryScheduledEvent) EventType() string { return EventTypeTaskRetryScheduled }
func (e TaskRetryScheduledEvent) TaskID() string    { return e.ID }

// TaskEscalatedEvent surfaces a failure requiring manual intervention.
// Never dropped silently: the engine also logs it.
type TaskEscalatedEvent struct {
	ID        string
	Category  string
	Reason    string
	Timestamp time.Time
}

func (e TaskEscalatedEvent) EventType() string { return EventTypeTaskEscalated }
func (e TaskEscalatedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published when a task is intentionally not run, for
// example as part of an unbreakable explicit cycle.
type TaskSkippedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }

// ParametersAdjustedEvent records a published parameter change.
type ParametersAdjustedEvent struct {
	Before    adaptive.Parameters
	After     adaptive.Parameters
	Source    string // "optimizer", "bottleneck", "retry"
	Timestamp time.Time
}

func (e ParametersAdjustedEvent) EventType() string { return EventTypeParametersAdjusted }
func (e ParametersAdjustedEvent) TaskID() string    { return "" }

// BottleneckDetectedEvent reports a classified slowdown.
type BottleneckDetectedEvent struct {
	Type       string
	Severity   float64
	Resolution string
	Timestamp  time.Time
}

func (e BottleneckDetectedEvent) EventType() string { return EventTypeBottleneckDetected }
func (e BottleneckDetectedEvent) TaskID() string    { return "" }
