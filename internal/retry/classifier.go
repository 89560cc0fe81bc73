// Package retry classifies task failures and decides between retrying with
// backoff, holding, skipping, or escalating for manual intervention.
package retry

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/waveplan/waveplan/internal/task"
)

// Category classifies why a task failed.
type Category int

const (
	CategoryTimeout Category = iota
	CategoryResourceExhaustion
	CategoryDependencyFailure
	CategoryTransient
	CategoryUnknown
	CategoryCancelled // worker-level cancellation, treated as unknown but never retried
)

func (c Category) String() string {
	switch c {
	case CategoryTimeout:
		return "timeout"
	case CategoryResourceExhaustion:
		return "resource-exhaustion"
	case CategoryDependencyFailure:
		return "dependency-failure"
	case CategoryTransient:
		return "transient-error"
	case CategoryCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ParseCategory maps a worker-reported category string; anything
// unrecognized is unknown.
func ParseCategory(s string) Category {
	switch s {
	case "timeout":
		return CategoryTimeout
	case "resource-exhaustion":
		return CategoryResourceExhaustion
	case "dependency-failure":
		return CategoryDependencyFailure
	case "transient-error":
		return CategoryTransient
	case "cancelled":
		return CategoryCancelled
	}
	return CategoryUnknown
}

// Action is the classifier's verdict.
type Action int

const (
	ActionRetry    Action = iota
	ActionHold            // wait for prerequisites, re-decide later
	ActionSkip            // terminal, intentionally not run again
	ActionEscalate        // terminal for the engine, manual intervention required
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionHold:
		return "hold"
	case ActionSkip:
		return "skip"
	case ActionEscalate:
		return "escalate"
	}
	return "unknown"
}

// Decision is the full verdict for a failed task.
type Decision struct {
	Action            Action
	Delay             time.Duration // wait before the retry attempt
	TimeoutScale      float64       // >1: next attempt should extend its timeout by this factor
	ReduceParallelism bool          // signal only; the scheduler enforces it
	Reason            string
}

// Gate thresholds for the historical retry-success check.
const (
	historyMinOccurrences = 5
	historyMinSuccessRate = 0.3
	historyCapacity       = 50

	unknownRetryLimit = 2

	transientInitialDelay = 5 * time.Second
	transientMaxDelay     = 300 * time.Second
	timeoutScaleBase      = 1.5
)

// Classifier decides retry policy for failed tasks, consulting a bounded
// per-category history of past retry outcomes.
type Classifier struct {
	mu            sync.Mutex
	backoffFactor float64
	history       map[Category][]bool // ring of recent retry outcomes, newest last
}

// NewClassifier creates a classifier using the given backoff factor for
// transient-error delays.
func NewClassifier(backoffFactor float64) *Classifier {
	if backoffFactor <= 1 {
		backoffFactor = 2
	}
	return &Classifier{
		backoffFactor: backoffFactor,
		history:       make(map[Category][]bool),
	}
}

// SetBackoffFactor updates the transient backoff multiplier; the adaptive
// optimizer calls this when it retunes RetryBackoffFactor.
func (c *Classifier) SetBackoffFactor(f float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f > 1 {
		c.backoffFactor = f
	}
}

// RecordOutcome appends a retry outcome for the category, bounded to the
// most recent entries.
func (c *Classifier) RecordOutcome(cat Category, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := append(c.history[cat], success)
	if len(h) > historyCapacity {
		h = h[len(h)-historyCapacity:]
	}
	c.history[cat] = h
}

// Decide returns the verdict for a failed task. prereqsCompleted reports
// whether every previously failing prerequisite has since completed; it
// only matters for dependency failures.
//
// Precedence: cancellation is never retried; exhausted retries always
// escalate; a category whose recent retries succeed under 30% of the time
// is refused regardless of its rule; then the per-category rules apply.
func (c *Classifier) Decide(t *task.Task, cat Category, prereqsCompleted bool) Decision {
	if cat == CategoryCancelled {
		return Decision{Action: ActionSkip, Reason: "cancelled externally, not retried"}
	}
	if t.RetryCount >= t.MaxRetries {
		return Decision{Action: ActionEscalate, Reason: fmt.Sprintf("retry count %d reached max %d", t.RetryCount, t.MaxRetries)}
	}
	if rate, n, bad := c.historyRate(cat); bad {
		return Decision{
			Action: ActionEscalate,
			Reason: fmt.Sprintf("%s retries succeeding at %.0f%% over last %d, below %.0f%% threshold", cat, rate*100, n, historyMinSuccessRate*100),
		}
	}

	switch cat {
	case CategoryTimeout:
		return Decision{
			Action:       ActionRetry,
			TimeoutScale: math.Pow(timeoutScaleBase, float64(t.RetryCount+1)),
			Reason:       "timeout, retrying with extended timeout",
		}
	case CategoryResourceExhaustion:
		return Decision{
			Action:            ActionRetry,
			ReduceParallelism: true,
			Reason:            "resource exhaustion, retrying under reduced parallelism",
		}
	case CategoryDependencyFailure:
		if prereqsCompleted {
			return Decision{Action: ActionRetry, Reason: "failed prerequisites have completed, retrying"}
		}
		return Decision{Action: ActionHold, Reason: "prerequisites still unresolved, holding"}
	case CategoryTransient:
		return Decision{
			Action: ActionRetry,
			Delay:  c.transientDelay(t.RetryCount),
			Reason: "transient error, retrying after backoff",
		}
	default: // unknown
		if t.RetryCount < unknownRetryLimit {
			return Decision{Action: ActionRetry, Reason: "unknown failure, limited retry"}
		}
		return Decision{Action: ActionEscalate, Reason: fmt.Sprintf("unknown failure retried %d times", t.RetryCount)}
	}
}

// historyRate reports the retry success rate for a category once at least
// five outcomes are recorded. bad is true when the gate should refuse.
func (c *Classifier) historyRate(cat Category) (rate float64, n int, bad bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.history[cat]
	if len(h) < historyMinOccurrences {
		return 0, len(h), false
	}
	ok := 0
	for _, s := range h {
		if s {
			ok++
		}
	}
	rate = float64(ok) / float64(len(h))
	return rate, len(h), rate < historyMinSuccessRate
}

// transientDelay steps an exponential backoff policy to the attempt number:
// initial 5s, multiplied per retry, capped at 300s. Randomization is
// disabled so decisions are reproducible.
func (c *Classifier) transientDelay(retryCount int) time.Duration {
	c.mu.Lock()
	factor := c.backoffFactor
	c.mu.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = transientInitialDelay
	policy.Multiplier = factor
	policy.MaxInterval = transientMaxDelay
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	// The constructor snapshots its current interval before the fields
	// above are set; Reset re-seeds it from InitialInterval.
	policy.Reset()

	var d time.Duration
	for i := 0; i <= retryCount; i++ {
		d = policy.NextBackOff()
	}
	if d > transientMaxDelay {
		d = transientMaxDelay
	}
	return d
}
