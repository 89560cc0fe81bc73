package balancer

import (
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerRegistry manages per-worker circuit breakers. A worker that keeps
// failing is excluded from assignment until its breaker half-opens.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// Get returns the breaker for the given worker, creating it on first use.
func (r *BreakerRegistry) Get(workerID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[workerID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        workerID,
		MaxRequests: 3,                // test requests allowed in half-open state
		Interval:    0,                // don't clear counts automatically
		Timeout:     30 * time.Second, // stay open before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("worker breaker %q: %s -> %s", name, from, to)
		},
	})
	r.breakers[workerID] = cb
	return cb
}

// Record feeds a task outcome into the worker's breaker.
func (r *BreakerRegistry) Record(workerID string, success bool) {
	cb := r.Get(workerID)
	_, _ = cb.Execute(func() (interface{}, error) {
		if success {
			return nil, nil
		}
		return nil, errTaskFailed
	})
}

// Available reports whether the worker's breaker admits new work.
func (r *BreakerRegistry) Available(workerID string) bool {
	return r.Get(workerID).State() != gobreaker.StateOpen
}

type taskFailedError struct{}

func (taskFailedError) Error() string { return "task failed on worker" }

var errTaskFailed = taskFailedError{}
