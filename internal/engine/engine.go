// Package engine ties the analyzer, graph, scheduler, balancer, optimizer,
// and retry classifier into one coordinator. All mutable scheduling state
// is owned by a single coordinator goroutine; completion and failure
// reports arrive over a bounded event queue, and every pending event is
// applied before the next wave is computed.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/waveplan/waveplan/internal/adaptive"
	"github.com/waveplan/waveplan/internal/analyzer"
	"github.com/waveplan/waveplan/internal/balancer"
	"github.com/waveplan/waveplan/internal/events"
	"github.com/waveplan/waveplan/internal/graph"
	"github.com/waveplan/waveplan/internal/metrics"
	"github.com/waveplan/waveplan/internal/persistence"
	"github.com/waveplan/waveplan/internal/retry"
	"github.com/waveplan/waveplan/internal/scheduler"
	"github.com/waveplan/waveplan/internal/task"
)

// Config wires an Engine. Zero values get sensible defaults; Bus, Store,
// and SystemSampler are optional.
type Config struct {
	Resources     scheduler.Resources
	Parameters    adaptive.Parameters
	WindowSize    int
	EventQueue    int
	Bus           *events.Bus
	Store         persistence.Store
	SystemSampler func(context.Context) (adaptive.SystemMetrics, error)
}

// MetricsSnapshot is the observable state returned by GetMetrics.
type MetricsSnapshot struct {
	Throughput  float64 // completed tasks per second over the last sample
	MeanLatency float64 // seconds
	SuccessRate float64
	Bottlenecks []adaptive.Bottleneck
}

// Escalation is a failure requiring manual intervention.
type Escalation struct {
	TaskID   string
	Category retry.Category
	Reason   string
}

type eventKind int

const (
	evDispatched eventKind = iota
	evCompleted
	evFailed
)

type engineEvent struct {
	kind     eventKind
	taskID   string
	workerID string
	duration float64
	category retry.Category
}

type request struct {
	fn   func()
	done chan struct{}
}

// Engine is the scheduling coordinator.
type Engine struct {
	cfg       Config
	analyzer  *analyzer.Analyzer
	balancer  *balancer.Balancer
	optimizer *adaptive.Optimizer
	classify  *retry.Classifier
	window    *adaptive.Window

	eventCh   chan engineEvent
	requestCh chan request
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}

	// State below is owned by the coordinator goroutine.
	graph       *graph.Graph
	rawEdges    []task.Edge
	retryAt     map[string]time.Time      // failed task -> earliest retry
	held        map[string]retry.Category // dependency failures waiting on prereqs
	retryCat    map[string]retry.Category // in-flight retry attempt -> original category
	escalations []Escalation
	readyAt     map[string]time.Time // wave admission time per task
	dispatched  map[string]time.Time

	// Rolling sample accounting, reset each adapt cycle.
	statCompleted  int
	statFailed     int
	statDurSum     float64
	statDepWaitSum float64
	statDepWaitN   int
	sampleStart    time.Time
	lastSample     adaptive.Sample
}

// New creates an Engine and starts its coordinator goroutine.
func New(cfg Config) *Engine {
	if cfg.Resources.CPUCores == 0 {
		cfg.Resources = scheduler.DefaultResources()
	}
	if (cfg.Parameters == adaptive.Parameters{}) {
		cfg.Parameters = adaptive.DefaultParameters()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 64
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = 256
	}

	e := &Engine{
		cfg:         cfg,
		analyzer:    analyzer.New(),
		balancer:    balancer.New(),
		optimizer:   adaptive.NewOptimizer(cfg.Parameters),
		classify:    retry.NewClassifier(cfg.Parameters.RetryBackoffFactor),
		window:      adaptive.NewWindow(cfg.WindowSize),
		eventCh:     make(chan engineEvent, cfg.EventQueue),
		requestCh:   make(chan request),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		retryAt:     make(map[string]time.Time),
		held:        make(map[string]retry.Category),
		retryCat:    make(map[string]retry.Category),
		readyAt:     make(map[string]time.Time),
		dispatched:  make(map[string]time.Time),
		sampleStart: time.Now(),
	}
	go e.coordinate()
	return e
}

// Close stops the coordinator. Pending events are discarded.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh
}

// coordinate is the single writer of all scheduling state.
func (e *Engine) coordinate() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.stopCh:
			return
		case ev := <-e.eventCh:
			e.apply(ev)
		case req := <-e.requestCh:
			e.drainEvents()
			req.fn()
			close(req.done)
		}
	}
}

// drainEvents applies every queued event so requests always observe a
// state that reflects all reports received so far.
func (e *Engine) drainEvents() {
	for {
		select {
		case ev := <-e.eventCh:
			e.apply(ev)
		default:
			return
		}
	}
}

// call runs fn on the coordinator goroutine and waits for it.
func (e *Engine) call(fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case e.requestCh <- req:
		<-req.done
		return nil
	case <-e.stopCh:
		return fmt.Errorf("engine is closed")
	}
}

// RegisterWorker makes a worker available for assignment.
func (e *Engine) RegisterWorker(w balancer.Worker) {
	e.balancer.Register(w)
}

// SubmitTasks validates the tasks, runs the dependency analyzer, merges in
// the caller-declared edges, and builds the resolved graph. Any
// unbreakable explicit cycles are returned; their tasks are marked skipped
// while the rest of the graph proceeds.
func (e *Engine) SubmitTasks(ctx context.Context, tasks []*task.Task, declared []task.Edge) ([]graph.StructuralCycle, error) {
	inferred, err := e.analyzer.Analyze(tasks)
	if err != nil {
		return nil, err
	}
	for _, d := range declared {
		if err := task.ValidateEdge(d); err != nil {
			return nil, err
		}
	}
	all := append(inferred, declared...)

	var fatal []graph.StructuralCycle
	var buildErr error
	callErr := e.call(func() {
		res, err := graph.Build(tasks, all, e.optimizer.Parameters().ConfidenceThreshold)
		if err != nil {
			buildErr = err
			return
		}
		e.graph = res.Graph
		e.rawEdges = all
		fatal = res.Fatal
		for _, re := range res.Removed {
			log.Printf("engine: cycle resolution removed edge %s->%s (%s %.2f)",
				re.Prerequisite, re.Dependent, re.Kind, re.Confidence)
		}
		e.reportFatal(res.Fatal)
		e.persistGraph(ctx, all, res)
	})
	if callErr != nil {
		return nil, callErr
	}
	return fatal, buildErr
}

// reportFatal publishes skip events for structural cycles. Caller is the
// coordinator goroutine.
func (e *Engine) reportFatal(fatal []graph.StructuralCycle) {
	for _, fc := range fatal {
		log.Printf("engine: structural cycle, skipping tasks %v: %s", fc.TaskIDs, fc.Reason)
		for _, id := range fc.TaskIDs {
			e.publish(events.TopicTask, events.TaskSkippedEvent{ID: id, Reason: fc.Reason, Timestamp: time.Now()})
		}
		e.audit("cycle", "", fc.Reason)
	}
}

func (e *Engine) persistGraph(ctx context.Context, edges []task.Edge, res graph.Resolution) {
	if e.cfg.Store == nil {
		return
	}
	for _, t := range res.Graph.Tasks() {
		if err := e.cfg.Store.SaveTask(ctx, t); err != nil {
			log.Printf("engine: persisting task %s: %v", t.ID, err)
		}
	}
	if err := e.cfg.Store.ReplaceEdges(ctx, edges); err != nil {
		log.Printf("engine: persisting edges: %v", err)
	}
}

// NextWave applies all pending reports, retunes parameters, and computes
// the next execution wave. Admitted tasks transition to ready; the caller
// dispatches them and reports outcomes back.
func (e *Engine) NextWave() (scheduler.Wave, error) {
	var wave scheduler.Wave
	var waveErr error
	err := e.call(func() {
		if e.graph == nil {
			waveErr = fmt.Errorf("no tasks submitted")
			return
		}
		e.releaseDueRetries()
		e.adaptCycle()

		wave, waveErr = scheduler.NextWave(e.graph, e.cfg.Resources, e.optimizer.Parameters())
		if waveErr != nil {
			log.Printf("engine: %v", waveErr)
			return
		}
		now := time.Now()
		for _, id := range wave.TaskIDs {
			if err := e.graph.SetStatus(id, task.StatusReady); err != nil {
				log.Printf("engine: marking %s ready: %v", id, err)
			}
			e.readyAt[id] = now
		}
		if !wave.Empty() {
			metrics.WavesEmitted.Inc()
			e.publish(events.TopicSchedule, events.WaveEmittedEvent{
				WaveID:        wave.ID,
				TaskIDs:       wave.TaskIDs,
				ForceAdmitted: wave.ForceAdmitted,
				Timestamp:     now,
			})
		}
		e.updateStatusGauges()
	})
	if err != nil {
		return scheduler.Wave{}, err
	}
	return wave, waveErr
}

// DiscardWave cancels a wave before dispatch, returning its tasks to
// pending. Tasks already dispatched are unaffected.
func (e *Engine) DiscardWave(w scheduler.Wave) error {
	return e.call(func() {
		for _, id := range w.TaskIDs {
			if t, ok := e.graph.Get(id); ok && t.Status == task.StatusReady {
				_ = e.graph.SetStatus(id, task.StatusPending)
				delete(e.readyAt, id)
			}
		}
	})
}

// Assign picks a worker for a ready task via the load balancer.
func (e *Engine) Assign(t *task.Task) (string, error) {
	return e.balancer.Assign(t)
}

// ReportDispatched records that a task started on a worker.
func (e *Engine) ReportDispatched(taskID, workerID string) {
	e.submit(engineEvent{kind: evDispatched, taskID: taskID, workerID: workerID})
}

// ReportCompletion feeds a successful task outcome back into the engine.
func (e *Engine) ReportCompletion(taskID, workerID string, durationSeconds float64) {
	e.submit(engineEvent{kind: evCompleted, taskID: taskID, workerID: workerID, duration: durationSeconds})
}

// ReportFailure feeds a failed task outcome back into the engine.
func (e *Engine) ReportFailure(taskID, workerID string, durationSeconds float64, category string) {
	e.submit(engineEvent{
		kind:     evFailed,
		taskID:   taskID,
		workerID: workerID,
		duration: durationSeconds,
		category: retry.ParseCategory(category),
	})
}

// submit enqueues an event, blocking if the bounded queue is full.
func (e *Engine) submit(ev engineEvent) {
	select {
	case e.eventCh <- ev:
	case <-e.stopCh:
	}
}

// GetParameters returns a read-only snapshot of the adaptive parameters.
func (e *Engine) GetParameters() adaptive.Parameters {
	return e.optimizer.Parameters()
}

// GetMetrics returns the latest performance sample and detected
// bottlenecks.
func (e *Engine) GetMetrics(ctx context.Context) MetricsSnapshot {
	var snap MetricsSnapshot
	_ = e.call(func() {
		snap = MetricsSnapshot{
			Throughput:  e.lastSample.Throughput,
			MeanLatency: e.lastSample.MeanLatency,
			SuccessRate: e.lastSample.SuccessRate,
			Bottlenecks: adaptive.DetectBottlenecks(e.systemMetrics(ctx)),
		}
	})
	return snap
}

// Escalations returns the failures surfaced for manual intervention.
func (e *Engine) Escalations() []Escalation {
	var out []Escalation
	_ = e.call(func() {
		out = append(out, e.escalations...)
	})
	return out
}

// TaskStatuses returns a snapshot of every task's status.
func (e *Engine) TaskStatuses() map[string]task.Status {
	out := make(map[string]task.Status)
	_ = e.call(func() {
		if e.graph == nil {
			return
		}
		for _, t := range e.graph.Tasks() {
			out[t.ID] = t.Status
		}
	})
	return out
}

func (e *Engine) publish(topic string, ev events.Event) {
	if e.cfg.Bus != nil {
		e.cfg.Bus.Publish(topic, ev)
	}
}

func (e *Engine) audit(kind, subject, detail string) {
	if e.cfg.Store == nil {
		return
	}
	entry := persistence.AuditEntry{Kind: kind, Subject: subject, Detail: detail}
	if err := e.cfg.Store.RecordAudit(context.Background(), entry); err != nil {
		log.Printf("engine: recording audit entry: %v", err)
	}
}

func (e *Engine) updateStatusGauges() {
	for status, n := range e.graph.StatusCounts() {
		metrics.TasksByStatus.WithLabelValues(status.String()).Set(float64(n))
	}
	p := e.optimizer.Parameters()
	metrics.MaxParallelTasks.Set(float64(p.MaxParallelTasks))
	metrics.ConfidenceThreshold.Set(p.ConfidenceThreshold)
}
