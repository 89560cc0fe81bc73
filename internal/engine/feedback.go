package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/waveplan/waveplan/internal/adaptive"
	"github.com/waveplan/waveplan/internal/events"
	"github.com/waveplan/waveplan/internal/metrics"
	"github.com/waveplan/waveplan/internal/retry"
	"github.com/waveplan/waveplan/internal/task"
)

// apply processes one feedback event. Runs on the coordinator goroutine.
func (e *Engine) apply(ev engineEvent) {
	if e.graph == nil {
		return
	}
	switch ev.kind {
	case evDispatched:
		e.applyDispatched(ev)
	case evCompleted:
		e.applyCompleted(ev)
	case evFailed:
		e.applyFailed(ev)
	}
}

func (e *Engine) applyDispatched(ev engineEvent) {
	if err := e.graph.SetStatus(ev.taskID, task.StatusRunning); err != nil {
		log.Printf("engine: dispatch report for unknown task %s", ev.taskID)
		return
	}
	now := time.Now()
	e.dispatched[ev.taskID] = now
	if readyAt, ok := e.readyAt[ev.taskID]; ok {
		e.statDepWaitSum += now.Sub(readyAt).Seconds()
		e.statDepWaitN++
	}
	t, _ := e.graph.Get(ev.taskID)
	if t != nil {
		metrics.TasksDispatched.WithLabelValues(t.Profile.String()).Inc()
	}
	e.publish(events.TopicTask, events.TaskDispatchedEvent{ID: ev.taskID, WorkerID: ev.workerID, Timestamp: now})
}

func (e *Engine) applyCompleted(ev engineEvent) {
	t, ok := e.graph.Get(ev.taskID)
	if !ok {
		log.Printf("engine: completion report for unknown task %s", ev.taskID)
		return
	}
	if err := e.graph.SetStatus(ev.taskID, task.StatusCompleted); err != nil {
		return
	}

	e.statCompleted++
	e.statDurSum += ev.duration
	metrics.TasksCompleted.WithLabelValues(t.Profile.String()).Inc()
	metrics.TaskDuration.Observe(ev.duration)

	if ev.workerID != "" {
		e.balancer.TaskCompleted(ev.workerID, t, ev.duration, true)
	}

	// A completed retry attempt feeds the category's success history.
	if cat, retried := e.retryCat[ev.taskID]; retried {
		e.classify.RecordOutcome(cat, true)
		delete(e.retryCat, ev.taskID)
	}

	e.publish(events.TopicTask, events.TaskCompletedEvent{
		ID: ev.taskID, WorkerID: ev.workerID, Duration: ev.duration, Timestamp: time.Now(),
	})

	e.reviveHeldTasks()
	e.updateStatusGauges()
}

// reviveHeldTasks re-decides dependency failures whose failed prerequisites
// have since completed.
func (e *Engine) reviveHeldTasks() {
	for id, cat := range e.held {
		t, ok := e.graph.Get(id)
		if !ok || t.Status != task.StatusFailed {
			delete(e.held, id)
			continue
		}
		if !e.prereqsCompleted(id) {
			continue
		}
		delete(e.held, id)
		e.decide(t, cat)
	}
}

func (e *Engine) applyFailed(ev engineEvent) {
	t, ok := e.graph.Get(ev.taskID)
	if !ok {
		log.Printf("engine: failure report for unknown task %s", ev.taskID)
		return
	}
	if err := e.graph.SetStatus(ev.taskID, task.StatusFailed); err != nil {
		return
	}
	t.Status = task.StatusFailed

	e.statFailed++
	e.statDurSum += ev.duration
	metrics.TasksFailed.WithLabelValues(ev.category.String()).Inc()
	metrics.TaskDuration.Observe(ev.duration)

	if ev.workerID != "" {
		e.balancer.TaskCompleted(ev.workerID, t, ev.duration, false)
	}

	// A failed retry attempt feeds the original category's history before
	// the new failure is classified.
	if cat, retried := e.retryCat[ev.taskID]; retried {
		e.classify.RecordOutcome(cat, false)
		delete(e.retryCat, ev.taskID)
	}

	e.publish(events.TopicTask, events.TaskFailedEvent{
		ID: ev.taskID, WorkerID: ev.workerID, Category: ev.category.String(),
		Duration: ev.duration, Timestamp: time.Now(),
	})

	e.decide(t, ev.category)
	e.updateStatusGauges()
}

// decide runs the retry classifier for a failed task and applies the
// verdict. Runs on the coordinator goroutine.
func (e *Engine) decide(t *task.Task, cat retry.Category) {
	d := e.classify.Decide(t, cat, e.prereqsCompleted(t.ID))
	log.Printf("engine: task %s failed (%s, retry %d/%d): %s - %s",
		t.ID, cat, t.RetryCount, t.MaxRetries, d.Action, d.Reason)
	e.audit("retry", t.ID, fmt.Sprintf("%s failure: %s (%s)", cat, d.Action, d.Reason))

	switch d.Action {
	case retry.ActionRetry:
		e.scheduleRetry(t, cat, d)
	case retry.ActionHold:
		e.held[t.ID] = cat
	case retry.ActionSkip:
		_ = e.graph.SetStatus(t.ID, task.StatusSkipped)
		e.publish(events.TopicTask, events.TaskSkippedEvent{ID: t.ID, Reason: d.Reason, Timestamp: time.Now()})
	case retry.ActionEscalate:
		e.escalations = append(e.escalations, Escalation{TaskID: t.ID, Category: cat, Reason: d.Reason})
		metrics.TasksEscalated.Inc()
		e.publish(events.TopicTask, events.TaskEscalatedEvent{
			ID: t.ID, Category: cat.String(), Reason: d.Reason, Timestamp: time.Now(),
		})
	}
}

func (e *Engine) scheduleRetry(t *task.Task, cat retry.Category, d retry.Decision) {
	e.retryCat[t.ID] = cat
	metrics.TasksRetried.Inc()

	if d.ReduceParallelism {
		before := e.optimizer.Parameters()
		after := before
		after.MaxParallelTasks--
		e.optimizer.SetParameters(after)
		e.publishParameters(before, "retry")
	}

	if d.Delay > 0 {
		e.retryAt[t.ID] = time.Now().Add(d.Delay)
	} else {
		if _, err := e.graph.IncrementRetry(t.ID); err != nil {
			log.Printf("engine: retrying %s: %v", t.ID, err)
			return
		}
	}
	e.publish(events.TopicTask, events.TaskRetryScheduledEvent{
		ID: t.ID, RetryCount: t.RetryCount + 1, Delay: d.Delay, Reason: d.Reason, Timestamp: time.Now(),
	})
}

// releaseDueRetries flips delayed retries whose backoff has elapsed back to
// pending. Runs on the coordinator goroutine.
func (e *Engine) releaseDueRetries() {
	now := time.Now()
	for id, at := range e.retryAt {
		if at.After(now) {
			continue
		}
		delete(e.retryAt, id)
		if _, err := e.graph.IncrementRetry(id); err != nil {
			log.Printf("engine: releasing retry for %s: %v", id, err)
		}
	}
}

// pendingRetries reports whether any delayed retry is still scheduled.
func (e *Engine) pendingRetries() bool {
	return len(e.retryAt) > 0
}

// prereqsCompleted reports whether every prerequisite of the task is
// completed or skipped.
func (e *Engine) prereqsCompleted(id string) bool {
	for _, preID := range e.graph.PrerequisitesOf(id) {
		pre, ok := e.graph.Get(preID)
		if !ok || !pre.Status.Terminal() {
			return false
		}
	}
	return true
}

// adaptCycle folds the stats gathered since the last cycle into a
// performance sample, retunes parameters, and applies bottleneck
// resolutions. Runs on the coordinator goroutine.
func (e *Engine) adaptCycle() {
	now := time.Now()
	elapsed := now.Sub(e.sampleStart).Seconds()
	total := e.statCompleted + e.statFailed
	if total > 0 && elapsed > 0 {
		params := e.optimizer.Parameters()
		s := adaptive.Sample{
			Throughput:  float64(e.statCompleted) / elapsed,
			MeanLatency: e.statDurSum / float64(total),
			SuccessRate: float64(e.statCompleted) / float64(total),
			Timestamp:   now,
		}
		if params.MaxParallelTasks > 0 {
			s.ParallelEfficiency = e.statDurSum / (elapsed * float64(params.MaxParallelTasks))
			if s.ParallelEfficiency > 1 {
				s.ParallelEfficiency = 1
			}
		}
		e.window.Append(s)
		e.lastSample = s
		e.statCompleted, e.statFailed = 0, 0
		e.statDurSum = 0
		e.statDepWaitSum, e.statDepWaitN = 0, 0
		e.sampleStart = now
	}

	before := e.optimizer.Parameters()
	after := e.optimizer.Adapt(e.window)
	if after != before {
		e.publishParameters(before, "optimizer")
	}

	for _, b := range adaptive.DetectBottlenecks(e.systemMetrics(context.Background())) {
		metrics.BottlenecksDetected.WithLabelValues(b.Type.String()).Inc()
		e.publish(events.TopicTuning, events.BottleneckDetectedEvent{
			Type: b.Type.String(), Severity: b.Severity, Resolution: b.SuggestedResolution, Timestamp: now,
		})
		pre := e.optimizer.Parameters()
		post := e.optimizer.ApplyResolution(b)
		if post != pre {
			e.audit("bottleneck", "", fmt.Sprintf("%s severity %.2f: %s", b.Type, b.Severity, b.SuggestedResolution))
			e.publishParameters(pre, "bottleneck")
		}
	}

	e.applyParameterSideEffects(before)
}

// applyParameterSideEffects propagates parameter changes to the classifier
// and, when the confidence threshold moved, re-resolves the graph.
func (e *Engine) applyParameterSideEffects(before adaptive.Parameters) {
	after := e.optimizer.Parameters()
	if after == before {
		return
	}
	e.classify.SetBackoffFactor(after.RetryBackoffFactor)
	if after.ConfidenceThreshold != before.ConfidenceThreshold && e.graph != nil {
		res := e.graph.Rethreshold(after.ConfidenceThreshold)
		for _, re := range res.Removed {
			log.Printf("engine: re-threshold removed edge %s->%s (%s %.2f)",
				re.Prerequisite, re.Dependent, re.Kind, re.Confidence)
		}
		e.reportFatal(res.Fatal)
	}
}

func (e *Engine) publishParameters(before adaptive.Parameters, source string) {
	after := e.optimizer.Parameters()
	e.audit("parameters", "", fmt.Sprintf("%s: %+v -> %+v", source, before, after))
	e.publish(events.TopicTuning, events.ParametersAdjustedEvent{
		Before: before, After: after, Source: source, Timestamp: time.Now(),
	})
}

// systemMetrics assembles detector input from engine stats plus the
// optional host sampler.
func (e *Engine) systemMetrics(ctx context.Context) adaptive.SystemMetrics {
	var m adaptive.SystemMetrics
	if e.cfg.SystemSampler != nil {
		sampled, err := e.cfg.SystemSampler(ctx)
		if err != nil {
			log.Printf("engine: sampling system metrics: %v", err)
		} else {
			m = sampled
		}
	}
	m.MeanTaskDuration = e.lastSample.MeanLatency
	if e.statDepWaitN > 0 {
		m.DependencyWaitSeconds = e.statDepWaitSum / float64(e.statDepWaitN)
	}
	return m
}
