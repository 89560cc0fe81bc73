// Command waveplan runs the scheduling engine against a demonstration
// workload on simulated workers, printing the control loop's events and
// optionally serving Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waveplan/waveplan/internal/adaptive"
	"github.com/waveplan/waveplan/internal/config"
	"github.com/waveplan/waveplan/internal/engine"
	"github.com/waveplan/waveplan/internal/events"
	"github.com/waveplan/waveplan/internal/persistence"
	"github.com/waveplan/waveplan/internal/scheduler"
	"github.com/waveplan/waveplan/internal/task"
	"github.com/waveplan/waveplan/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	defer bus.Close()

	var store persistence.Store
	if cfg.DatabasePath != "" {
		s, err := persistence.NewSQLiteStore(ctx, cfg.DatabasePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()
		store = s
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("metrics endpoint: %v", err)
			}
		}()
	}

	eng := engine.New(engine.Config{
		Resources: scheduler.Resources{
			CPUCores:               cfg.Resources.CPUCores,
			MemoryBudgetMB:         cfg.Resources.MemoryBudgetMB,
			EstimatedMemoryPerTask: cfg.Resources.EstimatedMemoryPerTask,
		},
		Parameters: adaptive.Parameters{
			MaxParallelTasks:               cfg.Parameters.MaxParallelTasks,
			BatchSize:                      cfg.Parameters.BatchSize,
			ConfidenceThreshold:            cfg.Parameters.ConfidenceThreshold,
			RetryBackoffFactor:             cfg.Parameters.RetryBackoffFactor,
			ResourceOversubscriptionFactor: cfg.Parameters.ResourceOversubscriptionFactor,
		},
		WindowSize:    cfg.SampleWindow,
		EventQueue:    cfg.EventQueueSize,
		Bus:           bus,
		Store:         store,
		SystemSampler: adaptive.SampleSystem,
	})
	defer eng.Close()

	go printEvents(bus.SubscribeAll(256))

	tasks, edges := demoWorkload()
	fatal, err := eng.SubmitTasks(ctx, tasks, edges)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error submitting tasks: %v\n", err)
		os.Exit(1)
	}
	for _, fc := range fatal {
		log.Printf("structural cycle skipped tasks %v: %s", fc.TaskIDs, fc.Reason)
	}

	workers := []worker.Worker{
		simWorker("worker-1"),
		simWorker("worker-2"),
		simWorker("worker-3"),
	}
	if err := eng.Run(ctx, workers); err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}

	for id, status := range eng.TaskStatuses() {
		log.Printf("task %-12s %s", id, status)
	}
	for _, esc := range eng.Escalations() {
		log.Printf("ESCALATED %s (%s): %s", esc.TaskID, esc.Category, esc.Reason)
	}
	snap := eng.GetMetrics(ctx)
	log.Printf("throughput %.2f/s, latency %.2fs, success %.0f%%, %d bottlenecks",
		snap.Throughput, snap.MeanLatency, snap.SuccessRate*100, len(snap.Bottlenecks))
}

func simWorker(id string) *worker.SimWorker {
	w := worker.NewSimWorker(id)
	w.SleepScale = 5 * time.Millisecond
	return w
}

func printEvents(ch <-chan events.Event) {
	for ev := range ch {
		if ev.TaskID() != "" {
			log.Printf("event %-20s task=%s", ev.EventType(), ev.TaskID())
		} else {
			log.Printf("event %-20s", ev.EventType())
		}
	}
}

// demoWorkload builds a small project plan exercising every inference
// signal: explicit deps, shared files, imports, data artifacts, and
// setup/implement phrasing.
func demoWorkload() ([]*task.Task, []task.Edge) {
	tasks := []*task.Task{
		{
			ID:                   "schema",
			Description:          "Design the database schema",
			EstimatedDuration:    8,
			Profile:              task.ProfileCPU,
			Priority:             3,
			PredictedSuccessRate: 0.95,
			MaxRetries:           2,
			WritesFiles:          []string{"db/schema.sql"},
			Creates:              []string{"app/models"},
			Produces:             []string{"schema"},
		},
		{
			ID:                   "migrations",
			Description:          "Implement migrations from the schema",
			EstimatedDuration:    5,
			Profile:              task.ProfileIO,
			Priority:             2,
			PredictedSuccessRate: 0.9,
			MaxRetries:           2,
			ReadsFiles:           []string{"db/schema.sql"},
			Consumes:             []string{"schema"},
		},
		{
			ID:                   "api",
			Description:          "Build the HTTP API",
			EstimatedDuration:    13,
			Profile:              task.ProfileCPU,
			Priority:             4,
			PredictedSuccessRate: 0.85,
			MaxRetries:           3,
			Imports:              []string{"app/models"},
			Produces:             []string{"openapi"},
		},
		{
			ID:                   "client",
			Description:          "Build the API client library",
			EstimatedDuration:    6,
			Profile:              task.ProfileMixed,
			Priority:             2,
			PredictedSuccessRate: 0.9,
			MaxRetries:           2,
			Consumes:             []string{"openapi"},
		},
		{
			ID:                   "docs",
			Description:          "Document the API endpoints",
			EstimatedDuration:    3,
			Profile:              task.ProfileIO,
			Priority:             1,
			PredictedSuccessRate: 0.99,
			MaxRetries:           1,
			DependsOn:            []string{"api"},
		},
	}
	return tasks, nil
}
