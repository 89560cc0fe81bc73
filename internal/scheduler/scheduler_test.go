package scheduler

import (
	"errors"
	"testing"

	"github.com/waveplan/waveplan/internal/adaptive"
	"github.com/waveplan/waveplan/internal/graph"
	"github.com/waveplan/waveplan/internal/task"
)

func buildGraph(t *testing.T, tasks []*task.Task, edges []task.Edge) *graph.Graph {
	t.Helper()
	res, err := graph.Build(tasks, edges, 0.7)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	if len(res.Fatal) != 0 {
		t.Fatalf("unexpected fatal cycles: %v", res.Fatal)
	}
	return res.Graph
}

func explicit(pre, dep string) task.Edge {
	return task.Edge{Prerequisite: pre, Dependent: dep, Kind: task.EdgeExplicit, Confidence: 1.0}
}

func diamondGraph(t *testing.T) *graph.Graph {
	t.Helper()
	return buildGraph(t, []*task.Task{
		{ID: "A", EstimatedDuration: 10, PredictedSuccessRate: 1},
		{ID: "B", EstimatedDuration: 5, PredictedSuccessRate: 1},
		{ID: "C", EstimatedDuration: 8, PredictedSuccessRate: 1},
		{ID: "D", EstimatedDuration: 3, PredictedSuccessRate: 1},
	}, []task.Edge{
		explicit("A", "B"),
		{Prerequisite: "B", Dependent: "D", Kind: task.EdgeDataFlow, Confidence: 0.9},
		{Prerequisite: "C", Dependent: "D", Kind: task.EdgeDataFlow, Confidence: 0.9},
	})
}

func completeAll(t *testing.T, g *graph.Graph, wave Wave) {
	t.Helper()
	for _, id := range wave.TaskIDs {
		if err := g.SetStatus(id, task.StatusCompleted); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWaveSequenceOnDiamond(t *testing.T) {
	g := diamondGraph(t)
	params := adaptive.DefaultParameters()
	params.MaxParallelTasks = 2
	res := DefaultResources()

	// Wave 1: A and C are ready; A ranks first via its longer remaining path.
	w1, err := NextWave(g, res, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(w1.TaskIDs) != 2 || w1.TaskIDs[0] != "A" || w1.TaskIDs[1] != "C" {
		t.Fatalf("wave 1 = %v, want [A C]", w1.TaskIDs)
	}
	if w1.ForceAdmitted {
		t.Error("wave 1 force-admitted with budgets to spare")
	}
	completeAll(t, g, w1)

	w2, err := NextWave(g, res, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(w2.TaskIDs) != 1 || w2.TaskIDs[0] != "B" {
		t.Fatalf("wave 2 = %v, want [B]", w2.TaskIDs)
	}
	completeAll(t, g, w2)

	w3, err := NextWave(g, res, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(w3.TaskIDs) != 1 || w3.TaskIDs[0] != "D" {
		t.Fatalf("wave 3 = %v, want [D]", w3.TaskIDs)
	}
	completeAll(t, g, w3)

	w4, err := NextWave(g, res, params)
	if err != nil {
		t.Fatal(err)
	}
	if !w4.Empty() {
		t.Errorf("wave 4 = %v, want empty once all tasks complete", w4.TaskIDs)
	}
}

func TestWaveNeverContainsDependentOfAdmittedTask(t *testing.T) {
	g := diamondGraph(t)
	params := adaptive.DefaultParameters()
	params.MaxParallelTasks = 32
	params.BatchSize = 16

	w, err := NextWave(g, DefaultResources(), params)
	if err != nil {
		t.Fatal(err)
	}
	in := make(map[string]bool, len(w.TaskIDs))
	for _, id := range w.TaskIDs {
		in[id] = true
	}
	for _, id := range w.TaskIDs {
		for _, dep := range g.DependentsOf(id) {
			if in[dep] {
				t.Errorf("wave %v admits %s together with its dependent %s", w.TaskIDs, id, dep)
			}
		}
	}
}

func TestParallelismAccountsForRunningTasks(t *testing.T) {
	g := buildGraph(t, []*task.Task{
		{ID: "r1"}, {ID: "r2"}, {ID: "p1"}, {ID: "p2"},
	}, nil)
	for _, id := range []string{"r1", "r2"} {
		if err := g.SetStatus(id, task.StatusRunning); err != nil {
			t.Fatal(err)
		}
	}
	params := adaptive.DefaultParameters()
	params.MaxParallelTasks = 3

	w, err := NextWave(g, DefaultResources(), params)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.TaskIDs) != 1 {
		t.Errorf("wave = %v, want a single task with 2 of 3 slots occupied", w.TaskIDs)
	}
}

func TestBatchSizeCapsWave(t *testing.T) {
	g := buildGraph(t, []*task.Task{
		{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
	}, nil)
	params := adaptive.DefaultParameters()
	params.MaxParallelTasks = 8
	params.BatchSize = 2

	w, err := NextWave(g, DefaultResources(), params)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.TaskIDs) != 2 {
		t.Errorf("wave = %v, want 2 tasks per batch size", w.TaskIDs)
	}
}

func TestResourceBudgetsPerProfile(t *testing.T) {
	// 2 cores with oversubscription 2.0: 2 CPU slots, 4 I/O slots,
	// memory 2048/1024 = 2 slots.
	res := Resources{CPUCores: 2, MemoryBudgetMB: 2048, EstimatedMemoryPerTask: 1024}
	params := adaptive.DefaultParameters()
	params.MaxParallelTasks = 32
	params.BatchSize = 16

	g := buildGraph(t, []*task.Task{
		{ID: "c1", Profile: task.ProfileCPU},
		{ID: "c2", Profile: task.ProfileCPU},
		{ID: "c3", Profile: task.ProfileCPU},
		{ID: "i1", Profile: task.ProfileIO},
		{ID: "m1", Profile: task.ProfileMemory},
		{ID: "m2", Profile: task.ProfileMemory},
		{ID: "m3", Profile: task.ProfileMemory},
	}, nil)

	w, err := NextWave(g, res, params)
	if err != nil {
		t.Fatal(err)
	}
	byProfile := map[task.ResourceProfile]int{}
	for _, id := range w.TaskIDs {
		tk, _ := g.Get(id)
		byProfile[tk.Profile]++
	}
	if byProfile[task.ProfileCPU] != 2 {
		t.Errorf("cpu admissions = %d, want 2", byProfile[task.ProfileCPU])
	}
	if byProfile[task.ProfileMemory] != 2 {
		t.Errorf("memory admissions = %d, want 2", byProfile[task.ProfileMemory])
	}
	if byProfile[task.ProfileIO] != 1 {
		t.Errorf("io admissions = %d, want 1", byProfile[task.ProfileIO])
	}
}

func TestForceAdmitWhenBudgetsAdmitNothing(t *testing.T) {
	// Zero cores and zero memory leave every budget empty; exactly one task
	// must still be admitted so the engine cannot stall.
	res := Resources{CPUCores: 0, MemoryBudgetMB: 0, EstimatedMemoryPerTask: 1024}
	g := buildGraph(t, []*task.Task{
		{ID: "cpu-long", Profile: task.ProfileCPU, EstimatedDuration: 30},
		{ID: "io-long", Profile: task.ProfileIO, EstimatedDuration: 30},
		{ID: "io-short", Profile: task.ProfileIO, EstimatedDuration: 5},
	}, nil)

	w, err := NextWave(g, res, adaptive.DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if !w.ForceAdmitted {
		t.Fatal("expected force admission")
	}
	if len(w.TaskIDs) != 1 || w.TaskIDs[0] != "io-short" {
		t.Errorf("force-admitted %v, want the shortest I/O-bound task [io-short]", w.TaskIDs)
	}
}

func TestInvariantViolation(t *testing.T) {
	// A dependent of a task stuck in Ready: nothing running, nothing failed,
	// nothing admissible. That is a scheduler defect, not a normal stall.
	g := buildGraph(t, []*task.Task{{ID: "A"}, {ID: "B"}}, []task.Edge{explicit("A", "B")})
	if err := g.SetStatus("A", task.StatusReady); err != nil {
		t.Fatal(err)
	}

	_, err := NextWave(g, DefaultResources(), adaptive.DefaultParameters())
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("err = %v, want ErrInvariantViolation", err)
	}
}

func TestEmptyWaveWhileTasksRun(t *testing.T) {
	g := buildGraph(t, []*task.Task{{ID: "A"}, {ID: "B"}}, []task.Edge{explicit("A", "B")})
	if err := g.SetStatus("A", task.StatusRunning); err != nil {
		t.Fatal(err)
	}

	w, err := NextWave(g, DefaultResources(), adaptive.DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if !w.Empty() {
		t.Errorf("wave = %v, want empty while prerequisites run", w.TaskIDs)
	}
}

func TestRankingPrefersPriorityAndSuccessRate(t *testing.T) {
	g := buildGraph(t, []*task.Task{
		{ID: "low", Priority: 0.1, PredictedSuccessRate: 0.5, EstimatedDuration: 10},
		{ID: "high", Priority: 0.9, PredictedSuccessRate: 0.9, EstimatedDuration: 10},
	}, nil)
	params := adaptive.DefaultParameters()
	params.BatchSize = 1

	w, err := NextWave(g, DefaultResources(), params)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.TaskIDs) != 1 || w.TaskIDs[0] != "high" {
		t.Errorf("wave = %v, want the high-priority task first", w.TaskIDs)
	}
}
