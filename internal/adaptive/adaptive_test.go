package adaptive

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Append(Sample{Throughput: float64(i)})
	}
	if w.Len() != 3 {
		t.Fatalf("len = %d, want 3", w.Len())
	}
	got := w.Samples()
	for i, want := range []float64{3, 4, 5} {
		if got[i].Throughput != want {
			t.Errorf("sample[%d].Throughput = %v, want %v", i, got[i].Throughput, want)
		}
	}
}

func TestClampRepairsExtremes(t *testing.T) {
	p := Parameters{
		MaxParallelTasks:               1000,
		BatchSize:                      -3,
		ConfidenceThreshold:            2.5,
		RetryBackoffFactor:             0,
		ResourceOversubscriptionFactor: 99,
	}.Clamp()

	want := Parameters{
		MaxParallelTasks:               MaxParallelBound,
		BatchSize:                      MinBatchSize,
		ConfidenceThreshold:            MaxConfidence,
		RetryBackoffFactor:             MinBackoffFactor,
		ResourceOversubscriptionFactor: MaxOversub,
	}
	if p != want {
		t.Errorf("clamped = %+v, want %+v", p, want)
	}
}

// trendWindow fills a window with the given per-metric series.
func trendWindow(success, throughput, efficiency []float64) *Window {
	w := NewWindow(len(success))
	for i := range success {
		w.Append(Sample{
			SuccessRate:        success[i],
			Throughput:         throughput[i],
			ParallelEfficiency: efficiency[i],
		})
	}
	return w
}

func series(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestAdaptRequiresTenSamples(t *testing.T) {
	o := NewOptimizer(DefaultParameters())
	w := trendWindow(series(1, -0.1, 9), series(1, 0, 9), series(0.8, 0, 9))
	got := o.Adapt(w)
	if got != DefaultParameters() {
		t.Errorf("parameters changed on %d samples: %+v", w.Len(), got)
	}
}

func TestAdaptDecliningSuccess(t *testing.T) {
	o := NewOptimizer(DefaultParameters())
	w := trendWindow(series(1, -0.1, 10), series(1, 0, 10), series(0.8, 0, 10))

	got := o.Adapt(w)
	if got.MaxParallelTasks != 3 {
		t.Errorf("parallel = %d, want 3 after declining success", got.MaxParallelTasks)
	}
	if !approx(got.ConfidenceThreshold, 0.7*0.9) {
		t.Errorf("threshold = %v, want 0.63", got.ConfidenceThreshold)
	}
}

func TestAdaptImprovingSuccess(t *testing.T) {
	o := NewOptimizer(DefaultParameters())
	w := trendWindow(series(0.1, 0.09, 10), series(1, 1, 10), series(0.8, 0, 10))

	got := o.Adapt(w)
	if got.MaxParallelTasks != 5 {
		t.Errorf("parallel = %d, want 5 after improving success", got.MaxParallelTasks)
	}
	if !approx(got.ConfidenceThreshold, 0.7*1.05) {
		t.Errorf("threshold = %v, want 0.735", got.ConfidenceThreshold)
	}
}

func TestAdaptBatchFollowsEfficiency(t *testing.T) {
	tests := []struct {
		name       string
		efficiency []float64
		wantBatch  int
	}{
		{"declining", series(1, -0.15, 10), 3},
		{"improving", series(0.1, 0.15, 10), 5},
		{"flat", series(0.8, 0, 10), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptimizer(DefaultParameters())
			w := trendWindow(series(0.8, 0, 10), series(1, 0, 10), tt.efficiency)
			if got := o.Adapt(w); got.BatchSize != tt.wantBatch {
				t.Errorf("batch = %d, want %d", got.BatchSize, tt.wantBatch)
			}
		})
	}
}

func TestAdaptNeverLeavesBounds(t *testing.T) {
	decline := trendWindow(series(1, -0.09, 10), series(1, 0, 10), series(1, -0.15, 10))
	improve := trendWindow(series(0.1, 0.09, 10), series(1, 1, 10), series(0.1, 0.15, 10))

	check := func(p Parameters) {
		t.Helper()
		if p.MaxParallelTasks < MinParallelTasks || p.MaxParallelTasks > MaxParallelBound {
			t.Fatalf("parallel %d out of bounds", p.MaxParallelTasks)
		}
		if p.BatchSize < MinBatchSize || p.BatchSize > MaxBatchSize {
			t.Fatalf("batch %d out of bounds", p.BatchSize)
		}
		if p.ConfidenceThreshold < MinConfidence || p.ConfidenceThreshold > MaxConfidence {
			t.Fatalf("threshold %v out of bounds", p.ConfidenceThreshold)
		}
		if p.ResourceOversubscriptionFactor < MinOversub || p.ResourceOversubscriptionFactor > MaxOversub {
			t.Fatalf("oversubscription %v out of bounds", p.ResourceOversubscriptionFactor)
		}
	}

	o := NewOptimizer(DefaultParameters())
	for i := 0; i < 50; i++ {
		check(o.Adapt(decline))
	}
	for i := 0; i < 50; i++ {
		check(o.Adapt(improve))
	}
}

func TestApplyResolution(t *testing.T) {
	tests := []struct {
		name  string
		b     Bottleneck
		check func(t *testing.T, p Parameters)
	}{
		{"cpu", Bottleneck{Type: BottleneckCPU}, func(t *testing.T, p Parameters) {
			if p.MaxParallelTasks != 2 {
				t.Errorf("parallel = %d, want 2", p.MaxParallelTasks)
			}
		}},
		{"context switch", Bottleneck{Type: BottleneckContextSwitch}, func(t *testing.T, p Parameters) {
			if p.MaxParallelTasks != 2 {
				t.Errorf("parallel = %d, want 2", p.MaxParallelTasks)
			}
		}},
		{"memory", Bottleneck{Type: BottleneckMemory}, func(t *testing.T, p Parameters) {
			if p.MaxParallelTasks != 3 {
				t.Errorf("parallel = %d, want 3", p.MaxParallelTasks)
			}
		}},
		{"io", Bottleneck{Type: BottleneckIO}, func(t *testing.T, p Parameters) {
			if !approx(p.ResourceOversubscriptionFactor, 2.5) {
				t.Errorf("oversubscription = %v, want 2.5", p.ResourceOversubscriptionFactor)
			}
		}},
		{"dependency", Bottleneck{Type: BottleneckDependency}, func(t *testing.T, p Parameters) {
			if !approx(p.ConfidenceThreshold, 0.6) {
				t.Errorf("threshold = %v, want 0.6", p.ConfidenceThreshold)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptimizer(DefaultParameters())
			tt.check(t, o.ApplyResolution(tt.b))
		})
	}
}

func TestApplyResolutionRespectsFloors(t *testing.T) {
	p := DefaultParameters()
	p.MaxParallelTasks = 1
	p.ConfidenceThreshold = MinConfidence
	o := NewOptimizer(p)

	got := o.ApplyResolution(Bottleneck{Type: BottleneckCPU})
	if got.MaxParallelTasks != MinParallelTasks {
		t.Errorf("parallel = %d, want floor %d", got.MaxParallelTasks, MinParallelTasks)
	}
	got = o.ApplyResolution(Bottleneck{Type: BottleneckDependency})
	if got.ConfidenceThreshold != MinConfidence {
		t.Errorf("threshold = %v, want floor %v", got.ConfidenceThreshold, MinConfidence)
	}
}

func TestDetectBottlenecks(t *testing.T) {
	m := SystemMetrics{
		CPUUtilization:        0.99,
		MemoryUtilization:     0.92,
		IOWaitFraction:        0.60,
		DependencyWaitSeconds: 30,
		MeanTaskDuration:      10,
		ContextSwitchOverhead: 0.20,
	}
	got := DetectBottlenecks(m)
	if len(got) != 5 {
		t.Fatalf("detected %d bottlenecks, want 5", len(got))
	}
	// Severity ordering: dependency 30/5=6, io 0.6/0.3=2, context 0.2/0.15,
	// cpu 0.99/0.95, memory 0.92/0.90.
	wantOrder := []BottleneckType{
		BottleneckDependency,
		BottleneckIO,
		BottleneckContextSwitch,
		BottleneckCPU,
		BottleneckMemory,
	}
	for i, want := range wantOrder {
		if got[i].Type != want {
			t.Errorf("bottleneck[%d] = %v, want %v", i, got[i].Type, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Severity > got[i-1].Severity {
			t.Errorf("severity not descending at %d: %v after %v", i, got[i].Severity, got[i-1].Severity)
		}
	}
}

func TestDetectBottlenecksQuietSystem(t *testing.T) {
	m := SystemMetrics{
		CPUUtilization:        0.5,
		MemoryUtilization:     0.5,
		IOWaitFraction:        0.1,
		DependencyWaitSeconds: 1,
		MeanTaskDuration:      10,
		ContextSwitchOverhead: 0.05,
	}
	if got := DetectBottlenecks(m); len(got) != 0 {
		t.Errorf("detected %v on a quiet system, want none", got)
	}
}

func TestDependencyBottleneckNeedsDurationBaseline(t *testing.T) {
	m := SystemMetrics{DependencyWaitSeconds: 100}
	if got := DetectBottlenecks(m); len(got) != 0 {
		t.Errorf("detected %v with zero mean duration, want none", got)
	}
}
