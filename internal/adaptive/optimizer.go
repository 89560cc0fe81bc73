package adaptive

import (
	"log"
	"sync"
)

// Trend thresholds and rule bounds from the tuning policy. The rule bounds
// are tighter than the Clamp bounds: the optimizer never drives parallelism
// outside [2,16] or batch size outside [2,8] on its own, but Clamp still
// repairs externally injected values against the wider safe ranges.
const (
	minAdaptSamples = 10

	successTrendDown = -0.05
	successTrendUp   = 0.05
	efficiencyDown   = -0.1
	efficiencyUp     = 0.1

	ruleMinParallel = 2
	ruleMaxParallel = 16
	ruleMinBatch    = 2
	ruleMaxBatch    = 8
)

// Optimizer retunes scheduling parameters from rolling performance trends.
// It is the only writer of the published parameter set besides the
// bottleneck resolutions it applies on behalf of the detector.
type Optimizer struct {
	mu     sync.Mutex
	params Parameters
}

// NewOptimizer creates an optimizer publishing the given initial parameters.
func NewOptimizer(initial Parameters) *Optimizer {
	return &Optimizer{params: initial.Clamp()}
}

// Parameters returns the current published parameters.
func (o *Optimizer) Parameters() Parameters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.params
}

// SetParameters replaces the published parameters, clamped.
func (o *Optimizer) SetParameters(p Parameters) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.params = p.Clamp()
}

// Adapt observes the sample window and retunes parameters. With fewer than
// 10 samples no rule fires, but the published parameters are still clamped.
// Returns the parameters now in effect.
func (o *Optimizer) Adapt(w *Window) Parameters {
	o.mu.Lock()
	defer o.mu.Unlock()

	before := o.params
	next := o.params

	if w != nil && w.Len() >= minAdaptSamples {
		samples := w.Samples()
		success := make([]float64, len(samples))
		throughput := make([]float64, len(samples))
		efficiency := make([]float64, len(samples))
		for i, s := range samples {
			success[i] = s.SuccessRate
			throughput[i] = s.Throughput
			efficiency[i] = s.ParallelEfficiency
		}
		successTrend := linearTrend(success)
		throughputTrend := linearTrend(throughput)
		efficiencyTrend := linearTrend(efficiency)

		switch {
		case successTrend < successTrendDown:
			next.ConfidenceThreshold *= 0.9
			if next.MaxParallelTasks > ruleMinParallel {
				next.MaxParallelTasks--
			}
		case successTrend > successTrendUp && throughputTrend > 0:
			next.ConfidenceThreshold *= 1.05
			if next.MaxParallelTasks < ruleMaxParallel {
				next.MaxParallelTasks++
			}
		}

		switch {
		case efficiencyTrend < efficiencyDown:
			if next.BatchSize > ruleMinBatch {
				next.BatchSize--
			}
		case efficiencyTrend > efficiencyUp:
			if next.BatchSize < ruleMaxBatch {
				next.BatchSize++
			}
		}
	}

	o.params = next.Clamp()
	if o.params != before {
		log.Printf("optimizer: parameters %+v -> %+v", before, o.params)
	}
	return o.params
}

// ApplyResolution applies a bottleneck's suggested parameter adjustment.
// Returns the parameters now in effect.
func (o *Optimizer) ApplyResolution(b Bottleneck) Parameters {
	o.mu.Lock()
	defer o.mu.Unlock()

	before := o.params
	next := o.params
	switch b.Type {
	case BottleneckCPU, BottleneckContextSwitch:
		next.MaxParallelTasks -= 2
	case BottleneckMemory:
		next.MaxParallelTasks--
	case BottleneckIO:
		// I/O capacity is cores * oversubscription, so +0.5 grants
		// cores/2 extra slots (+2 on the default 4-core budget).
		next.ResourceOversubscriptionFactor += 0.5
	case BottleneckDependency:
		next.ConfidenceThreshold -= 0.1
	}
	o.params = next.Clamp()
	if o.params != before {
		log.Printf("optimizer: %s bottleneck resolution, parameters %+v -> %+v", b.Type, before, o.params)
	}
	return o.params
}

// linearTrend returns the least-squares slope of values over their index.
func linearTrend(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
