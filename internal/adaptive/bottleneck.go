package adaptive

import (
	"fmt"
	"sort"
)

// BottleneckType classifies a systemic slowdown.
type BottleneckType int

const (
	BottleneckCPU BottleneckType = iota
	BottleneckMemory
	BottleneckIO
	BottleneckDependency
	BottleneckContextSwitch
)

func (t BottleneckType) String() string {
	switch t {
	case BottleneckCPU:
		return "cpu"
	case BottleneckMemory:
		return "memory"
	case BottleneckIO:
		return "io"
	case BottleneckDependency:
		return "dependency-wait"
	case BottleneckContextSwitch:
		return "context-switch"
	}
	return "unknown"
}

// SystemMetrics feeds the detector. Utilization values are fractions in
// [0,1]; wait and duration values are seconds.
type SystemMetrics struct {
	CPUUtilization        float64
	MemoryUtilization     float64
	IOWaitFraction        float64
	DependencyWaitSeconds float64
	MeanTaskDuration      float64
	ContextSwitchOverhead float64
}

// Bottleneck is a detected slowdown with its deterministic resolution. The
// resolution is applied through the optimizer's parameter store, never
// directly against running work.
type Bottleneck struct {
	Type                BottleneckType
	Severity            float64 // measured value relative to its threshold, >1 when detected
	SuggestedResolution string
}

// Detection thresholds.
const (
	cpuThreshold       = 0.95
	memoryThreshold    = 0.90
	ioWaitThreshold    = 0.30
	depWaitRatio       = 0.5 // dependency wait vs mean task duration
	ctxSwitchThreshold = 0.15
)

// DetectBottlenecks classifies slowdowns against fixed thresholds and
// returns them ordered by severity, most severe first. Ties are broken by
// type order for determinism.
func DetectBottlenecks(m SystemMetrics) []Bottleneck {
	var found []Bottleneck

	if m.CPUUtilization > cpuThreshold {
		found = append(found, Bottleneck{
			Type:                BottleneckCPU,
			Severity:            m.CPUUtilization / cpuThreshold,
			SuggestedResolution: "reduce CPU concurrency by 2",
		})
	}
	if m.MemoryUtilization > memoryThreshold {
		found = append(found, Bottleneck{
			Type:                BottleneckMemory,
			Severity:            m.MemoryUtilization / memoryThreshold,
			SuggestedResolution: "reduce memory concurrency by 1",
		})
	}
	if m.IOWaitFraction > ioWaitThreshold {
		found = append(found, Bottleneck{
			Type:                BottleneckIO,
			Severity:            m.IOWaitFraction / ioWaitThreshold,
			SuggestedResolution: "increase I/O concurrency, capped at total budget",
		})
	}
	if m.MeanTaskDuration > 0 && m.DependencyWaitSeconds > depWaitRatio*m.MeanTaskDuration {
		found = append(found, Bottleneck{
			Type:                BottleneckDependency,
			Severity:            m.DependencyWaitSeconds / (depWaitRatio * m.MeanTaskDuration),
			SuggestedResolution: fmt.Sprintf("lower confidence threshold by 0.1, floored at %.1f", MinConfidence),
		})
	}
	if m.ContextSwitchOverhead > ctxSwitchThreshold {
		found = append(found, Bottleneck{
			Type:                BottleneckContextSwitch,
			Severity:            m.ContextSwitchOverhead / ctxSwitchThreshold,
			SuggestedResolution: "reduce CPU concurrency by 2",
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Severity != found[j].Severity {
			return found[i].Severity > found[j].Severity
		}
		return found[i].Type < found[j].Type
	})
	return found
}
