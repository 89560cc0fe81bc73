// Package adaptive owns the tunable scheduling parameters and the feedback
// loops that adjust them: a trend-following optimizer over a rolling
// performance window and a threshold-based bottleneck detector. Every
// parameter mutation passes through Clamp before it is published.
package adaptive

// Parameters are the scheduling knobs tuned at runtime.
type Parameters struct {
	MaxParallelTasks               int
	BatchSize                      int
	ConfidenceThreshold            float64
	RetryBackoffFactor             float64
	ResourceOversubscriptionFactor float64
}

// Safe bounds enforced by Clamp.
const (
	MinParallelTasks = 1
	MaxParallelBound = 32
	MinBatchSize     = 1
	MaxBatchSize     = 16
	MinConfidence    = 0.3
	MaxConfidence    = 0.95
	MinBackoffFactor = 1.1
	MaxBackoffFactor = 4.0
	MinOversub       = 1.0
	MaxOversub       = 4.0
)

// DefaultParameters returns the initial tuning used before any feedback.
func DefaultParameters() Parameters {
	return Parameters{
		MaxParallelTasks:               4,
		BatchSize:                      4,
		ConfidenceThreshold:            0.7,
		RetryBackoffFactor:             2.0,
		ResourceOversubscriptionFactor: 2.0,
	}
}

// Clamp forces every field into its safe range. It is applied
// unconditionally when parameters are published, so an externally injected
// out-of-range value is repaired even when no tuning rule fired.
func (p Parameters) Clamp() Parameters {
	p.MaxParallelTasks = clampInt(p.MaxParallelTasks, MinParallelTasks, MaxParallelBound)
	p.BatchSize = clampInt(p.BatchSize, MinBatchSize, MaxBatchSize)
	p.ConfidenceThreshold = clampFloat(p.ConfidenceThreshold, MinConfidence, MaxConfidence)
	p.RetryBackoffFactor = clampFloat(p.RetryBackoffFactor, MinBackoffFactor, MaxBackoffFactor)
	p.ResourceOversubscriptionFactor = clampFloat(p.ResourceOversubscriptionFactor, MinOversub, MaxOversub)
	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
