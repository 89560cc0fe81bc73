package adaptive

import "time"

// Sample is one observation of engine performance. Samples are immutable
// once appended.
type Sample struct {
	Throughput         float64 // completed tasks per second
	MeanLatency        float64 // mean task duration, seconds
	SuccessRate        float64 // [0,1]
	ParallelEfficiency float64 // observed speedup / configured parallelism
	Timestamp          time.Time
}

// Window is a fixed-capacity ring buffer of samples with O(1) append.
// The oldest sample is evicted when the buffer is full.
type Window struct {
	samples []Sample
	head    int // index of oldest sample
	size    int
}

// NewWindow creates a window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 64
	}
	return &Window{samples: make([]Sample, capacity)}
}

// Append records a sample, evicting the oldest if the window is full.
func (w *Window) Append(s Sample) {
	if w.size < len(w.samples) {
		w.samples[(w.head+w.size)%len(w.samples)] = s
		w.size++
		return
	}
	w.samples[w.head] = s
	w.head = (w.head + 1) % len(w.samples)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.size }

// Samples returns the held samples in chronological order.
func (w *Window) Samples() []Sample {
	out := make([]Sample, 0, w.size)
	for i := 0; i < w.size; i++ {
		out = append(out, w.samples[(w.head+i)%len(w.samples)])
	}
	return out
}
