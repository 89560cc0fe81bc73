package adaptive

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SampleSystem reads live CPU and memory utilization plus the I/O-wait
// fraction from the host. Callers overlay the engine-derived fields
// (dependency wait, mean task duration, context-switch overhead) before
// passing the result to DetectBottlenecks.
func SampleSystem(ctx context.Context) (SystemMetrics, error) {
	var m SystemMetrics

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return m, fmt.Errorf("sampling cpu utilization: %w", err)
	}
	if len(percents) > 0 {
		m.CPUUtilization = percents[0] / 100
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return m, fmt.Errorf("sampling memory: %w", err)
	}
	m.MemoryUtilization = vm.UsedPercent / 100

	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return m, fmt.Errorf("sampling cpu times: %w", err)
	}
	if len(times) > 0 {
		t := times[0]
		total := t.User + t.System + t.Idle + t.Iowait + t.Nice + t.Irq + t.Softirq + t.Steal
		if total > 0 {
			m.IOWaitFraction = t.Iowait / total
		}
	}

	return m, nil
}
