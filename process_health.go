package main

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const healthPollInterval = 5 * time.Second

// StartHealthMonitor polls the decoder process's CPU and memory usage into
// the Prometheus gauges. Gauges are zeroed whenever no decoder is running.
func StartHealthMonitor(ctx context.Context, sup *Supervisor) {
	go func() {
		ticker := time.NewTicker(healthPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pollDecoderHealth(sup)
			}
		}
	}()
}

func pollDecoderHealth(sup *Supervisor) {
	h := sup.Handle(RoleDecoder)
	if h == nil || !h.Running() {
		metrics.decoderCPUPercent.Set(0)
		metrics.decoderRSSBytes.Set(0)
		return
	}

	proc, err := process.NewProcess(int32(h.Pid()))
	if err != nil {
		return
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		metrics.decoderCPUPercent.Set(cpu)
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		metrics.decoderRSSBytes.Set(float64(mem.RSS))
	}
}
