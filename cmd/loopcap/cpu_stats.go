package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

var newProcess = func() (*process.Process, error) {
	return process.NewProcess(int32(os.Getpid()))
}

func logProcessUsage(ctx context.Context, interval time.Duration) {
	proc, err := newProcess()
	if err != nil {
		log.Printf("process stats unavailable: %v", err)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logProcess(proc)
		}
	}
}

// logProcessSnapshot logs lifetime CPU and current RSS once.
func logProcessSnapshot() {
	proc, err := newProcess()
	if err != nil {
		log.Printf("process stats unavailable: %v", err)
		return
	}
	logProcess(proc)
}

func logProcess(proc *process.Process) {
	percent, err := proc.CPUPercent()
	if err != nil {
		log.Printf("cpu stats failed: %v", err)
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		log.Printf("capture cpu: %.1f%%", percent)
		return
	}
	log.Printf("capture cpu: %.1f%% rss=%.1fMiB", percent, float64(mem.RSS)/(1<<20))
}
