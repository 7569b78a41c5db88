package core

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// RuntimeSampler samples the daemon's own resource usage. Battery fields stay zero on hosts without one.
type RuntimeSampler struct {
	stateDir string

	mu       sync.Mutex
	lastCPU  time.Duration
	lastWall time.Time
}

// NewRuntimeSampler creates a sampler that reports disk usage of stateDir.
func NewRuntimeSampler(stateDir string) *RuntimeSampler {
	return &RuntimeSampler{stateDir: stateDir}
}

// Sample implements MetricsSampler.
func (s *RuntimeSampler) Sample(ctx context.Context) (SystemMetrics, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	disk, err := dirSize(ctx, s.stateDir)
	if err != nil {
		return SystemMetrics{}, err
	}
	return SystemMetrics{
		ID:          NewID(),
		Timestamp:   NowMillis(),
		CPUUsage:    s.cpuPercent(),
		MemoryUsage: int64(mem.HeapAlloc),
		TotalMemory: int64(mem.Sys),
		DiskUsage:   disk,
	}, nil
}

// cpuPercent returns process CPU time as a percentage of wall time since the previous sample.
func (s *RuntimeSampler) cpuPercent() float32 {
	cpu := processCPUTime()
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		s.lastCPU = cpu
		s.lastWall = now
	}()
	if s.lastWall.IsZero() || cpu == 0 {
		return 0
	}
	wall := now.Sub(s.lastWall)
	if wall <= 0 {
		return 0
	}
	return float32(float64(cpu-s.lastCPU) / float64(wall) * 100)
}

func dirSize(ctx context.Context, root string) (int64, error) {
	if root == "" {
		return 0, nil
	}
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total, err
}
