package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sampler feeds the process gauges from the running process.
type Sampler struct {
	proc     *process.Process
	interval time.Duration
}

// NewSampler returns a sampler for the current process.
func NewSampler(interval time.Duration) (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process handle: %w", err)
	}
	return &Sampler{proc: proc, interval: interval}, nil
}

// Run samples on a ticker until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	GoroutinesActive.Set(float64(runtime.NumGoroutine()))

	if mem, err := s.proc.MemoryInfo(); err == nil {
		ProcessResidentBytes.Set(float64(mem.RSS))
	} else {
		slog.Debug("sample process memory", "err", err)
	}
	if cpu, err := s.proc.CPUPercent(); err == nil {
		ProcessCPUPercent.Set(cpu)
	} else {
		slog.Debug("sample process cpu", "err", err)
	}
}
