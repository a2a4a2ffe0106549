package collector

import (
	"log/slog"

	"github.com/shirou/gopsutil/v3/process"

	"jobprof.sh/internal/metric"
)

// MemorySampler reads resident memory per process, in binary MB.
type MemorySampler struct {
	history
	logger *slog.Logger
}

func NewMemorySampler(logger *slog.Logger) *MemorySampler {
	return &MemorySampler{logger: logger.With("collector", "memory")}
}

func (s *MemorySampler) Kind() metric.Kind { return metric.Memory }

func (s *MemorySampler) Collect(pid, parentPID int32, round int) *metric.Record {
	ts := metric.Now()

	p, err := process.NewProcess(pid)
	if err != nil {
		s.logger.Warn("Process no longer exists", "pid", pid, "error", err)
		return nil
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		s.logger.Warn("Failed to read memory info", "pid", pid, "error", err)
		return nil
	}

	rec := &metric.Record{
		Kind:         metric.Memory,
		Timestamp:    ts,
		CollectionID: round,
		PID:          pid,
		ParentPID:    parentPID,
		Fields: map[string]float64{
			"memory_usage": float64(info.RSS >> 20),
		},
	}
	s.append(rec)
	return rec
}
