package collector

import (
	"log/slog"

	"github.com/shirou/gopsutil/v3/process"

	"jobprof.sh/internal/metric"
)

// DiskSampler reads cumulative per-process disk io and derives read/write
// rates from the previous sample for the same pid.
type DiskSampler struct {
	history
	logger *slog.Logger
}

func NewDiskSampler(logger *slog.Logger) *DiskSampler {
	return &DiskSampler{logger: logger.With("collector", "disk")}
}

func (s *DiskSampler) Kind() metric.Kind { return metric.Disk }

func (s *DiskSampler) Collect(pid, parentPID int32, round int) *metric.Record {
	ts := metric.Now()

	p, err := process.NewProcess(pid)
	if err != nil {
		s.logger.Warn("Process no longer exists", "pid", pid, "error", err)
		return nil
	}
	counters, err := p.IOCounters()
	if err != nil || counters == nil {
		s.logger.Warn("Failed to read io counters", "pid", pid, "error", err)
		return nil
	}

	readMB := float64(counters.ReadBytes) / bytesPerMB
	writeMB := float64(counters.WriteBytes) / bytesPerMB

	var readRate, writeRate float64
	if prev := s.lastForPID(pid); prev != nil {
		dt := ts - prev.Timestamp
		readRate = rateBetween(readMB, prev.Value("disk_read_mb"), dt)
		writeRate = rateBetween(writeMB, prev.Value("disk_write_mb"), dt)
	}

	rec := &metric.Record{
		Kind:         metric.Disk,
		Timestamp:    ts,
		CollectionID: round,
		PID:          pid,
		ParentPID:    parentPID,
		Fields: map[string]float64{
			"disk_read_mb":    readMB,
			"disk_write_mb":   writeMB,
			"disk_read_rate":  readRate,
			"disk_write_rate": writeRate,
		},
	}
	s.append(rec)
	return rec
}
