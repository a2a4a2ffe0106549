package collector

import (
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"jobprof.sh/internal/metric"
)

// cpuSampleWindow is the window for the instantaneous utilization
// reading. It is a point measurement, not derived from history.
const cpuSampleWindow = 10 * time.Millisecond

// CPUSampler reads per-process CPU utilization and accumulated times.
type CPUSampler struct {
	history
	logger *slog.Logger
}

func NewCPUSampler(logger *slog.Logger) *CPUSampler {
	return &CPUSampler{logger: logger.With("collector", "cpu")}
}

func (s *CPUSampler) Kind() metric.Kind { return metric.CPU }

func (s *CPUSampler) Collect(pid, parentPID int32, round int) *metric.Record {
	ts := metric.Now()

	p, err := process.NewProcess(pid)
	if err != nil {
		s.logger.Warn("Process no longer exists", "pid", pid, "error", err)
		return nil
	}
	usage, err := p.Percent(cpuSampleWindow)
	if err != nil {
		s.logger.Warn("Failed to read cpu percent", "pid", pid, "error", err)
		return nil
	}
	times, err := p.Times()
	if err != nil {
		s.logger.Warn("Failed to read cpu times", "pid", pid, "error", err)
		return nil
	}
	childUser, childSystem := childrenTimes(pid)

	rec := &metric.Record{
		Kind:         metric.CPU,
		Timestamp:    ts,
		CollectionID: round,
		PID:          pid,
		ParentPID:    parentPID,
		Fields: map[string]float64{
			"cpu_usage":            usage,
			"user_time":            times.User,
			"system_time":          times.System,
			"children_user_time":   childUser,
			"children_system_time": childSystem,
			"iowait_time":          times.Iowait,
		},
	}
	s.append(rec)
	return rec
}

// Prime seeds gopsutil's per-process CPU accounting so the first Percent
// reading against pid is meaningful.
func Prime(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	_, err = p.Percent(0)
	return err
}
