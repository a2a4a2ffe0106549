// Package profiler drives the periodic sampling loop inside the monitor
// process: collect a round, export it, check for a stop token, sleep.
package profiler

import (
	"log/slog"
	"math/rand"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"jobprof.sh/internal/collector"
	"jobprof.sh/internal/control"
	"jobprof.sh/internal/exporter"
	"jobprof.sh/internal/job"
	"jobprof.sh/internal/metric"
)

// DefaultInterval is the sampling cadence when none is configured.
const DefaultInterval = 10 * time.Second

// State is the profiler lifecycle. Stopped is terminal.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Profiler owns the collectors and the sampling loop. It is driven by a
// single goroutine; State is safe to read from others.
type Profiler struct {
	set    *collector.Set
	state  atomic.Int32
	logger *slog.Logger
}

func New(logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiler{
		set:    collector.NewSet(logger),
		logger: logger.With("component", "profiler"),
	}
}

// Collectors exposes the sampler histories, mainly for tests and live
// state queries.
func (p *Profiler) Collectors() *collector.Set {
	return p.set
}

func (p *Profiler) State() State {
	return State(p.state.Load())
}

func (p *Profiler) setState(s State) {
	p.state.Store(int32(s))
}

// Run executes the sampling loop until a stop token arrives on conn or the
// monitored root process vanishes. Whatever happens inside the loop, the
// profiler ends Stopped with conn closed: the monitor process must never
// hang its supervisor.
func (p *Profiler) Run(conn control.Conn, rootPID int32, sender exporter.Sender, jb job.Descriptor, interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Profiler loop panicked",
				"panic", r, "stack", string(debug.Stack()))
		}
		p.setState(Stopped)
		if err := conn.Close(); err != nil {
			p.logger.Debug("Failed to close control channel", "error", err)
		}
	}()

	if interval <= 0 {
		interval = DefaultInterval
	}
	p.logger.Debug("Profiler starting", "pid", rootPID, "interval", interval)

	// Seed cpu accounting so the first utilization reading is meaningful.
	if err := collector.Prime(rootPID); err != nil {
		p.logger.Warn("Failed to prime cpu tracking", "pid", rootPID, "error", err)
	}

	staticLabels := exporter.Labels{
		{"job_id", jb.JobID},
		{"executor_id", jb.ExecutorID},
		{"call_id", jb.CallID},
	}

	p.setState(Running)
	for round := 0; ; round++ {
		start := time.Now()

		records, err := p.set.CollectAll(rootPID, round)
		// Export whatever the round produced, even when it ended early.
		p.export(sender, records, staticLabels)
		if err != nil {
			p.logger.Warn("Monitored process no longer exists, stopping collection",
				"pid", rootPID, "error", err)
			return
		}

		if token, ok := conn.Poll(); ok && token == control.TokenStop {
			p.logger.Debug("Received stop token, completing current collection")
			p.setState(Stopping)
			return
		}

		sleepUntilNextRound(start, interval)
	}
}

func (p *Profiler) export(sender exporter.Sender, records []*metric.Record, static exporter.Labels) {
	for _, rec := range records {
		labels := static
		if rec.Kind.PerProcess() {
			labels = make(exporter.Labels, 0, len(static)+2)
			labels = append(labels, static...)
			labels = append(labels,
				[2]string{"pid", strconv.FormatInt(int64(rec.PID), 10)},
				[2]string{"parent_pid", strconv.FormatInt(int64(rec.ParentPID), 10)},
			)
		}
		for _, name := range metric.FieldNames(rec.Kind) {
			sender.Send(name, rec.Value(name), "gauge", labels)
		}
	}
}

// sleepUntilNextRound waits out the rest of the interval plus a sub-second
// jitter that desynchronizes agents pushing to the same gateway.
func sleepUntilNextRound(start time.Time, interval time.Duration) {
	elapsed := time.Since(start)
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	if d := interval - elapsed + jitter; d > 0 {
		time.Sleep(d)
	}
}
