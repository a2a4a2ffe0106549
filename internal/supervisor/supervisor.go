// Package supervisor owns the monitor process lifecycle: it spawns the
// profiler in an isolated child process, wires the control channels, and
// guarantees bounded shutdown on every exit path.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"jobprof.sh/internal/control"
	"jobprof.sh/internal/exporter"
	"jobprof.sh/internal/job"
)

// DefaultStopTimeout bounds how long release waits for the monitor to exit
// on its own before killing it.
const DefaultStopTimeout = 5 * time.Second

// Config describes the monitor process to spawn.
type Config struct {
	// RootPID is the process whose tree the monitor samples.
	RootPID int32
	// Interval is the sampling cadence.
	Interval time.Duration
	// Job labels every exported sample.
	Job job.Descriptor
	// Exporter configures the gateway push.
	Exporter exporter.Config
	// LogLevel is forwarded to the monitor process.
	LogLevel string
	// Command overrides the monitor invocation; when empty the current
	// executable is re-run with the monitor subcommand.
	Command []string
	// StopTimeout overrides DefaultStopTimeout when positive.
	StopTimeout time.Duration
}

// Handle is the live monitor the scope body gets to look at. Its process
// lifecycle belongs to the supervisor, not the caller.
type Handle struct {
	cmd  *exec.Cmd
	conn control.Conn
}

// PID returns the monitor's process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Alive reports whether the monitor process still exists.
func (h *Handle) Alive() bool {
	ok, err := process.PidExists(int32(h.cmd.Process.Pid))
	return err == nil && ok
}

// With runs fn with a live monitor process and releases it afterwards,
// whatever fn does. jobrunner is this context's end of the job-runner
// channel; a "Finished" token found on it during release is answered with
// a stop token. May be nil when no runner channel exists.
func With(ctx context.Context, cfg Config, jobrunner control.Conn, logger *slog.Logger, fn func(*Handle) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "supervisor")

	h, err := start(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting monitor process: %w", err)
	}
	defer release(h, jobrunner, cfg.StopTimeout, logger)

	return fn(h)
}

func start(ctx context.Context, cfg Config) (*Handle, error) {
	argv := cfg.Command
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}
		argv = append([]string{exe}, monitorArgs(cfg)...)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &Handle{
		cmd:  cmd,
		conn: control.NewPipeConn(stdout, stdin),
	}, nil
}

// monitorArgs encodes the config as monitor subcommand flags.
func monitorArgs(cfg Config) []string {
	args := []string{"monitor",
		"--pid", strconv.FormatInt(int64(cfg.RootPID), 10),
		"--interval", cfg.Interval.String(),
		"--job-id", cfg.Job.JobID,
		"--executor-id", cfg.Job.ExecutorID,
		"--call-id", cfg.Job.CallID,
		"--job-name", cfg.Exporter.JobName,
		"--session-id", cfg.Exporter.SessionID,
	}
	if cfg.Exporter.Enabled && cfg.Exporter.GatewayURL != "" {
		args = append(args, "--gateway", cfg.Exporter.GatewayURL)
	}
	if cfg.LogLevel != "" {
		args = append(args, "--log-level", cfg.LogLevel)
	}
	return args
}

// release runs the four shutdown steps. Each is guarded independently: a
// failure in one must not keep the rest from running.
func release(h *Handle, jobrunner control.Conn, stopTimeout time.Duration, logger *slog.Logger) {
	if err := h.conn.Send(control.TokenStop); err != nil {
		logger.Error("Failed to send stop token to monitor", "error", err)
	}

	if jobrunner != nil {
		forwardRunnerStop(jobrunner, logger)
	}

	finalize(h, stopTimeout, logger)

	if err := h.conn.Close(); err != nil {
		logger.Debug("Failed to close monitor channel", "error", err)
	}
	if jobrunner != nil {
		if err := jobrunner.Close(); err != nil {
			logger.Debug("Failed to close jobrunner channel", "error", err)
		}
	}
}

// forwardRunnerStop answers a pending "Finished" from the job runner with
// a stop token on the same channel.
func forwardRunnerStop(jobrunner control.Conn, logger *slog.Logger) {
	token, ok := jobrunner.Poll()
	if !ok || token != control.TokenFinished {
		return
	}
	if err := jobrunner.Send(control.TokenStop); err != nil {
		logger.Error("Failed to forward stop to jobrunner channel", "error", err)
	}
}

// finalize waits for the monitor to exit within the stop timeout and kills
// it if it does not. The wait after the kill has no timeout: a killed
// process must eventually reap.
func finalize(h *Handle, stopTimeout time.Duration, logger *slog.Logger) {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case err := <-done:
		logger.Debug("Monitor process exited", "error", err)
	case <-time.After(stopTimeout):
		logger.Warn("Monitor still alive after stop request, killing",
			"pid", h.PID(), "timeout", stopTimeout)
		if err := h.cmd.Process.Kill(); err != nil {
			logger.Error("Failed to kill monitor process", "error", err)
		}
		<-done
	}
}
