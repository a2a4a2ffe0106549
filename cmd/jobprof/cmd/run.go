package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"jobprof.sh/internal/config"
	"jobprof.sh/internal/control"
	"jobprof.sh/internal/exporter"
	"jobprof.sh/internal/job"
	"jobprof.sh/internal/supervisor"
)

var (
	runConfigPath string
	runGateway    string
	runSessionID  string
	runJobID      string
	runExecutorID string
	runCallID     string
	runInterval   time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command under resource profiling",
	Long: `Run starts the given command, profiles its whole process tree in an
isolated monitor process, and pushes every sample to the configured
metrics gateway until the command exits.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to a config file")
	runCmd.Flags().StringVar(&runGateway, "gateway", "", "Metrics gateway base URL")
	runCmd.Flags().StringVar(&runSessionID, "session-id", "", "Worker session id")
	runCmd.Flags().StringVar(&runJobID, "job-id", "", "Job identifier label (generated when empty)")
	runCmd.Flags().StringVar(&runExecutorID, "executor-id", "", "Executor identifier label")
	runCmd.Flags().StringVar(&runCallID, "call-id", "", "Call identifier label")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Sampling interval (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	if runGateway != "" {
		cfg.GatewayURL = runGateway
	}
	if runSessionID != "" {
		cfg.SessionID = runSessionID
	}
	if runInterval > 0 {
		cfg.Interval = runInterval
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := exec.CommandContext(ctx, args[0], args[1:]...)
	target.Stdin = os.Stdin
	target.Stdout = os.Stdout
	target.Stderr = os.Stderr
	if err := target.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", args[0], err)
	}

	jb := job.Descriptor{
		JobID:      runJobID,
		ExecutorID: runExecutorID,
		CallID:     runCallID,
	}
	if jb.JobID == "" {
		jb.JobID = uuid.NewString()[:8]
	}

	supCfg := supervisor.Config{
		RootPID:  int32(target.Process.Pid),
		Interval: cfg.Interval,
		Job:      jb,
		Exporter: exporter.Config{
			Enabled:    cfg.Enabled,
			GatewayURL: cfg.GatewayURL,
			JobName:    cfg.JobName,
			SessionID:  cfg.SessionID,
		},
		LogLevel:    cfg.LogLevel,
		StopTimeout: cfg.StopTimeout,
	}

	// The run command doubles as the job runner: it reports completion on
	// its end of the runner channel before the supervisor releases.
	local, remote := control.Pair()

	var waitErr error
	err = supervisor.With(ctx, supCfg, local, logger, func(h *supervisor.Handle) error {
		logger.Info("Profiling started",
			"target_pid", target.Process.Pid, "monitor_pid", h.PID(), "job_id", jb.JobID)
		waitErr = target.Wait()
		if err := remote.Send(control.TokenFinished); err != nil {
			logger.Debug("Failed to report completion on runner channel", "error", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if waitErr != nil {
		return fmt.Errorf("command failed: %w", waitErr)
	}
	return nil
}
