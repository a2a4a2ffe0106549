package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"jobprof.sh/internal/control"
	"jobprof.sh/internal/exporter"
	"jobprof.sh/internal/job"
	"jobprof.sh/internal/profiler"
)

var (
	monitorPID        int32
	monitorInterval   time.Duration
	monitorGateway    string
	monitorJobName    string
	monitorSessionID  string
	monitorJobID      string
	monitorExecutorID string
	monitorCallID     string
	monitorLogLevel   string
)

// monitorCmd is the child-process entry point the supervisor spawns. Its
// stdin/stdout pair is the control channel, so it is not meant for direct
// use and stays hidden.
var monitorCmd = &cobra.Command{
	Use:    "monitor",
	Short:  "Run the profiler loop against a process tree (internal)",
	Hidden: true,
	RunE:   runMonitor,
}

func init() {
	monitorCmd.Flags().Int32Var(&monitorPID, "pid", 0, "Root pid of the monitored process tree")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", profiler.DefaultInterval, "Sampling interval")
	monitorCmd.Flags().StringVar(&monitorGateway, "gateway", "", "Metrics gateway base URL (empty disables export)")
	monitorCmd.Flags().StringVar(&monitorJobName, "job-name", "jobprof", "Gateway job segment")
	monitorCmd.Flags().StringVar(&monitorSessionID, "session-id", "", "Worker session id")
	monitorCmd.Flags().StringVar(&monitorJobID, "job-id", "", "Job identifier label")
	monitorCmd.Flags().StringVar(&monitorExecutorID, "executor-id", "", "Executor identifier label")
	monitorCmd.Flags().StringVar(&monitorCallID, "call-id", "", "Call identifier label")
	monitorCmd.Flags().StringVar(&monitorLogLevel, "log-level", "info", "Log level")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorPID <= 0 {
		return fmt.Errorf("--pid is required")
	}
	logger := newLogger(monitorLogLevel)

	gateway := exporter.NewGateway(exporter.Config{
		Enabled:    monitorGateway != "",
		GatewayURL: monitorGateway,
		JobName:    monitorJobName,
		SessionID:  monitorSessionID,
	}, nil, logger)

	conn := control.NewPipeConn(os.Stdin, os.Stdout)

	p := profiler.New(logger)
	p.Run(conn, monitorPID, gateway, job.Descriptor{
		JobID:      monitorJobID,
		ExecutorID: monitorExecutorID,
		CallID:     monitorCallID,
	}, monitorInterval)
	return nil
}
