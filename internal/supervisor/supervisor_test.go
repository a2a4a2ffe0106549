package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobprof.sh/internal/control"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWithReleasesCooperativeMonitor(t *testing.T) {
	// A stand-in monitor that exits as soon as the stop token arrives.
	cfg := Config{
		Command:     []string{"sh", "-c", "read line; exit 0"},
		StopTimeout: 5 * time.Second,
	}

	var h *Handle
	start := time.Now()
	err := With(context.Background(), cfg, nil, testLogger(), func(handle *Handle) error {
		h = handle
		assert.True(t, handle.Alive())
		assert.Greater(t, handle.PID(), 0)
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 3*time.Second, "cooperative monitor should not hit the kill path")
	assert.False(t, h.Alive(), "monitor must be gone after release")
}

func TestWithKillsStubbornMonitorWithinBound(t *testing.T) {
	// A monitor that never reads its control channel.
	cfg := Config{
		Command:     []string{"sleep", "60"},
		StopTimeout: time.Second,
	}

	var h *Handle
	start := time.Now()
	err := With(context.Background(), cfg, nil, testLogger(), func(handle *Handle) error {
		h = handle
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, cfg.StopTimeout)
	assert.Less(t, elapsed, 5*time.Second, "forced termination must be time-bounded")
	assert.False(t, h.Alive(), "monitor must be confirmed dead after the kill")
}

func TestReleaseForwardsJobrunnerFinished(t *testing.T) {
	local, remote := control.Pair()
	require.NoError(t, remote.Send(control.TokenFinished))

	cfg := Config{
		Command:     []string{"sh", "-c", "read line; exit 0"},
		StopTimeout: 5 * time.Second,
	}
	err := With(context.Background(), cfg, local, testLogger(), func(*Handle) error {
		return nil
	})
	require.NoError(t, err)

	token, ok := remote.Poll()
	require.True(t, ok, "runner should have been answered")
	assert.Equal(t, control.TokenStop, token)
}

func TestReleaseIgnoresIdleJobrunner(t *testing.T) {
	local, remote := control.Pair()

	cfg := Config{
		Command:     []string{"sh", "-c", "read line; exit 0"},
		StopTimeout: 5 * time.Second,
	}
	err := With(context.Background(), cfg, local, testLogger(), func(*Handle) error {
		return nil
	})
	require.NoError(t, err)

	_, ok := remote.Poll()
	assert.False(t, ok, "no token expected without a Finished signal")
}

func TestWithPropagatesScopeErrorAfterRelease(t *testing.T) {
	cfg := Config{
		Command:     []string{"sh", "-c", "read line; exit 0"},
		StopTimeout: 5 * time.Second,
	}

	scopeErr := errors.New("job failed")
	var h *Handle
	err := With(context.Background(), cfg, nil, testLogger(), func(handle *Handle) error {
		h = handle
		return scopeErr
	})

	assert.ErrorIs(t, err, scopeErr)
	assert.False(t, h.Alive(), "release must run even when the scope body fails")
}

func TestWithFailsOnUnstartableMonitor(t *testing.T) {
	cfg := Config{Command: []string{"/nonexistent-monitor-binary"}}

	err := With(context.Background(), cfg, nil, testLogger(), func(*Handle) error {
		t.Fatal("scope body must not run without a monitor")
		return nil
	})
	assert.Error(t, err)
}

func TestMonitorArgsEncodeConfig(t *testing.T) {
	cfg := Config{
		RootPID:  1234,
		Interval: 2 * time.Second,
	}
	cfg.Job.JobID = "J1"
	cfg.Exporter.Enabled = true
	cfg.Exporter.GatewayURL = "http://gw:9091"
	cfg.Exporter.JobName = "jobprof"
	cfg.Exporter.SessionID = "sess-1"

	args := monitorArgs(cfg)
	assert.Equal(t, "monitor", args[0])
	assert.Contains(t, args, "--pid")
	assert.Contains(t, args, "1234")
	assert.Contains(t, args, "--gateway")
	assert.Contains(t, args, "http://gw:9091")
}

func TestMonitorArgsOmitGatewayWhenDisabled(t *testing.T) {
	cfg := Config{RootPID: 1}
	cfg.Exporter.GatewayURL = "http://gw:9091"

	args := monitorArgs(cfg)
	assert.NotContains(t, args, "--gateway")
}
