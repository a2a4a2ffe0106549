package profiler

import (
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobprof.sh/internal/control"
	"jobprof.sh/internal/exporter"
	"jobprof.sh/internal/job"
)

type sendCall struct {
	name   string
	value  float64
	labels exporter.Labels
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sendCall
}

func (f *fakeSender) Send(name string, value float64, metricType string, labels exporter.Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{name: name, value: value, labels: labels})
}

func (f *fakeSender) SendAt(name string, value float64, metricType string, labels exporter.Labels, ts time.Time) {
	f.Send(name, value, metricType, labels)
}

func (f *fakeSender) snapshot() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

// stopAfterPolls delivers a stop token on the nth poll, which pins the
// profiler to exactly n rounds.
type stopAfterPolls struct {
	n      int
	polls  int
	closed bool
}

func (c *stopAfterPolls) Send(token string) error { return nil }

func (c *stopAfterPolls) Poll() (string, bool) {
	c.polls++
	if c.polls >= c.n {
		return control.TokenStop, true
	}
	return "", false
}

func (c *stopAfterPolls) Close() error {
	c.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startSubject(t *testing.T) int32 {
	t.Helper()
	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})
	return int32(cmd.Process.Pid)
}

func TestRunCollectsRequestedRoundsThenStops(t *testing.T) {
	pid := startSubject(t)
	sender := &fakeSender{}
	conn := &stopAfterPolls{n: 2}

	p := New(testLogger())
	assert.Equal(t, Idle, p.State())

	p.Run(conn, pid, sender, job.Descriptor{
		JobID:      "J1",
		ExecutorID: "E1",
		CallID:     "C1",
	}, time.Millisecond)

	assert.Equal(t, Stopped, p.State())
	assert.True(t, conn.closed, "control channel must be closed on exit")

	// Two rounds, one process, one network sample per round.
	set := p.Collectors()
	assert.Len(t, set.Memory.Records(), 2)
	assert.Len(t, set.CPU.Records(), 2)
	assert.Len(t, set.Network.Records(), 2)
	for i, rec := range set.Memory.Records() {
		assert.Equal(t, i, rec.CollectionID)
	}

	calls := sender.snapshot()
	require.NotEmpty(t, calls)
	for _, call := range calls {
		assert.Contains(t, call.labels, [2]string{"job_id", "J1"})
	}
}

func TestProcessRecordsCarryPidLabels(t *testing.T) {
	pid := startSubject(t)
	sender := &fakeSender{}

	p := New(testLogger())
	p.Run(&stopAfterPolls{n: 1}, pid, sender, job.Descriptor{JobID: "J1"}, time.Millisecond)

	pidLabel := [2]string{"pid", strconv.FormatInt(int64(pid), 10)}
	var sawPid, sawNetwork bool
	for _, call := range sender.snapshot() {
		switch call.name {
		case "memory_usage":
			sawPid = true
			assert.Contains(t, call.labels, pidLabel)
		case "net_read_mb":
			sawNetwork = true
			for _, kv := range call.labels {
				assert.NotEqual(t, "pid", kv[0], "network metrics are not process-scoped")
			}
		}
	}
	assert.True(t, sawPid)
	assert.True(t, sawNetwork)
}

func TestRunStopsWhenRootVanishes(t *testing.T) {
	cmd := exec.Command("sleep", "0.2")
	require.NoError(t, cmd.Start())
	go cmd.Wait()

	p := New(testLogger())
	done := make(chan struct{})
	go func() {
		p.Run(&stopAfterPolls{n: 1 << 30}, int32(cmd.Process.Pid), &fakeSender{},
			job.Descriptor{}, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, Stopped, p.State())
	case <-time.After(10 * time.Second):
		t.Fatal("profiler did not stop after the root process exited")
	}
}

type panickySender struct{}

func (panickySender) Send(string, float64, string, exporter.Labels) { panic("gateway client bug") }
func (panickySender) SendAt(string, float64, string, exporter.Labels, time.Time) {
	panic("gateway client bug")
}

func TestRunSurvivesPanicAndEndsStopped(t *testing.T) {
	pid := startSubject(t)

	p := New(testLogger())
	conn := &stopAfterPolls{n: 1}
	assert.NotPanics(t, func() {
		p.Run(conn, pid, panickySender{}, job.Descriptor{}, time.Millisecond)
	})
	assert.Equal(t, Stopped, p.State())
	assert.True(t, conn.closed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "stopped", Stopped.String())
}
