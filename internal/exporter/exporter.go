// Package exporter pushes text-formatted metric samples to the remote
// metrics gateway. Export failures are logged and swallowed; the profiling
// loop must never fail because the gateway is unhealthy.
package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Labels is an ordered list of key/value pairs. Order matters because the
// gateway encodes labels as URL path segments.
type Labels [][2]string

// Sender is the contract the profiler depends on. Implementations never
// surface errors to the caller.
type Sender interface {
	Send(name string, value float64, metricType string, labels Labels)
	SendAt(name string, value float64, metricType string, labels Labels, ts time.Time)
}

// Config configures the gateway exporter.
type Config struct {
	// Enabled gates all pushes; a disabled exporter is a no-op.
	Enabled bool
	// GatewayURL is the base URL of the metrics gateway.
	GatewayURL string
	// JobName is the fixed job segment of the push path.
	JobName string
	// SessionID identifies the worker session; the instance label is its
	// first dash-separated segment.
	SessionID string
}

// Gateway pushes each metric synchronously over HTTP.
type Gateway struct {
	enabled  bool
	base     string
	job      string
	instance string
	client   *http.Client
	logger   *slog.Logger
}

// NewGateway builds a gateway exporter. A nil client gets a default with a
// request timeout, so a hung gateway stalls a round but not forever.
func NewGateway(cfg Config, client *http.Client, logger *slog.Logger) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	instance := cfg.SessionID
	if i := strings.Index(instance, "-"); i >= 0 {
		instance = instance[:i]
	}
	return &Gateway{
		enabled:  cfg.Enabled,
		base:     strings.TrimRight(cfg.GatewayURL, "/"),
		job:      cfg.JobName,
		instance: instance,
		client:   client,
		logger:   logger.With("component", "exporter"),
	}
}

// Send pushes one metric without an explicit timestamp.
func (g *Gateway) Send(name string, value float64, metricType string, labels Labels) {
	g.push(name, value, metricType, labels, nil)
}

// SendAt pushes one metric with an explicit sample timestamp.
func (g *Gateway) SendAt(name string, value float64, metricType string, labels Labels, ts time.Time) {
	g.push(name, value, metricType, labels, &ts)
}

func (g *Gateway) push(name string, value float64, metricType string, labels Labels, ts *time.Time) {
	if !g.enabled || g.base == "" {
		return
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		g.logger.Warn("Dropping non-finite metric value", "name", name, "value", value)
		return
	}

	var path strings.Builder
	fmt.Fprintf(&path, "%s/metrics/job/%s/instance/%s", g.base, g.job, g.instance)
	for _, kv := range labels {
		fmt.Fprintf(&path, "/%s/%s", kv[0], kv[1])
	}

	payload := fmt.Sprintf("# TYPE %s %s\n", name, metricType)
	line := name + " " + strconv.FormatFloat(value, 'g', -1, 64)
	if ts != nil {
		line += " " + strconv.FormatInt(ts.UnixMilli(), 10)
	}
	payload += line + "\n"

	resp, err := g.client.Post(path.String(), "text/plain", strings.NewReader(payload))
	if err != nil {
		g.logger.Error("Failed to send metric", "name", name, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.Error("Gateway rejected metric",
			"name", name, "status", resp.StatusCode, "body", string(body))
		return
	}
	io.Copy(io.Discard, resp.Body)
}
