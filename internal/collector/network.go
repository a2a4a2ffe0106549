package collector

import (
	"log/slog"

	"github.com/shirou/gopsutil/v3/net"

	"jobprof.sh/internal/metric"
)

// NetworkSampler reads system-wide network counters. There is one record
// per round, not one per process, so rates derive from the single most
// recent sample.
type NetworkSampler struct {
	history
	logger *slog.Logger
}

func NewNetworkSampler(logger *slog.Logger) *NetworkSampler {
	return &NetworkSampler{logger: logger.With("collector", "network")}
}

func (s *NetworkSampler) Kind() metric.Kind { return metric.Network }

func (s *NetworkSampler) Collect(round int) *metric.Record {
	ts := metric.Now()

	counters, err := net.IOCounters(false)
	if err != nil || len(counters) == 0 {
		s.logger.Warn("Failed to read network counters", "error", err)
		return nil
	}

	readMB := float64(counters[0].BytesRecv) / bytesPerMB
	writeMB := float64(counters[0].BytesSent) / bytesPerMB

	var readRate, writeRate float64
	if prev := s.last(); prev != nil {
		dt := ts - prev.Timestamp
		readRate = rateBetween(readMB, prev.Value("net_read_mb"), dt)
		writeRate = rateBetween(writeMB, prev.Value("net_write_mb"), dt)
	}

	rec := &metric.Record{
		Kind:         metric.Network,
		Timestamp:    ts,
		CollectionID: round,
		Fields: map[string]float64{
			"net_read_mb":    readMB,
			"net_write_mb":   writeMB,
			"net_read_rate":  readRate,
			"net_write_rate": writeRate,
		},
	}
	s.append(rec)
	return rec
}
