// Package collector samples live process and system state into metric
// records, one collector per metric kind, and aggregates them per round.
package collector

import (
	"jobprof.sh/internal/metric"
)

// ProcessSampler produces one record per (process, round). A nil record
// means the subject vanished between rounds; callers must tolerate that
// without aborting the round.
type ProcessSampler interface {
	Kind() metric.Kind
	Records() []*metric.Record
	Collect(pid, parentPID int32, round int) *metric.Record
}

// GlobalSampler produces one system-wide record per round.
type GlobalSampler interface {
	Kind() metric.Kind
	Records() []*metric.Record
	Collect(round int) *metric.Record
}

// history is the append-only, time-ordered record sequence every sampler
// owns. Round ids index it implicitly: lookups walk backwards to find the
// most recent sample for a subject.
type history struct {
	records []*metric.Record
}

func (h *history) append(r *metric.Record) {
	h.records = append(h.records, r)
}

// Records returns the full collected sequence, oldest first.
func (h *history) Records() []*metric.Record {
	return h.records
}

// lastForPID returns the most recent record for pid, or nil.
func (h *history) lastForPID(pid int32) *metric.Record {
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].PID == pid {
			return h.records[i]
		}
	}
	return nil
}

// last returns the most recent record regardless of subject, or nil.
func (h *history) last() *metric.Record {
	if len(h.records) == 0 {
		return nil
	}
	return h.records[len(h.records)-1]
}

// rateBetween derives a rate from two cumulative readings. A non-positive
// time delta yields zero rather than a division blow-up.
func rateBetween(current, previous, timeDiff float64) float64 {
	if timeDiff > 0 {
		return (current - previous) / timeDiff
	}
	return 0
}

const bytesPerMB = 1024.0 * 1024.0
