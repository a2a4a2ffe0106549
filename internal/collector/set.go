package collector

import (
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v3/process"

	"jobprof.sh/internal/metric"
)

// Set drives the four samplers over a process tree, one round at a time.
// Per-round order is fixed (memory, cpu, disk per process, then network
// once) so rounds are reproducible in tests.
type Set struct {
	CPU     *CPUSampler
	Memory  *MemorySampler
	Disk    *DiskSampler
	Network *NetworkSampler

	logger *slog.Logger
}

func NewSet(logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		CPU:     NewCPUSampler(logger),
		Memory:  NewMemorySampler(logger),
		Disk:    NewDiskSampler(logger),
		Network: NewNetworkSampler(logger),
		logger:  logger.With("component", "collector"),
	}
}

// treeProc is one snapshot entry of the monitored process tree.
type treeProc struct {
	pid       int32
	parentPID int32
}

// CollectAll samples every process rooted at rootPID plus one global
// network record, tagging everything with the given round id. The returned
// records are in collection order. An error means the root itself is gone;
// descendants that vanish mid-round are skipped silently.
func (s *Set) CollectAll(rootPID int32, round int) ([]*metric.Record, error) {
	procs, err := processTree(rootPID)
	if err != nil {
		return nil, fmt.Errorf("resolving process tree for pid %d: %w", rootPID, err)
	}

	records := make([]*metric.Record, 0, 3*len(procs)+1)
	for _, pr := range procs {
		if rec := s.Memory.Collect(pr.pid, pr.parentPID, round); rec != nil {
			records = append(records, rec)
		}
		if rec := s.CPU.Collect(pr.pid, pr.parentPID, round); rec != nil {
			records = append(records, rec)
		}
		if rec := s.Disk.Collect(pr.pid, pr.parentPID, round); rec != nil {
			records = append(records, rec)
		}
	}

	if rec := s.Network.Collect(round); rec != nil {
		records = append(records, rec)
	}
	return records, nil
}

// processTree snapshots the root process and all its descendants,
// transitively, in breadth-first order. Processes appearing or vanishing
// between rounds are picked up or dropped by the next snapshot.
func processTree(rootPID int32) ([]treeProc, error) {
	root, err := process.NewProcess(rootPID)
	if err != nil {
		return nil, err
	}

	seen := map[int32]bool{rootPID: true}
	queue := []*process.Process{root}
	var out []treeProc

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		parentPID, err := p.Ppid()
		if err != nil {
			parentPID = 0
		}
		out = append(out, treeProc{pid: p.Pid, parentPID: parentPID})

		children, err := p.Children()
		if err != nil {
			// No children, or the process went away mid-walk.
			continue
		}
		for _, child := range children {
			if seen[child.Pid] {
				continue
			}
			seen[child.Pid] = true
			queue = append(queue, child)
		}
	}
	return out, nil
}
