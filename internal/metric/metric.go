// Package metric defines the typed sample records produced by the
// profiling collectors and the arithmetic defined over them.
package metric

import (
	"errors"
	"time"
)

// Kind identifies the concrete record type. Arithmetic is only defined
// between records of the same kind.
type Kind int

const (
	CPU Kind = iota
	Memory
	Disk
	Network
)

func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case Memory:
		return "memory"
	case Disk:
		return "disk"
	case Network:
		return "network"
	default:
		return "unknown"
	}
}

// PerProcess reports whether records of this kind are scoped to a single
// process. Network records are system-wide.
func (k Kind) PerProcess() bool {
	return k != Network
}

// kindFields holds the additive field names per kind, in export order.
// These are the only fields that participate in Add/Sub/Div.
var kindFields = map[Kind][]string{
	CPU:     {"cpu_usage", "user_time", "system_time", "children_user_time", "children_system_time", "iowait_time"},
	Memory:  {"memory_usage"},
	Disk:    {"disk_read_mb", "disk_write_mb", "disk_read_rate", "disk_write_rate"},
	Network: {"net_read_mb", "net_write_mb", "net_read_rate", "net_write_rate"},
}

// FieldNames returns the additive field names for a kind, in the order
// they are exported. The returned slice must not be modified.
func FieldNames(k Kind) []string {
	return kindFields[k]
}

var (
	// ErrKindMismatch is returned when arithmetic is attempted between
	// records of different kinds.
	ErrKindMismatch = errors.New("metric kinds differ")
	// ErrDivideByZero is returned by Div when the divisor is zero.
	ErrDivideByZero = errors.New("divide by zero")
)

// Record is one sample of one kind. Records are created once per
// (collector, round) and never mutated afterwards.
type Record struct {
	Kind         Kind
	Timestamp    float64 // unix seconds
	CollectionID int     // sampling round that produced the record
	PID          int32   // process kinds only
	ParentPID    int32   // supervised ancestor, not necessarily the OS parent
	Fields       map[string]float64
}

// Value returns the named additive field, or zero if absent.
func (r *Record) Value(name string) float64 {
	return r.Fields[name]
}

// Before orders records by timestamp only.
func (r *Record) Before(other *Record) bool {
	return r.Timestamp < other.Timestamp
}

// Add returns a new record whose additive fields are the element-wise sum
// of a and b. The timestamp is the later of the two; collection id, pid and
// parent pid carry over from a.
func Add(a, b *Record) (*Record, error) {
	if a.Kind != b.Kind {
		return nil, ErrKindMismatch
	}
	out := derive(a, max(a.Timestamp, b.Timestamp))
	for _, name := range kindFields[a.Kind] {
		out.Fields[name] = a.Fields[name] + b.Fields[name]
	}
	return out, nil
}

// Sub returns a new record whose additive fields are a minus b,
// element-wise. Timestamp and identity carry as in Add.
func Sub(a, b *Record) (*Record, error) {
	if a.Kind != b.Kind {
		return nil, ErrKindMismatch
	}
	out := derive(a, max(a.Timestamp, b.Timestamp))
	for _, name := range kindFields[a.Kind] {
		out.Fields[name] = a.Fields[name] - b.Fields[name]
	}
	return out, nil
}

// Div divides every additive field of a by n, keeping a's timestamp.
// Used for averaging a summed sequence of records.
func Div(a *Record, n float64) (*Record, error) {
	if n == 0 {
		return nil, ErrDivideByZero
	}
	out := derive(a, a.Timestamp)
	for _, name := range kindFields[a.Kind] {
		out.Fields[name] = a.Fields[name] / n
	}
	return out, nil
}

func derive(a *Record, ts float64) *Record {
	return &Record{
		Kind:         a.Kind,
		Timestamp:    ts,
		CollectionID: a.CollectionID,
		PID:          a.PID,
		ParentPID:    a.ParentPID,
		Fields:       make(map[string]float64, len(kindFields[a.Kind])),
	}
}

// Now returns the current wall clock as unix seconds.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
