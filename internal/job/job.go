// Package job defines the descriptor contract the owning runtime passes
// to the profiler. The identifiers are opaque; they only ever appear as
// export labels.
package job

// Descriptor identifies the supervised invocation.
type Descriptor struct {
	JobID      string `json:"job_id" yaml:"job_id"`
	ExecutorID string `json:"executor_id" yaml:"executor_id"`
	CallID     string `json:"call_id" yaml:"call_id"`
}
