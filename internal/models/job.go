package models

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IngestJob is a transient unit of ingestion work. It is mutated once by the worker
// that processes it and dropped after its result is folded into the batch outcome.
type IngestJob struct {
	ID     string
	Query  TrackQuery
	Status JobStatus
	Record *TrackRecord
	Err    error
}

// IngestFailure is the caller-facing report of one failed job.
type IngestFailure struct {
	Query  TrackQuery `json:"query"`
	Reason string     `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// IngestResult summarizes one batch run.
type IngestResult struct {
	Inserted int             `json:"inserted"`
	IDs      []int64         `json:"ids,omitempty"`
	Failures []IngestFailure `json:"failures"`
}
