// Package model contains domain models passed between layers.
package model

import "time"

// JobStatus is the lifecycle state of an optimization job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job will not change again.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job is an asynchronous optimization request for a stored session.
type Job struct {
	ID             string    // job id, also the store key
	SessionID      string    // session to optimize
	IdempotencyKey string    // optional client key
	EnqueuedAt     time.Time // time the job was accepted
}
