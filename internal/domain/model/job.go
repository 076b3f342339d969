package model

import "time"

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether a job in this status can no longer change.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job is the registry view of one blueprint-analysis job. The pipeline
// never creates jobs; it reads them, claims pending ones, and writes
// status/stage transitions back.
type Job struct {
	ID           string
	Status       JobStatus
	Stage        Stage // last stage recorded by the orchestrator
	BlueprintKey string
	Attempt      int // retry attempt within the current stage
	CancelFlag   bool
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
