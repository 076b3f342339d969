package model

import "time"

type EventType string

const (
	EventProgressUpdate EventType = "progress_update"
	EventStageComplete  EventType = "stage_complete"
	EventJobComplete    EventType = "job_complete"
	EventJobFailed      EventType = "job_failed"
	EventJobCancelled   EventType = "job_cancelled"
)

// ProgressEvent is transmitted to every channel subscribed to a job. Events
// are transient and never persisted. EventID is a monotonic ULID so receivers
// can verify per-job publish order.
type ProgressEvent struct {
	EventID                   string    `json:"event_id"`
	Type                      EventType `json:"type"`
	JobID                     string    `json:"job_id"`
	Stage                     Stage     `json:"stage"`
	Progress                  int       `json:"progress"`
	Message                   string    `json:"message"`
	EstimatedSecondsRemaining int       `json:"estimated_seconds_remaining"`
	Timestamp                 time.Time `json:"timestamp"`
}
