package repository

import (
	"context"

	"blueprint-room-pipeline/internal/domain/model"
)

// JobRegistry is the external job bookkeeping the pipeline consumes. Jobs are
// created elsewhere (the API layer); the orchestrator only reads them, claims
// pending ones, and records stage/status transitions.
type JobRegistry interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	GetStatus(ctx context.Context, tx Tx, jobID string) (*model.Job, error)
	// UpdateStatus records the orchestrator's state transition. errMsg is
	// empty except for failed transitions.
	UpdateStatus(ctx context.Context, tx Tx, jobID string, stage model.Stage, status model.JobStatus, attempt int, errMsg string) error
	// IsCancelled reads the cooperative cancellation flag. Checked only at
	// stage boundaries, never mid-stage.
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	RequestCancel(ctx context.Context, jobID string) error
	// FetchAndMarkRunning atomically claims the oldest pending job so that
	// concurrent workers never run the same pipeline twice.
	FetchAndMarkRunning(ctx context.Context) (*model.Job, error)
}
