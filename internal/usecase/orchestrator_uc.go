package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blueprint-room-pipeline/internal/backoff"
	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/repository"
	"blueprint-room-pipeline/internal/infra/logging"
	"blueprint-room-pipeline/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ PipelineOrchestrator = (*orchestrator)(nil)

// PipelineOrchestrator drives one job through preview → intermediate → final
// and reports the terminal state. The state machine is a closed set: each
// running state either advances to the next stage, or falls into the
// absorbing Failed/Cancelled states.
type PipelineOrchestrator interface {
	Run(ctx context.Context, jobID string) (model.JobStatus, error)
}

type orchestrator struct {
	jobs      repository.JobRegistry
	artifacts repository.ArtifactStore
	stages    []StageExecutor
	notifier  ProgressNotifier
	policy    backoff.Policy
	budget    time.Duration
	log       *zerolog.Logger
}

func NewPipelineOrchestrator(
	jobs repository.JobRegistry,
	artifacts repository.ArtifactStore,
	stages []StageExecutor,
	notifier ProgressNotifier,
	policy backoff.Policy,
	budget time.Duration,
	logger *zerolog.Logger,
) *orchestrator {
	return &orchestrator{
		jobs:      jobs,
		artifacts: artifacts,
		stages:    stages,
		notifier:  notifier,
		policy:    policy,
		budget:    budget,
		log:       logger,
	}
}

func (o *orchestrator) Run(ctx context.Context, jobID string) (model.JobStatus, error) {
	log := logging.With(logging.WithJobID(ctx, jobID), o.log)
	start := time.Now()

	job, err := o.jobs.GetStatus(ctx, repository.NoTX, jobID)
	if err != nil {
		return model.JobStatusFailed, fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		return job.Status, domain.ErrJobFinished
	}

	var prior *model.StageArtifact
	// Artifacts whose store writes failed; re-tried at each following
	// transition and once more before any terminal state, so an in-memory
	// result is never silently lost.
	var unpersisted []*model.StageArtifact

	for _, exec := range o.stages {
		stage := exec.Stage()

		// Cooperative cancellation, polled only at stage boundaries.
		cancelled, err := o.jobs.IsCancelled(ctx, jobID)
		if err != nil {
			log.Warn().Err(err).Msg("cancellation check failed; assuming not cancelled")
		}
		if cancelled {
			o.retryPersist(ctx, &unpersisted, log)
			return o.finish(ctx, job, stage, model.JobStatusCancelled, "")
		}

		o.retryPersist(ctx, &unpersisted, log)

		if err := o.jobs.UpdateStatus(ctx, repository.NoTX, jobID, stage, model.JobStatusRunning, 0, ""); err != nil {
			log.Warn().Err(err).Str("stage", string(stage)).Msg("status update failed")
		}

		artifact, persisted, err := o.runStage(ctx, job, exec, prior, log)
		if err != nil {
			o.retryPersist(ctx, &unpersisted, log)
			msg := failureMessage(stage, err, prior != nil)
			return o.finish(ctx, job, stage, model.JobStatusFailed, msg)
		}
		if !persisted {
			unpersisted = append(unpersisted, artifact)
		}
		prior = artifact
	}

	o.retryPersist(ctx, &unpersisted, log)

	elapsed := time.Since(start)
	if o.budget > 0 && elapsed > o.budget {
		log.Warn().Dur("elapsed", elapsed).Dur("budget", o.budget).Msg("pipeline exceeded latency budget")
	}
	log.Info().Dur("elapsed", elapsed).Msg("pipeline completed")
	return o.finish(ctx, job, model.StageFinal, model.JobStatusCompleted, "")
}

// runStage executes one stage with the per-stage retry policy. Only
// transient errors are retried; the attempt count is persisted so a resumed
// worker sees where the previous one stopped.
func (o *orchestrator) runStage(ctx context.Context, job *model.Job, exec StageExecutor, prior *model.StageArtifact, log *zerolog.Logger) (*model.StageArtifact, bool, error) {
	stage := exec.Stage()
	var lastErr error
	for attempt := 0; attempt <= o.policy.MaxAttempts; attempt++ {
		artifact, persisted, err := exec.Execute(ctx, job, prior)
		if err == nil {
			return artifact, persisted, nil
		}
		lastErr = err
		if !domain.Retryable(err) {
			log.Error().Err(err).Str("stage", string(stage)).Msg("stage failed (non-retryable)")
			return nil, false, err
		}
		if attempt == o.policy.MaxAttempts {
			break
		}
		log.Warn().Err(err).Str("stage", string(stage)).Int("attempt", attempt+1).Msg("stage failed; retrying")
		if err := o.jobs.UpdateStatus(ctx, repository.NoTX, job.ID, stage, model.JobStatusRunning, attempt+1, err.Error()); err != nil {
			log.Warn().Err(err).Msg("attempt update failed")
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(o.policy.Delay(attempt)):
		}
	}
	log.Error().Err(lastErr).Str("stage", string(stage)).Int("attempts", o.policy.MaxAttempts+1).Msg("stage retries exhausted")
	return nil, false, lastErr
}

// finish records the terminal transition and emits the matching event.
// Earlier stage artifacts are left untouched: a preview result stays
// retrievable even when the final stage failed.
func (o *orchestrator) finish(ctx context.Context, job *model.Job, stage model.Stage, status model.JobStatus, errMsg string) (model.JobStatus, error) {
	if err := o.jobs.UpdateStatus(ctx, repository.NoTX, job.ID, stage, status, 0, errMsg); err != nil {
		o.log.Error().Err(err).Str("job_id", job.ID).Msg("terminal status update failed")
	}
	metrics.IncPipelineJob(string(status))

	ev := &model.ProgressEvent{
		JobID:     job.ID,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	}
	switch status {
	case model.JobStatusCompleted:
		ev.Type = model.EventJobComplete
		ev.Progress = 100
		ev.Message = "room detection complete"
	case model.JobStatusCancelled:
		ev.Type = model.EventJobCancelled
		ev.Message = "job cancelled"
	default:
		ev.Type = model.EventJobFailed
		ev.Message = errMsg
	}
	o.notifier.Publish(ctx, job.ID, ev)

	if status == model.JobStatusFailed {
		return status, errors.New(errMsg)
	}
	return status, nil
}

func (o *orchestrator) retryPersist(ctx context.Context, unpersisted *[]*model.StageArtifact, log *zerolog.Logger) {
	if len(*unpersisted) == 0 {
		return
	}
	remaining := (*unpersisted)[:0]
	for _, artifact := range *unpersisted {
		err := o.artifacts.Put(ctx, artifact)
		if err == nil || errors.Is(err, domain.ErrArtifactExists) {
			continue
		}
		log.Warn().Err(err).Str("stage", string(artifact.Stage)).Msg("artifact re-persist failed")
		remaining = append(remaining, artifact)
	}
	*unpersisted = remaining
}

func failureMessage(stage model.Stage, err error, priorExists bool) string {
	if priorExists {
		return fmt.Sprintf("%s stage failed: %v (earlier stage results preserved)", stage, err)
	}
	return fmt.Sprintf("%s stage failed: %v", stage, err)
}
