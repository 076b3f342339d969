package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/ports/repository"
	"blueprint-room-pipeline/internal/usecase"
)

// PipelineProcessor polls the job registry for pending jobs and hands each
// claimed job to the orchestrator on a pool worker. Claiming happens inside
// FetchAndMarkRunning, so two processors never race for the same job.
type PipelineProcessor struct {
	jobs         repository.JobRegistry
	orchestrator usecase.PipelineOrchestrator
	subs         repository.SubscriptionDirectory
	pollInterval time.Duration
	log          *zerolog.Logger
}

func NewPipelineProcessor(
	jobs repository.JobRegistry,
	orchestrator usecase.PipelineOrchestrator,
	subs repository.SubscriptionDirectory,
	pollInterval time.Duration,
	logger *zerolog.Logger,
) *PipelineProcessor {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &PipelineProcessor{
		jobs:         jobs,
		orchestrator: orchestrator,
		subs:         subs,
		pollInterval: pollInterval,
		log:          logger,
	}
}

// Start runs the polling loop until ctx is cancelled. Run it in a goroutine.
func (p *PipelineProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("poll_interval", p.pollInterval).Msg("pipeline processor started")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("pipeline processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx)
				return nil
			})
		}
	}
}

func (p *PipelineProcessor) processOne(ctx context.Context) {
	job, err := p.jobs.FetchAndMarkRunning(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("job claim failed")
		}
		return
	}

	p.log.Info().Str("job_id", job.ID).Msg("job claimed")
	start := time.Now()

	status, err := p.orchestrator.Run(ctx, job.ID)
	if err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("pipeline run failed")
	}

	// The terminal event has been published; the channel set serves no
	// further deliveries, so drop it instead of waiting out the TTL.
	if status.Terminal() {
		if err := p.subs.Clear(ctx, job.ID); err != nil {
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("subscription cleanup failed")
		}
	}

	p.log.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Dur("duration", time.Since(start)).
		Msg("job finished")
}
