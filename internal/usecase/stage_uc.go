package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/adapter"
	"blueprint-room-pipeline/internal/domain/ports/repository"
	"blueprint-room-pipeline/internal/infra/logging"
	"blueprint-room-pipeline/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// StageConfig fixes one stage's endpoint and processing mode.
type StageConfig struct {
	Stage             model.Stage
	EndpointID        string
	ModelVersion      string
	PreciseBoundaries bool // polygon output, final stage only
}

// Compile-time check
var _ StageExecutor = (*stageExecutor)(nil)

// StageExecutor runs one pipeline stage end to end: build model input from
// the prior artifact and/or raw drawing, invoke inference, post-process,
// persist the artifact and notify subscribers.
type StageExecutor interface {
	Stage() model.Stage
	// Execute returns the stage artifact. A nil error with a false persisted
	// flag means the artifact exists only in memory (store write failed);
	// the orchestrator retries persistence at the next transition.
	Execute(ctx context.Context, job *model.Job, prior *model.StageArtifact) (artifact *model.StageArtifact, persisted bool, err error)
}

type stageExecutor struct {
	cfg        StageConfig
	inference  adapter.InferenceAdapter
	artifacts  repository.ArtifactStore
	blueprints repository.BlueprintStore
	previews   repository.PreviewCache
	notifier   ProgressNotifier
	opts       ProcessOptions
	log        *zerolog.Logger
}

func NewStageExecutor(
	cfg StageConfig,
	inference adapter.InferenceAdapter,
	artifacts repository.ArtifactStore,
	blueprints repository.BlueprintStore,
	previews repository.PreviewCache,
	notifier ProgressNotifier,
	opts ProcessOptions,
	logger *zerolog.Logger,
) *stageExecutor {
	if cfg.Stage != model.StageFinal {
		cfg.PreciseBoundaries = false
	}
	return &stageExecutor{
		cfg:        cfg,
		inference:  inference,
		artifacts:  artifacts,
		blueprints: blueprints,
		previews:   previews,
		notifier:   notifier,
		opts:       opts,
		log:        logger,
	}
}

func (s *stageExecutor) Stage() model.Stage { return s.cfg.Stage }

func (s *stageExecutor) Execute(ctx context.Context, job *model.Job, prior *model.StageArtifact) (*model.StageArtifact, bool, error) {
	start := time.Now()
	log := logging.With(logging.WithStage(logging.WithJobID(ctx, job.ID), string(s.cfg.Stage)), s.log)
	defer logging.TraceDuration(log, "StageExecutor.Execute")()

	input, blueprintHash, err := s.buildInput(ctx, job, prior)
	if err != nil {
		return nil, false, err
	}

	s.notifier.Publish(ctx, job.ID, &model.ProgressEvent{
		Type:                      model.EventProgressUpdate,
		JobID:                     job.ID,
		Stage:                     s.cfg.Stage,
		Progress:                  startProgress(s.cfg.Stage),
		Message:                   fmt.Sprintf("%s stage started", s.cfg.Stage),
		EstimatedSecondsRemaining: estimateRemaining(s.cfg.Stage),
		Timestamp:                 time.Now().UTC(),
	})

	rooms, cached := s.cachedPreview(ctx, blueprintHash, log)
	var inferDur time.Duration
	if !cached {
		inferStart := time.Now()
		result, err := s.inference.Invoke(ctx, s.cfg.EndpointID, input, s.cfg.ModelVersion)
		inferDur = time.Since(inferStart)
		metrics.ObserveInference(string(s.cfg.Stage), inferDur, err == nil)
		if err != nil {
			return nil, false, fmt.Errorf("invoke %s endpoint: %w", s.cfg.Stage, err)
		}

		opts := s.opts
		opts.PreciseBoundaries = s.cfg.PreciseBoundaries
		rooms = PostProcess(result.Detections, result.TextBlocks, opts)
		s.storePreview(ctx, blueprintHash, rooms, log)
	}

	artifact := &model.StageArtifact{
		JobID:                 job.ID,
		Stage:                 s.cfg.Stage,
		Rooms:                 rooms,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		Timestamp:             time.Now().UTC(),
		SchemaVersion:         model.ArtifactSchemaVersion,
	}

	// Persistence is best-effort: the in-memory artifact still feeds the next
	// stage, and the orchestrator re-tries the write on the next transition.
	persisted := true
	if err := s.artifacts.Put(ctx, artifact); err != nil {
		persisted = false
		log.Error().Err(err).Msg("artifact write failed; continuing with in-memory result")
	}

	s.notifier.Publish(ctx, job.ID, &model.ProgressEvent{
		Type:      model.EventStageComplete,
		JobID:     job.ID,
		Stage:     s.cfg.Stage,
		Progress:  completeProgress(s.cfg.Stage),
		Message:   fmt.Sprintf("%s stage complete: %d rooms", s.cfg.Stage, len(rooms)),
		Timestamp: time.Now().UTC(),
	})

	log.Info().
		Int("rooms", len(rooms)).
		Dur("inference", inferDur).
		Float64("stage_seconds", artifact.ProcessingTimeSeconds).
		Msg("stage finished")
	metrics.ObserveStageDuration(string(s.cfg.Stage), time.Since(start))
	return artifact, persisted, nil
}

// buildInput assembles the endpoint payload. The preview stage reads and
// normalizes the raw drawing and also returns the hash of the stored bytes,
// which keys the preview cache; later stages refine the prior artifact.
func (s *stageExecutor) buildInput(ctx context.Context, job *model.Job, prior *model.StageArtifact) (*adapter.ModelInput, string, error) {
	input := &adapter.ModelInput{JobID: job.ID, Precise: s.cfg.PreciseBoundaries}

	if s.cfg.Stage == model.StagePreview {
		raw, err := s.blueprints.Get(ctx, job.BlueprintKey)
		if err != nil {
			return nil, "", fmt.Errorf("%w: blueprint %q: %v", domain.ErrInvalidInput, job.BlueprintKey, err)
		}
		img, err := normalizeBlueprint(raw)
		if err != nil {
			return nil, "", err
		}
		input.ImageData = img
		sum := sha256.Sum256(raw)
		return input, hex.EncodeToString(sum[:]), nil
	}

	if err := validatePriorArtifact(prior, s.cfg.Stage); err != nil {
		return nil, "", err
	}
	input.PriorRooms = prior.Rooms
	return input, "", nil
}

// cachedPreview looks up memoized preview rooms for an identical drawing and
// model version. Applies only to the preview stage; later stages depend on
// the job's own prior artifact and are never shared across jobs.
func (s *stageExecutor) cachedPreview(ctx context.Context, blueprintHash string, log *zerolog.Logger) ([]model.Room, bool) {
	if s.previews == nil || blueprintHash == "" {
		return nil, false
	}
	rooms, err := s.previews.Get(ctx, blueprintHash, s.cfg.ModelVersion)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("preview cache read failed")
		}
		return nil, false
	}
	log.Info().Str("blueprint_hash", blueprintHash).Msg("preview served from cache")
	return rooms, true
}

// storePreview writes through to the preview cache. Best-effort: a failed
// write only costs the next identical upload a model invocation.
func (s *stageExecutor) storePreview(ctx context.Context, blueprintHash string, rooms []model.Room, log *zerolog.Logger) {
	if s.previews == nil || blueprintHash == "" {
		return
	}
	if err := s.previews.Put(ctx, blueprintHash, s.cfg.ModelVersion, rooms); err != nil {
		log.Warn().Err(err).Msg("preview cache write failed")
	}
}

// validatePriorArtifact rejects malformed cross-stage handoffs before any
// network call is made. Validation failures are not retryable.
func validatePriorArtifact(prior *model.StageArtifact, stage model.Stage) error {
	if prior == nil {
		return fmt.Errorf("%w: %s stage requires a prior artifact", domain.ErrInvalidArtifact, stage)
	}
	if prior.Stage != priorStage(stage) {
		return fmt.Errorf("%w: %s stage got %s artifact", domain.ErrInvalidArtifact, stage, prior.Stage)
	}
	if prior.SchemaVersion == "" {
		return fmt.Errorf("%w: missing schema version", domain.ErrInvalidArtifact)
	}
	for _, r := range prior.Rooms {
		if !r.BoundingBox.Valid() {
			return fmt.Errorf("%w: room %s has invalid bounds", domain.ErrInvalidArtifact, r.ID)
		}
	}
	return nil
}

func priorStage(stage model.Stage) model.Stage {
	switch stage {
	case model.StageIntermediate:
		return model.StagePreview
	case model.StageFinal:
		return model.StageIntermediate
	}
	return ""
}

// Progress percentages and remaining-time estimates per stage, matching the
// cumulative latency targets (preview 2-5s, intermediate 10-15s, final 20-30s).
func startProgress(s model.Stage) int {
	switch s {
	case model.StagePreview:
		return 5
	case model.StageIntermediate:
		return 40
	default:
		return 70
	}
}

func completeProgress(s model.Stage) int {
	switch s {
	case model.StagePreview:
		return 33
	case model.StageIntermediate:
		return 66
	default:
		return 95
	}
}

func estimateRemaining(s model.Stage) int {
	switch s {
	case model.StagePreview:
		return 28
	case model.StageIntermediate:
		return 20
	default:
		return 8
	}
}
