package repository

import (
	"context"

	"blueprint-room-pipeline/internal/domain/model"
)

// ArtifactStore persists per-stage artifacts keyed by job and stage.
// Artifacts are immutable: Put must refuse a second write for the same key,
// and Get must observe a complete artifact or none (read-after-write per key).
type ArtifactStore interface {
	Put(ctx context.Context, artifact *model.StageArtifact) error
	Get(ctx context.Context, jobID string, stage model.Stage) (*model.StageArtifact, error)
}

// BlueprintStore reads raw uploaded drawings by their storage key.
type BlueprintStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// PreviewCache memoizes preview-stage rooms by drawing content and model
// version, so re-uploading an identical blueprint skips a model invocation.
// Get returns ErrNotFound on a miss.
type PreviewCache interface {
	Get(ctx context.Context, blueprintHash, modelVersion string) ([]model.Room, error)
	Put(ctx context.Context, blueprintHash, modelVersion string, rooms []model.Room) error
}
