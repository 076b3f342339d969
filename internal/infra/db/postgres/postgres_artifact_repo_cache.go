package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/repository"
	"blueprint-room-pipeline/internal/infra/metrics"
	red "blueprint-room-pipeline/internal/infra/redis"
)

var _ repository.ArtifactStore = (*artifactRepoCacheDecorator)(nil)

// artifactRepoCacheDecorator serves artifact reads from Redis before falling
// back to Postgres. Artifacts are immutable once written, so cached entries
// never need invalidation; the TTL just bounds memory.
type artifactRepoCacheDecorator struct {
	inner repository.ArtifactStore
	cache red.RedisClient
	ttl   time.Duration
}

func NewArtifactRepoCacheDecorator(inner repository.ArtifactStore, cache red.RedisClient, ttl time.Duration) repository.ArtifactStore {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &artifactRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func artifactKey(jobID string, stage model.Stage) string {
	return fmt.Sprintf("artifact:%s:%s", jobID, stage)
}

func (d *artifactRepoCacheDecorator) Put(ctx context.Context, artifact *model.StageArtifact) error {
	if err := d.inner.Put(ctx, artifact); err != nil {
		return err
	}
	if bytes, err := json.Marshal(artifact); err == nil {
		d.cache.Set(ctx, artifactKey(artifact.JobID, artifact.Stage), bytes, d.ttl)
	}
	return nil
}

func (d *artifactRepoCacheDecorator) Get(ctx context.Context, jobID string, stage model.Stage) (*model.StageArtifact, error) {
	key := artifactKey(jobID, stage)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var artifact model.StageArtifact
		if json.Unmarshal([]byte(val), &artifact) == nil {
			metrics.IncCacheRequest("artifact", "hit")
			return &artifact, nil
		}
	}

	metrics.IncCacheRequest("artifact", "miss")
	artifact, err := d.inner.Get(ctx, jobID, stage)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(artifact); err == nil {
		d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return artifact, nil
}
