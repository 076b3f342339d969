package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/repository"
	"blueprint-room-pipeline/internal/infra/metrics"
)

var _ repository.PreviewCache = (*PreviewCacheRepo)(nil)

// PreviewCacheRepo stores preview-stage rooms keyed by blueprint hash and
// model version. Entries outlive any single job: two jobs uploading the same
// drawing share one model invocation.
type PreviewCacheRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewPreviewCache(client RedisClient, ttl time.Duration) repository.PreviewCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PreviewCacheRepo{client: client, ttl: ttl}
}

func (c *PreviewCacheRepo) previewKey(blueprintHash, modelVersion string) string {
	return fmt.Sprintf("preview:%s:%s", blueprintHash, modelVersion)
}

func (c *PreviewCacheRepo) Get(ctx context.Context, blueprintHash, modelVersion string) ([]model.Room, error) {
	val, err := c.client.Get(ctx, c.previewKey(blueprintHash, modelVersion))
	if err != nil {
		metrics.IncCacheRequest("preview", "miss")
		if err == redis.Nil {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var rooms []model.Room
	if err := json.Unmarshal([]byte(val), &rooms); err != nil {
		metrics.IncCacheRequest("preview", "miss")
		return nil, domain.ErrNotFound
	}
	metrics.IncCacheRequest("preview", "hit")
	return rooms, nil
}

func (c *PreviewCacheRepo) Put(ctx context.Context, blueprintHash, modelVersion string, rooms []model.Room) error {
	data, err := json.Marshal(rooms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.previewKey(blueprintHash, modelVersion), data, c.ttl)
}
