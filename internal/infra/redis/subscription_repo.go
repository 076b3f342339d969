package redis

import (
	"context"
	"fmt"
	"time"

	"blueprint-room-pipeline/internal/domain/ports/repository"
)

var _ repository.SubscriptionDirectory = (*SubscriptionRepo)(nil)

// SubscriptionRepo tracks which delivery channels follow a job. Entries are
// kept in a Redis set per job with a sliding TTL so abandoned subscriptions
// age out on their own.
type SubscriptionRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewSubscriptionRepo(client RedisClient, ttl time.Duration) repository.SubscriptionDirectory {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SubscriptionRepo{client: client, ttl: ttl}
}

func (s *SubscriptionRepo) subKey(jobID string) string {
	return fmt.Sprintf("job_subs:%s", jobID)
}

func (s *SubscriptionRepo) Subscribe(ctx context.Context, jobID, channelID string) error {
	key := s.subKey(jobID)
	if err := s.client.SAdd(ctx, key, channelID); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl)
}

func (s *SubscriptionRepo) Unsubscribe(ctx context.Context, jobID, channelID string) error {
	return s.client.SRem(ctx, s.subKey(jobID), channelID)
}

func (s *SubscriptionRepo) ListChannels(ctx context.Context, jobID string) ([]string, error) {
	return s.client.SMembers(ctx, s.subKey(jobID))
}

func (s *SubscriptionRepo) Clear(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, s.subKey(jobID))
}
