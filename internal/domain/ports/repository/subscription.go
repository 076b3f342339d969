package repository

import "context"

// SubscriptionDirectory maps a job to its active notification channel IDs.
// Entries are created on subscribe and expire after a bounded TTL; the
// notifier only ever reads it, the connection lifecycle owns mutation.
// Clear removes the whole set once a job is terminal and no further events
// will be published.
type SubscriptionDirectory interface {
	Subscribe(ctx context.Context, jobID, channelID string) error
	Unsubscribe(ctx context.Context, jobID, channelID string) error
	ListChannels(ctx context.Context, jobID string) ([]string, error)
	Clear(ctx context.Context, jobID string) error
}
