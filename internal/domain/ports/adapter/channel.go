package adapter

import (
	"context"

	"blueprint-room-pipeline/internal/domain/model"
)

// ChannelSender delivers one event to one subscribed channel. A failed send
// is the sender's problem to report, never the pipeline's problem to absorb:
// the notifier retries a few times, then logs and drops.
type ChannelSender interface {
	Send(ctx context.Context, channelID string, event *model.ProgressEvent) error
}
