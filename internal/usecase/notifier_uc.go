package usecase

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"blueprint-room-pipeline/internal/backoff"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/adapter"
	"blueprint-room-pipeline/internal/domain/ports/repository"
	"blueprint-room-pipeline/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ ProgressNotifier = (*progressNotifier)(nil)

// ProgressNotifier fans an event out to every channel subscribed to a job.
// Delivery problems are the notifier's alone: they are retried briefly,
// then logged and dropped. Publish never fails the caller.
type ProgressNotifier interface {
	Publish(ctx context.Context, jobID string, event *model.ProgressEvent)
}

type progressNotifier struct {
	subs   repository.SubscriptionDirectory
	sender adapter.ChannelSender
	policy backoff.Policy
	log    *zerolog.Logger

	// Monotonic ULIDs make per-job publish order visible to receivers.
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewProgressNotifier(subs repository.SubscriptionDirectory, sender adapter.ChannelSender, policy backoff.Policy, logger *zerolog.Logger) *progressNotifier {
	return &progressNotifier{
		subs:    subs,
		sender:  sender,
		policy:  policy,
		log:     logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (n *progressNotifier) Publish(ctx context.Context, jobID string, event *model.ProgressEvent) {
	if event.EventID == "" {
		event.EventID = n.nextID(event.Timestamp)
	}

	channels, err := n.subs.ListChannels(ctx, jobID)
	if err != nil {
		n.log.Error().Err(err).Str("job_id", jobID).Msg("subscription lookup failed; event dropped")
		return
	}
	if len(channels) == 0 {
		return
	}

	// Sequential fan-out keeps per-channel ordering: the next event for this
	// job is not published until this one has been attempted everywhere.
	delivered := 0
	for _, ch := range channels {
		err := backoff.Do(ctx, n.policy, func(error) bool { return true }, func(ctx context.Context) error {
			return n.sender.Send(ctx, ch, event)
		})
		if err != nil {
			metrics.IncNotification("dropped")
			n.log.Warn().Err(err).
				Str("job_id", jobID).
				Str("channel", ch).
				Str("event_type", string(event.Type)).
				Msg("notification dropped after retries")
			continue
		}
		delivered++
		metrics.IncNotification("delivered")
	}

	n.log.Debug().
		Str("job_id", jobID).
		Str("event_type", string(event.Type)).
		Int("delivered", delivered).
		Int("channels", len(channels)).
		Msg("event published")
}

func (n *progressNotifier) nextID(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), n.entropy).String()
}
