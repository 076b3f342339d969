package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"blueprint-room-pipeline/internal/domain/model"
)

func TestPublishDeliversToAllChannels(t *testing.T) {
	subs := newMockSubs("job-1", "ch-a", "ch-b")
	sender := newMockSender()
	n := NewProgressNotifier(subs, sender, fastPolicy(), newTestLogger())

	n.Publish(context.Background(), "job-1", &model.ProgressEvent{
		Type:  model.EventProgressUpdate,
		JobID: "job-1",
		Stage: model.StagePreview,
	})

	for _, ch := range []string{"ch-a", "ch-b"} {
		if got := sender.sentTo(ch); len(got) != 1 {
			t.Fatalf("channel %s got %d events", ch, len(got))
		}
	}
}

func TestPublishRetriesThenDelivers(t *testing.T) {
	subs := newMockSubs("job-1", "ch-a")
	sender := newMockSender()
	sender.failCount["ch-a"] = 2
	n := NewProgressNotifier(subs, sender, fastPolicy(), newTestLogger())

	n.Publish(context.Background(), "job-1", &model.ProgressEvent{Type: model.EventStageComplete, JobID: "job-1"})

	if got := sender.sentTo("ch-a"); len(got) != 1 {
		t.Fatalf("expected delivery after retries, got %d events", len(got))
	}
}

func TestPublishDropsAfterRetriesExhausted(t *testing.T) {
	subs := newMockSubs("job-1", "ch-dead", "ch-live")
	sender := newMockSender()
	// More failures than the retry budget (MaxAttempts retries + 1 attempt).
	sender.failCount["ch-dead"] = 10
	n := NewProgressNotifier(subs, sender, fastPolicy(), newTestLogger())

	n.Publish(context.Background(), "job-1", &model.ProgressEvent{Type: model.EventJobComplete, JobID: "job-1"})

	if got := sender.sentTo("ch-dead"); len(got) != 0 {
		t.Fatalf("dead channel received %d events", len(got))
	}
	// Delivery failure on one channel never blocks the others.
	if got := sender.sentTo("ch-live"); len(got) != 1 {
		t.Fatalf("live channel got %d events", len(got))
	}
}

func TestPublishAssignsMonotonicEventIDs(t *testing.T) {
	subs := newMockSubs("job-1", "ch-a")
	sender := newMockSender()
	n := NewProgressNotifier(subs, sender, fastPolicy(), newTestLogger())

	ts := time.Now().UTC()
	for i := 0; i < 5; i++ {
		n.Publish(context.Background(), "job-1", &model.ProgressEvent{
			Type:      model.EventProgressUpdate,
			JobID:     "job-1",
			Message:   fmt.Sprintf("step %d", i),
			Timestamp: ts,
		})
	}

	events := sender.sentTo("ch-a")
	if len(events) != 5 {
		t.Fatalf("got %d events", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].EventID <= events[i-1].EventID {
			t.Fatalf("event IDs not increasing: %s then %s", events[i-1].EventID, events[i].EventID)
		}
		if events[i].Message != fmt.Sprintf("step %d", i) {
			t.Fatalf("events out of order: %q at index %d", events[i].Message, i)
		}
	}
}

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	subs := newMockSubs("other-job", "ch-a")
	sender := newMockSender()
	n := NewProgressNotifier(subs, sender, fastPolicy(), newTestLogger())

	n.Publish(context.Background(), "job-1", &model.ProgressEvent{Type: model.EventProgressUpdate, JobID: "job-1"})

	if len(sender.sent) != 0 {
		t.Fatalf("sent %d events with no subscribers", len(sender.sent))
	}
}
