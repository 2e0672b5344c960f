package events

import (
	"testing"
	"time"

	"github.com/applockd/applockd/internal/logging"
	"github.com/applockd/applockd/pkg/types"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker(logging.Discard())
	s1 := b.Subscribe(4)
	s2 := b.Subscribe(4)

	b.Publish(types.Event{Type: types.EventChallengeCreated, PID: 100})

	for i, ch := range []chan types.Event{s1, s2} {
		select {
		case ev := <-ch:
			if ev.PID != 100 {
				t.Fatalf("subscriber %d: pid = %d", i, ev.PID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker(logging.Discard())
	slow := b.Subscribe(1)
	fast := b.Subscribe(8)

	for i := 0; i < 4; i++ {
		b.Publish(types.Event{Type: types.EventEnforcement, PID: i})
	}

	if len(fast) != 4 {
		t.Fatalf("fast subscriber got %d events, want 4", len(fast))
	}
	if len(slow) != 1 {
		t.Fatalf("slow subscriber buffer = %d, want 1", len(slow))
	}
	if b.DroppedCount() != 3 {
		t.Fatalf("dropped = %d, want 3", b.DroppedCount())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(logging.Discard())
	ch := b.Subscribe(1)
	b.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Fatalf("unsubscribed channel must be closed")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(types.Event{Type: types.EventProtectionToggled})
	// Double unsubscribe is a no-op.
	b.Unsubscribe(ch)
}
