package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newRedisBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	b, err := NewRedisBroker()
	if err != nil {
		t.Fatalf("NewRedisBroker: %v", err)
	}
	return b
}

func TestRedisBrokerPublishAfterUnsubscribe(t *testing.T) {
	b := newRedisBroker(t)

	ch := b.Subscribe("s1")
	b.Unsubscribe("s1", ch)

	// A publish after the unsubscribe must not reach a closed channel.
	b.Publish("s1", SolveEvent{Type: "solve.progress"})

	// The subscriber channel drains and closes once the pubsub is torn down.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscriber channel was not closed after unsubscribe")
		}
	}
}

func TestRedisBrokerRemainingSubscriberStillReceives(t *testing.T) {
	b := newRedisBroker(t)

	ch1 := b.Subscribe("s1")
	ch2 := b.Subscribe("s1")
	b.Unsubscribe("s1", ch1)

	b.Publish("s1", SolveEvent{Type: "solve.completed"})
	select {
	case evt := <-ch2:
		if evt.Type != "solve.completed" {
			t.Fatalf("got type %s, want solve.completed", evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remaining subscriber missed the event")
	}
	b.Unsubscribe("s1", ch2)
}

func TestRedisBrokerUnsubscribeTwice(t *testing.T) {
	b := newRedisBroker(t)
	ch := b.Subscribe("s1")
	b.Unsubscribe("s1", ch)
	// A second unsubscribe for the same channel is a no-op.
	b.Unsubscribe("s1", ch)
}
