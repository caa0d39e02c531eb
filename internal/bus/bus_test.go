package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(10, "queue.")
	defer unsub()

	b.Publish(Event{Kind: "queue.enqueued", Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "queue.enqueued" {
			t.Errorf("got kind %q, want queue.enqueued", evt.Kind)
		}
		if evt.ID == "" || evt.Timestamp.IsZero() {
			t.Errorf("event not stamped: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(10, "sync.", "connectivity.")
	defer unsub()

	b.Publish(Event{Kind: "queue.enqueued"})
	b.Publish(Event{Kind: "sync.completed"})
	b.Publish(Event{Kind: "connectivity.changed"})

	for _, want := range []string{"sync.completed", "connectivity.changed"} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got kind %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}

	// The queue event must not have been delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Kind: "anything.at_all", ID: "fixed"})
	evt := <-ch
	if evt.ID != "fixed" {
		t.Errorf("ID = %q, want caller-supplied id kept", evt.ID)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(10, "queue.")
	unsub()
	unsub()

	b.Publish(Event{Kind: "queue.removed"})

	if _, ok := <-ch; ok {
		t.Error("received event after unsubscribe")
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1, "test.")
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	// Buffer is full; this one is dropped.
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestNamespace(t *testing.T) {
	tests := map[string]string{
		"sync.entry_synced":    "sync",
		"connectivity.changed": "connectivity",
		"bare":                 "bare",
	}
	for kind, want := range tests {
		if got := (Event{Kind: kind}).Namespace(); got != want {
			t.Errorf("Namespace(%q) = %q, want %q", kind, got, want)
		}
	}
}
