package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribeRoundtrip(t *testing.T) {
	b, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	if _, err := b.Subscribe(ctx, TopicLedgerAppended, "g_abc123", func(ev Event) {
		received <- ev
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	if err := b.Publish(TopicLedgerAppended, "g_abc123", []byte(`{"kind":"chat.message"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case ev := <-received:
		if ev.GroupID != "g_abc123" {
			t.Fatalf("GroupID = %q, want g_abc123", ev.GroupID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for published event")
	}
}

func TestSubscribersAreGroupScoped(t *testing.T) {
	b, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wrongGroup := make(chan Event, 1)
	if _, err := b.Subscribe(ctx, TopicLedgerAppended, "g_other", func(ev Event) {
		wrongGroup <- ev
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := b.Publish(TopicLedgerAppended, "g_target", []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-wrongGroup:
		t.Fatalf("subscriber for a different group should not receive this event")
	case <-time.After(200 * time.Millisecond):
	}
}
