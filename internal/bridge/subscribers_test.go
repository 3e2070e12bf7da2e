package bridge

import (
	"path/filepath"
	"testing"
)

func TestSubscriberStoreSubscribeUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscribers.json")
	store, err := LoadSubscriberStore(path)
	if err != nil {
		t.Fatalf("LoadSubscriberStore: %v", err)
	}
	if store.IsSubscribed("chat-1") {
		t.Fatalf("new store should have no subscribers")
	}
	if err := store.Subscribe("chat-1", "thread-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !store.IsSubscribed("chat-1") {
		t.Fatalf("chat-1 should be subscribed")
	}
	if err := store.Unsubscribe("chat-1"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if store.IsSubscribed("chat-1") {
		t.Fatalf("chat-1 should no longer be subscribed")
	}
}

func TestSubscriberStorePersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscribers.json")
	first, err := LoadSubscriberStore(path)
	if err != nil {
		t.Fatalf("LoadSubscriberStore: %v", err)
	}
	if err := first.Subscribe("chat-1", ""); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := first.SetVerbose("chat-1", true); err != nil {
		t.Fatalf("SetVerbose: %v", err)
	}

	second, err := LoadSubscriberStore(path)
	if err != nil {
		t.Fatalf("LoadSubscriberStore (reload): %v", err)
	}
	list := second.List()
	if len(list) != 1 || list[0].ChatID != "chat-1" || !list[0].Verbose {
		t.Fatalf("unexpected reloaded subscribers: %+v", list)
	}
}

func TestSubscriberStoreSetVerboseIgnoresUnknownChat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscribers.json")
	store, err := LoadSubscriberStore(path)
	if err != nil {
		t.Fatalf("LoadSubscriberStore: %v", err)
	}
	if err := store.SetVerbose("nobody", true); err != nil {
		t.Fatalf("SetVerbose on unknown chat should be a no-op, got err: %v", err)
	}
}
