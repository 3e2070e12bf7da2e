package inbox

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cccckit/cccc/internal/model"
)

func group() model.Group {
	return model.Group{
		Actors: []model.Actor{
			{ID: "foreman-1", Enabled: true},
			{ID: "peer-a", Enabled: true},
		},
	}
}

func TestTargetingRuleBroadcastAndAll(t *testing.T) {
	g := group()
	if !IsForActor(g, "peer-a", nil) {
		t.Fatalf("empty to[] should be a broadcast")
	}
	if !IsForActor(g, "peer-a", []string{"@all"}) {
		t.Fatalf("@all should match any actor")
	}
}

func TestTargetingRuleRoleTokens(t *testing.T) {
	g := group()
	if !IsForActor(g, "foreman-1", []string{"@foreman"}) {
		t.Fatalf("@foreman should match the foreman")
	}
	if IsForActor(g, "peer-a", []string{"@foreman"}) {
		t.Fatalf("@foreman should not match a peer")
	}
	if !IsForActor(g, "peer-a", []string{"@peers"}) {
		t.Fatalf("@peers should match a peer")
	}
	if IsForActor(g, "foreman-1", []string{"@peers"}) {
		t.Fatalf("@peers should not match the foreman")
	}
}

func TestCursorMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "read_cursors.json")
	store := NewCursorStore(path)

	if _, err := store.Advance("peer-a", "e1", "2026-01-01T00:00:01Z", "2026-01-01T00:00:01Z"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	cur, err := store.Advance("peer-a", "e0", "2026-01-01T00:00:00Z", "2026-01-01T00:00:02Z")
	if err != nil {
		t.Fatalf("Advance backward: %v", err)
	}
	if cur.TS != "2026-01-01T00:00:01Z" {
		t.Fatalf("cursor moved backward: %+v", cur)
	}
}

func TestSeqCounterConcurrentStrictlyIncreasing(t *testing.T) {
	dir := t.TempDir()
	const n = 20
	results := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewSeqCounter(dir, "peerA")
			v, err := c.Next()
			if err != nil {
				t.Errorf("Next: %v", err)
				return
			}
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for v := range results {
		if seen[v] {
			t.Fatalf("duplicate sequence value %d", v)
		}
		seen[v] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d unique values, got %d", n, len(seen))
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Fatalf("missing sequence value %d", i)
		}
	}
}

func TestUnreadSkipsSelfAuthoredAndTargeting(t *testing.T) {
	g := group()
	msg := func(by string, to []string) model.Event {
		data, _ := json.Marshal(model.ChatMessageData{Text: "hi", To: to})
		return model.Event{Kind: model.KindChatMessage, By: by, Data: data, TS: "2026-01-01T00:00:01Z"}
	}
	events := []model.Event{
		msg("peer-a", nil),
		msg("user", []string{"@foreman"}),
	}
	got := Unread(g, "peer-a", events, model.ReadCursor{}, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 unread event for peer-a, got %d", len(got))
	}
}
