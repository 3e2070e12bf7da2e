package daemon

import (
	"testing"
	"time"

	"github.com/cccckit/cccc/internal/automation"
)

// TestBackPressureTickRunsOncePerGroupNotPerActor guards against the
// back-pressure pass being invoked once per enabled actor: with two
// enabled actors, a single overdue handoff must only be bumped to
// Attempts==2 once per tick, not once per actor.
func TestBackPressureTickRunsOncePerGroupNotPerActor(t *testing.T) {
	d := newTestDaemon(t)
	gid := setupGroupWithActors(t, d)

	g, err := d.loadGroup(gid)
	if err != nil {
		t.Fatalf("loadGroup: %v", err)
	}
	if len(g.Actors) < 2 {
		t.Fatalf("expected at least 2 actors, got %d", len(g.Actors))
	}

	gr := d.groupRuntime(gid)
	h := &automation.Handoff{MID: "m1", Receiver: g.Actors[0].ID, Sender: g.Actors[1].ID, Text: "hi"}
	if !gr.backp.Offer(h) {
		t.Fatal("expected Offer to deliver immediately")
	}
	h.SentAt = time.Now().Add(-time.Hour)

	d.tickGroupAutomation(g)

	if h.Attempts != 2 {
		t.Fatalf("expected backp.Tick to run exactly once per tick (Attempts==2), got %d", h.Attempts)
	}
}
