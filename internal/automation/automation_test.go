package automation

import (
	"path/filepath"
	"testing"

	"github.com/cccckit/cccc/internal/model"
)

func TestEvaluateNudgeFiresAfterThreshold(t *testing.T) {
	cfg := model.DefaultDeliveryConfig()
	old := "2026-01-01T00:00:00Z"
	now, _ := parseTS("2026-01-01T00:10:00Z")
	dec := EvaluateNudge(cfg, ActorState{}, "peer-a", "e1", old, now)
	if !dec.ShouldNudge {
		t.Fatalf("expected nudge after threshold elapsed")
	}
}

func TestEvaluateNudgeSuppressedIfAlreadyNudged(t *testing.T) {
	cfg := model.DefaultDeliveryConfig()
	old := "2026-01-01T00:00:00Z"
	now, _ := parseTS("2026-01-01T00:10:00Z")
	dec := EvaluateNudge(cfg, ActorState{LastNudgeEventID: "e1"}, "peer-a", "e1", old, now)
	if dec.ShouldNudge {
		t.Fatalf("expected no nudge for already-nudged event")
	}
}

func TestEvaluateOnHandoffCadence(t *testing.T) {
	cfg := model.DefaultDeliveryConfig() // self-check every 6, refresh every 3
	st := ActorState{}
	var sawSelfCheck, sawRefresh bool
	for i := 0; i < 18; i++ {
		var dec SelfCheckDecision
		st, dec = EvaluateOnHandoff(cfg, st)
		if dec.SelfCheck {
			sawSelfCheck = true
		}
		if dec.SystemRefresh {
			sawRefresh = true
		}
	}
	if !sawSelfCheck {
		t.Fatalf("expected at least one self-check in 18 handoffs")
	}
	if !sawRefresh {
		t.Fatalf("expected at least one system refresh in 18 handoffs (3 self-checks)")
	}
}

func TestContainsProgressAndNextHint(t *testing.T) {
	body := "- Progress: wired the ledger\n- Next: write tests"
	if !ContainsProgressLine(body) {
		t.Fatalf("expected progress line detection")
	}
	if got := NextHint(body); got != "write tests" {
		t.Fatalf("NextHint = %q, want %q", got, "write tests")
	}
}

func TestBackPressureQueuesWhileInflight(t *testing.T) {
	bp := NewBackPressure()
	h1 := &Handoff{MID: "m1", Receiver: "peer-a"}
	h2 := &Handoff{MID: "m2", Receiver: "peer-a"}

	if !bp.Offer(h1) {
		t.Fatalf("first offer should deliver immediately")
	}
	if bp.Offer(h2) {
		t.Fatalf("second offer should queue while first is inflight")
	}
	if bp.QueueLen("peer-a") != 1 {
		t.Fatalf("expected 1 queued handoff")
	}

	promoted := bp.Ack("peer-a")
	if promoted == nil || promoted.MID != "m2" {
		t.Fatalf("expected m2 promoted after ack, got %+v", promoted)
	}
}

func TestBackPressureResendThenDrop(t *testing.T) {
	bp := NewBackPressure()
	h := &Handoff{MID: "m1", Receiver: "peer-a"}
	bp.Offer(h)

	decisions := bp.Tick(0, 2)
	if len(decisions) != 1 || decisions[0].Resend == nil {
		t.Fatalf("expected a resend decision, got %+v", decisions)
	}

	decisions = bp.Tick(0, 2)
	if len(decisions) != 1 || decisions[0].Dropped == nil {
		t.Fatalf("expected a drop decision after exceeding resend_attempts, got %+v", decisions)
	}
}

func TestStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automation.json")
	s := NewStore(path)
	if err := s.Put("peer-a", ActorState{HandoffCount: 3}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	st, err := s.Get("peer-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.HandoffCount != 3 {
		t.Fatalf("HandoffCount = %d, want 3", st.HandoffCount)
	}
}
