package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/cccckit/cccc/internal/eventbus"
	"github.com/cccckit/cccc/internal/headless"
	"github.com/cccckit/cccc/internal/ipcwire"
	"github.com/cccckit/cccc/internal/model"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	home := t.TempDir()
	noProvider := func(runtime string) (headless.Provider, error) {
		return nil, errors.New("no provider configured in test")
	}
	d, err := New(home, noProvider, logr.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Shutdown)
	return d
}

func dispatch(d *Daemon, by, op string, args map[string]any) ipcwire.Response {
	return d.Dispatch(ipcwire.Request{V: 1, Op: op, By: by, Args: args})
}

func TestPingReturnsVersionAndPID(t *testing.T) {
	d := newTestDaemon(t)
	resp := dispatch(d, "user", "ping", nil)
	if !resp.OK {
		t.Fatalf("ping failed: %+v", resp.Error)
	}
	if resp.Result["version"] != Version {
		t.Fatalf("expected version %q, got %v", Version, resp.Result["version"])
	}
	if resp.Result["pid"] == nil {
		t.Fatal("expected pid in ping result")
	}
}

func TestUnknownOpRejected(t *testing.T) {
	d := newTestDaemon(t)
	resp := dispatch(d, "user", "not_a_real_op", nil)
	if resp.OK {
		t.Fatal("expected failure for unknown op")
	}
	if resp.Error.Code != ErrUnknownOp {
		t.Fatalf("expected %s, got %s", ErrUnknownOp, resp.Error.Code)
	}
}

func TestAttachCreatesGroupAndIsIdempotent(t *testing.T) {
	d := newTestDaemon(t)
	dir := t.TempDir()

	first := dispatch(d, "user", "attach", map[string]any{"path": dir})
	if !first.OK {
		t.Fatalf("attach failed: %+v", first.Error)
	}
	gid, _ := first.Result["group_id"].(string)
	if gid == "" {
		t.Fatal("expected group_id in attach result")
	}

	second := dispatch(d, "user", "attach", map[string]any{"path": dir})
	if !second.OK {
		t.Fatalf("second attach failed: %+v", second.Error)
	}
	if second.Result["group_id"] != gid {
		t.Fatalf("expected re-attach to reuse group %q, got %v", gid, second.Result["group_id"])
	}
}

func TestAttachMissingPathRejected(t *testing.T) {
	d := newTestDaemon(t)
	resp := dispatch(d, "user", "attach", map[string]any{})
	if resp.OK {
		t.Fatal("expected failure for missing path")
	}
	if resp.Error.Code != ErrMissingPath {
		t.Fatalf("expected %s, got %s", ErrMissingPath, resp.Error.Code)
	}
}

func setupGroupWithActors(t *testing.T, d *Daemon) string {
	t.Helper()
	attach := dispatch(d, "user", "attach", map[string]any{"path": t.TempDir()})
	if !attach.OK {
		t.Fatalf("attach failed: %+v", attach.Error)
	}
	gid := attach.Result["group_id"].(string)

	for _, aid := range []string{"lead", "peerA"} {
		resp := dispatch(d, "user", "actor_add", map[string]any{
			"group_id": gid, "actor_id": aid, "title": aid,
		})
		if !resp.OK {
			t.Fatalf("actor_add(%s) failed: %+v", aid, resp.Error)
		}
	}
	return gid
}

func TestSendAppendsMessageAndReportsZeroDeliveredWithoutRunningActors(t *testing.T) {
	d := newTestDaemon(t)
	gid := setupGroupWithActors(t, d)

	resp := dispatch(d, "lead", "send", map[string]any{
		"group_id": gid, "text": "hello peers",
	})
	if !resp.OK {
		t.Fatalf("send failed: %+v", resp.Error)
	}
	if resp.Result["event_id"] == nil || resp.Result["event_id"] == "" {
		t.Fatal("expected event_id in send result")
	}
	// Neither actor has a running PTY/headless session in this test, so
	// delivery is a no-op count, not an error.
	if resp.Result["delivered"] != 0 {
		t.Fatalf("expected 0 delivered with no running sessions, got %v", resp.Result["delivered"])
	}
}

func TestInboxListReturnsUnreadAfterSend(t *testing.T) {
	d := newTestDaemon(t)
	gid := setupGroupWithActors(t, d)

	sendResp := dispatch(d, "lead", "send", map[string]any{
		"group_id": gid, "text": "ping peerA", "to": []any{"peerA"},
	})
	if !sendResp.OK {
		t.Fatalf("send failed: %+v", sendResp.Error)
	}

	listResp := dispatch(d, "peerA", "inbox_list", map[string]any{
		"group_id": gid, "actor_id": "peerA",
	})
	if !listResp.OK {
		t.Fatalf("inbox_list failed: %+v", listResp.Error)
	}
	count, _ := listResp.Result["count"].(int)
	if count == 0 {
		t.Fatalf("expected at least one unread item, got %+v", listResp.Result)
	}

	markResp := dispatch(d, "peerA", "inbox_list", map[string]any{
		"group_id": gid, "actor_id": "peerA", "mark_read": true,
	})
	if !markResp.OK {
		t.Fatalf("inbox_list mark_read failed: %+v", markResp.Error)
	}

	followUp := dispatch(d, "peerA", "inbox_list", map[string]any{
		"group_id": gid, "actor_id": "peerA",
	})
	if !followUp.OK {
		t.Fatalf("inbox_list followup failed: %+v", followUp.Error)
	}
	if followUp.Result["count"] != 0 {
		t.Fatalf("expected inbox drained after mark_read, got %+v", followUp.Result)
	}
}

func TestPeerCannotStartAnotherActor(t *testing.T) {
	d := newTestDaemon(t)
	gid := setupGroupWithActors(t, d)

	resp := dispatch(d, "peerA", "actor_start", map[string]any{
		"group_id": gid, "actor_id": "lead",
	})
	if resp.OK {
		t.Fatal("expected permission denial for peer starting another actor")
	}
	if resp.Error.Code != ErrPermissionDenied {
		t.Fatalf("expected %s, got %s", ErrPermissionDenied, resp.Error.Code)
	}
}

func TestPeerCanStopSelf(t *testing.T) {
	d := newTestDaemon(t)
	gid := setupGroupWithActors(t, d)

	// Stopping an actor with no running session is a harmless no-op at the
	// ptysup/headless layer; what's under test is that permission.Check lets
	// a peer target itself.
	resp := dispatch(d, "peerA", "actor_stop", map[string]any{
		"group_id": gid, "actor_id": "peerA",
	})
	if !resp.OK {
		t.Fatalf("expected peer to stop itself, got denial: %+v", resp.Error)
	}
}

func TestActorUpdateDeniedForNonUser(t *testing.T) {
	d := newTestDaemon(t)
	gid := setupGroupWithActors(t, d)

	resp := dispatch(d, "lead", "actor_update", map[string]any{
		"group_id": gid, "actor_id": "peerA", "title": "renamed",
	})
	if resp.OK {
		t.Fatal("expected actor_update to be denied for non-user caller")
	}
	if resp.Error.Code != ErrPermissionDenied {
		t.Fatalf("expected %s, got %s", ErrPermissionDenied, resp.Error.Code)
	}
}

func TestGroupSetStatePauseIsPersistedAndSkipsAutomation(t *testing.T) {
	d := newTestDaemon(t)
	gid := setupGroupWithActors(t, d)

	start := dispatch(d, "user", "group_start", map[string]any{"group_id": gid})
	if !start.OK {
		t.Fatalf("group_start failed: %+v", start.Error)
	}

	pause := dispatch(d, "user", "group_set_state", map[string]any{
		"group_id": gid, "paused": true,
	})
	if !pause.OK {
		t.Fatalf("group_set_state failed: %+v", pause.Error)
	}
	if pause.Result["paused"] != true {
		t.Fatalf("expected paused=true in result, got %+v", pause.Result)
	}

	g, err := d.loadGroup(gid)
	if err != nil {
		t.Fatalf("loadGroup: %v", err)
	}
	if !g.Paused {
		t.Fatal("expected group.Paused persisted to group.yaml")
	}

	// tickAutomationOnce must skip paused groups entirely; it should not
	// panic or touch a groupRuntime for gid beyond what attach/send already
	// created.
	d.tickAutomationOnce()

	resume := dispatch(d, "user", "group_set_state", map[string]any{
		"group_id": gid, "paused": false,
	})
	if !resume.OK {
		t.Fatalf("resume group_set_state failed: %+v", resume.Error)
	}
	g2, err := d.loadGroup(gid)
	if err != nil {
		t.Fatalf("loadGroup after resume: %v", err)
	}
	if g2.Paused {
		t.Fatal("expected group.Paused cleared after resume")
	}
}

func TestGroupSetStateDeniedForPeer(t *testing.T) {
	d := newTestDaemon(t)
	gid := setupGroupWithActors(t, d)

	resp := dispatch(d, "peerA", "group_set_state", map[string]any{
		"group_id": gid, "paused": true,
	})
	if resp.OK {
		t.Fatal("expected group_set_state to be denied for a peer")
	}
	if resp.Error.Code != ErrPermissionDenied {
		t.Fatalf("expected %s, got %s", ErrPermissionDenied, resp.Error.Code)
	}
}

func TestGroupShowListsActorsAndScopes(t *testing.T) {
	d := newTestDaemon(t)
	gid := setupGroupWithActors(t, d)

	resp := dispatch(d, "user", "group_show", map[string]any{"group_id": gid})
	if !resp.OK {
		t.Fatalf("group_show failed: %+v", resp.Error)
	}
	actors, ok := resp.Result["actors"].([]map[string]any)
	if !ok || len(actors) != 2 {
		t.Fatalf("expected 2 actors, got %+v", resp.Result["actors"])
	}
	scopes, ok := resp.Result["scopes"].([]model.Scope)
	if !ok || len(scopes) != 1 {
		t.Fatalf("expected 1 attached scope, got %+v", resp.Result["scopes"])
	}
}

func TestGroupNotFoundShapesError(t *testing.T) {
	d := newTestDaemon(t)
	resp := dispatch(d, "user", "group_show", map[string]any{"group_id": "g_does_not_exist"})
	if resp.OK {
		t.Fatal("expected failure for nonexistent group")
	}
	if resp.Error.Code != ErrGroupNotFound {
		t.Fatalf("expected %s, got %s", ErrGroupNotFound, resp.Error.Code)
	}
}

func TestLedgerAppendFansOutOnEventBus(t *testing.T) {
	d := newTestDaemon(t)
	dir := t.TempDir()

	attach := dispatch(d, "user", "attach", map[string]any{"path": dir})
	if !attach.OK {
		t.Fatalf("attach failed: %+v", attach.Error)
	}
	gid, _ := attach.Result["group_id"].(string)

	received := make(chan eventbus.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := d.Bus.Subscribe(ctx, eventbus.TopicLedgerAppended, gid, func(ev eventbus.Event) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	resp := dispatch(d, "user", "send", map[string]any{"group_id": gid, "text": "hi"})
	if !resp.OK {
		t.Fatalf("send failed: %+v", resp.Error)
	}

	select {
	case ev := <-received:
		if ev.GroupID != gid {
			t.Fatalf("expected event for group %q, got %q", gid, ev.GroupID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the ledger-appended event to be published")
	}
}
