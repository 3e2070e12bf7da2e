package daemon

import (
	"bufio"
	"context"
	"net"
	"os"
	"time"

	"github.com/cccckit/cccc/internal/automation"
	"github.com/cccckit/cccc/internal/inbox"
	"github.com/cccckit/cccc/internal/ipcwire"
	"github.com/cccckit/cccc/internal/model"
	"github.com/cccckit/cccc/internal/obs"
	"github.com/cccckit/cccc/internal/permission"
	"github.com/cccckit/cccc/internal/ptysup"
)

func opPing(d *Daemon, by string, args map[string]any) ipcwire.Response {
	return ok(map[string]any{
		"version": Version,
		"pid":     os.Getpid(),
		"now":     nowISO(),
	})
}

func nowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

func opShutdown(d *Daemon, by string, args map[string]any) ipcwire.Response {
	return ok(map[string]any{"stopping": true})
}

// opAttach derives a scope from args["path"] and either attaches it to an
// explicit group_id or creates/ensures a group keyed by the scope's
// git-remote hash.
func opAttach(d *Daemon, by string, args map[string]any) ipcwire.Response {
	path := argString(args, "path")
	if path == "" {
		return fail(ErrMissingPath, "attach requires path")
	}
	s, err := scopeFor(path)
	if err != nil {
		return fail(ErrInvalidProjectRoot, "%v", err)
	}

	gid := argString(args, "group_id")
	if gid == "" {
		if existing, found := d.Registry.DefaultFor(s.ScopeKey); found {
			gid = existing
		} else {
			gid = newGroupID()
		}
	}

	g, err := d.loadGroup(gid)
	if err != nil {
		now := nowISO()
		g = model.Group{
			V: 1, GroupID: gid, Title: s.Label, CreatedAt: now, UpdatedAt: now,
			Delivery: model.DefaultDeliveryConfig(), Ledger: model.DefaultLedgerConfig(),
		}
	}

	attached := false
	for i, existing := range g.Scopes {
		if existing.ScopeKey == s.ScopeKey {
			g.Scopes[i] = s
			attached = true
			break
		}
	}
	if !attached {
		g.Scopes = append(g.Scopes, s)
	}
	if g.ActiveScopeKey == "" {
		g.ActiveScopeKey = s.ScopeKey
	}

	if err := d.saveGroup(g); err != nil {
		return fail(ErrInvalidProjectRoot, "%v", err)
	}
	if err := d.Registry.SetDefault(s.ScopeKey, gid); err != nil {
		return fail(ErrInvalidProjectRoot, "%v", err)
	}

	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindGroupAttach, gid, s.ScopeKey, by, map[string]any{
		"path": path, "scope_key": s.ScopeKey,
	})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"group_id": gid, "scope_key": s.ScopeKey, "event_id": ev.ID})
}

func opInboxList(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "inbox_list requires group_id")
	}
	aid := argString(args, "actor_id")
	if aid == "" {
		return fail(ErrMissingActorID, "inbox_list requires actor_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpInboxList, aid); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}

	gr := d.groupRuntime(gid)
	events, err := readAllLedger(gr)
	if err != nil {
		return failErr(err)
	}
	cursor, err := gr.cursors.Get(aid)
	if err != nil {
		return failErr(err)
	}
	limit := argInt(args, "limit", 50)
	unread := inbox.Unread(g, aid, events, cursor, limit)

	items := make([]map[string]any, 0, len(unread))
	for _, ev := range unread {
		items = append(items, map[string]any{
			"id": ev.ID, "ts": ev.TS, "by": ev.By, "kind": string(ev.Kind), "data": ev.Data,
		})
	}
	if argBool(args, "mark_read") && len(unread) > 0 {
		last := unread[len(unread)-1]
		if _, err := gr.cursors.Advance(aid, last.ID, last.TS, nowISO()); err != nil {
			return failErr(err)
		}
		_, _ = gr.appendEvent(model.KindChatRead, gid, g.ActiveScopeKey, aid, model.ChatReadData{
			ActorID: aid, EventID: last.ID, TS: last.TS,
		})
		d.ackHandoff(gr, g, aid)
	}
	return ok(map[string]any{"items": items, "count": len(items)})
}

func opInboxMarkRead(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "inbox_mark_read requires group_id")
	}
	aid := argString(args, "actor_id")
	if aid == "" {
		return fail(ErrMissingActorID, "inbox_mark_read requires actor_id")
	}
	eventID := argString(args, "event_id")
	if eventID == "" {
		return fail(ErrMissingEventID, "inbox_mark_read requires event_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpInboxMarkRead, aid); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}

	gr := d.groupRuntime(gid)
	events, err := readAllLedger(gr)
	if err != nil {
		return failErr(err)
	}
	var target *model.Event
	for i := range events {
		if events[i].ID == eventID {
			target = &events[i]
			break
		}
	}
	if target == nil {
		return fail(ErrEventNotFound, "event %q not found", eventID)
	}
	cur, err := gr.cursors.Advance(aid, target.ID, target.TS, nowISO())
	if err != nil {
		return failErr(err)
	}
	_, _ = gr.appendEvent(model.KindChatRead, gid, g.ActiveScopeKey, aid, model.ChatReadData{
		ActorID: aid, EventID: target.ID, TS: target.TS,
	})
	d.ackHandoff(gr, g, aid)
	return ok(map[string]any{"cursor": map[string]any{"event_id": cur.EventID, "ts": cur.TS}})
}

// ackHandoff treats a reader's cursor advance as the weak-ACK signal for its
// inflight handoff (this ledger stores cursors instead of moving files
// between inbox/ and processed/, so the cursor advance is the nearest
// equivalent of the file-move detection). Any promoted queued handoff is
// delivered immediately.
func (d *Daemon) ackHandoff(gr *groupRuntime, g model.Group, aid string) {
	next := gr.backp.Ack(aid)
	if next == nil {
		return
	}
	a, found := g.FindActor(aid)
	if !found {
		return
	}
	data := model.ChatMessageData{Text: next.Text, To: []string{aid}}
	if d.deliverToActor(g, a, next.Sender, data) {
		d.recordHandoff(gr, g, aid)
	}
}

// opSend appends chat.message under the scope named by path (which must be
// attached) or else the group's active scope, and delivers best-effort to
// every matching running actor's PTY, recording a handoff for automation.
// to[] is stored as given; its tokens are not checked against the actors.
func opSend(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "send requires group_id")
	}
	text := argString(args, "text")
	if text == "" {
		return fail(ErrInvalidRequest, "send requires non-empty text")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpSend, ""); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}

	scopeKey := g.ActiveScopeKey
	if p := argString(args, "path"); p != "" {
		s, err := scopeFor(p)
		if err != nil {
			return fail(ErrInvalidScope, "%v", err)
		}
		scopeKey = ""
		for _, sc := range g.Scopes {
			if sc.ScopeKey == s.ScopeKey {
				scopeKey = sc.ScopeKey
			}
		}
		if scopeKey == "" {
			return fail(ErrScopeNotAttached, "scope %q is not attached to group %q", s.ScopeKey, gid)
		}
	}

	to := argStringSlice(args, "to")
	data := model.ChatMessageData{
		Text: text, To: to, ReplyTo: argString(args, "reply_to"), QuoteText: argString(args, "quote_text"),
		Attachments: argAttachments(args, "attachments"),
	}

	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindChatMessage, gid, scopeKey, by, data)
	if err != nil {
		return failErr(err)
	}

	delivered := 0
	for _, a := range g.Actors {
		if !a.Enabled || a.ID == by {
			continue
		}
		if !inbox.IsForActor(g, a.ID, to) {
			continue
		}
		if d.offerHandoff(gr, g, a, by, ev.ID, data) {
			delivered++
		}
	}

	return ok(map[string]any{"event_id": ev.ID, "delivered": delivered})
}

// offerHandoff runs the message through the receiver's back-pressure
// tracker (§4.4) before touching the PTY: an idle receiver gets the payload
// immediately, a busy one gets the handoff queued and a handoff-queued
// ledger entry instead.
func (d *Daemon) offerHandoff(gr *groupRuntime, g model.Group, a model.Actor, by, mid string, data model.ChatMessageData) bool {
	h := &automation.Handoff{MID: mid, Receiver: a.ID, Sender: by, Text: data.Text}
	if !gr.backp.Offer(h) {
		obs.RecordHandoffQueued()
		_, _ = gr.appendEvent(model.KindSystemNotify, g.GroupID, g.ActiveScopeKey, "daemon", model.SystemNotifyData{
			Text: "handoff-queued: " + mid, To: []string{a.ID},
		})
		return false
	}
	delivered := d.deliverToActor(g, a, by, data)
	obs.RecordDeliveryAttempt(delivered)
	d.recordHandoff(gr, g, a.ID)
	return delivered
}

func (d *Daemon) deliverToActor(g model.Group, a model.Actor, by string, data model.ChatMessageData) bool {
	key := ptysup.Key{GroupID: g.GroupID, ActorID: a.ID}
	sess, running := d.PTY.Get(key)
	if !running || !sess.Running() {
		if hs, ok := d.Headless.Get(g.GroupID, a.ID); ok && hs.Running() {
			_, _ = hs.Deliver(context.Background(), data.Text)
			return true
		}
		return false
	}
	payload := renderDelivery(d, g, a, sess, by, data)
	return sess.WriteInput([]byte(payload)) == nil
}

func opTermResize(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	aid := argString(args, "actor_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "term_resize requires group_id")
	}
	if aid == "" {
		return fail(ErrMissingActorID, "term_resize requires actor_id")
	}
	sess, okSess := d.PTY.Get(ptysup.Key{GroupID: gid, ActorID: aid})
	if !okSess {
		return fail(ErrSessionNotFound, "no pty session for %s/%s", gid, aid)
	}
	cols := argInt(args, "cols", 120)
	rows := argInt(args, "rows", 40)
	if err := sess.Resize(cols, rows); err != nil {
		return fail(ErrActorWriteFailed, "%v", err)
	}
	return ok(nil)
}

// serveTermAttach acks req (promoting this connection to raw mode) and then
// pumps bytes bidirectionally between conn and the actor's PTY until
// either side closes, per §6.
func (d *Daemon) serveTermAttach(conn net.Conn, r *bufio.Reader, req ipcwire.Request) {
	by := req.By
	if by == "" {
		by = "user"
	}
	gid := argString(req.Args, "group_id")
	aid := argString(req.Args, "actor_id")
	if gid == "" || aid == "" {
		_ = ipcwire.WriteResponse(conn, fail(ErrMissingActorID, "term_attach requires group_id and actor_id"))
		return
	}
	sess, okSess := d.PTY.Get(ptysup.Key{GroupID: gid, ActorID: aid})
	if !okSess {
		_ = ipcwire.WriteResponse(conn, fail(ErrSessionNotFound, "no pty session for %s/%s", gid, aid))
		return
	}
	if err := ipcwire.WriteResponse(conn, ok(map[string]any{"attached": true})); err != nil {
		return
	}

	clientID, backlog := sess.Attach(func(b []byte) error {
		_, err := conn.Write(b)
		return err
	})
	defer sess.Detach(clientID)
	if len(backlog) > 0 {
		if _, err := conn.Write(backlog); err != nil {
			return
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 && sess.IsWriter(clientID) {
			_ = sess.WriteInput(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func opLedgerSnapshot(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "ledger_snapshot requires group_id")
	}
	if _, err := d.loadGroup(gid); err != nil {
		return failErr(err)
	}
	gr := d.groupRuntime(gid)
	snap, err := writeLedgerSnapshot(gr)
	if err != nil {
		return fail(ErrLedgerSnapshotFailed, "%v", err)
	}
	return ok(map[string]any{"size_bytes": snap.SizeBytes, "last_event": snap.LastEvent})
}

func opLedgerCompact(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "ledger_compact requires group_id")
	}
	if _, err := d.loadGroup(gid); err != nil {
		return failErr(err)
	}
	gr := d.groupRuntime(gid)
	force := argBool(args, "force")
	rec, err := compactGroup(d, gr, force)
	if err != nil {
		return fail(ErrLedgerCompactFailed, "%v", err)
	}
	return ok(map[string]any{
		"compacted":      rec.ArchivedN > 0,
		"archived_count": rec.ArchivedN,
		"kept_count":     rec.KeptN,
		"safe_cursor_ts": rec.SafeCursorTS,
	})
}
