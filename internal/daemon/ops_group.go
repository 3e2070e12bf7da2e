package daemon

import (
	"os"

	"github.com/cccckit/cccc/internal/ipcwire"
	"github.com/cccckit/cccc/internal/model"
	"github.com/cccckit/cccc/internal/permission"
)

func groupToResult(g model.Group, running bool) map[string]any {
	return map[string]any{
		"group_id": g.GroupID, "title": g.Title, "topic": g.Topic,
		"created_at": g.CreatedAt, "updated_at": g.UpdatedAt,
		"running": running, "paused": g.Paused,
		"active_scope_key": g.ActiveScopeKey,
	}
}

func opGroupCreate(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		gid = newGroupID()
	}
	if _, err := d.loadGroup(gid); err == nil {
		return fail(ErrInvalidRequest, "group %q already exists", gid)
	}
	now := nowISO()
	g := model.Group{
		V: 1, GroupID: gid, Title: argString(args, "title"), Topic: argString(args, "topic"),
		CreatedAt: now, UpdatedAt: now,
		Delivery: model.DefaultDeliveryConfig(), Ledger: model.DefaultLedgerConfig(),
	}
	if err := d.saveGroup(g); err != nil {
		return failErr(err)
	}
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindGroupCreate, gid, "", by, map[string]any{"title": g.Title})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"group_id": gid, "event_id": ev.ID})
}

func opGroupUpdate(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "group_update requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpGroupUpdate, ""); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	if title := argString(args, "title"); title != "" {
		g.Title = title
	}
	if topic, has := args["topic"]; has {
		if s, ok := topic.(string); ok {
			g.Topic = s
		}
	}
	if err := d.saveGroup(g); err != nil {
		return failErr(err)
	}
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindGroupUpdate, gid, g.ActiveScopeKey, by, map[string]any{"title": g.Title, "topic": g.Topic})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"event_id": ev.ID})
}

func opGroupShow(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "group_show requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	running := d.PTY.GroupRunning(gid)
	result := groupToResult(g, running)
	actors := make([]map[string]any, 0, len(g.Actors))
	for _, a := range g.Actors {
		actors = append(actors, actorToResult(g, a))
	}
	result["actors"] = actors
	result["scopes"] = g.Scopes
	return ok(result)
}

func opGroupDelete(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "group_delete requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpGroupDelete, ""); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	for _, a := range g.Actors {
		d.stopActorRuntime(gid, a.ID)
	}
	if err := d.Registry.Remove(gid); err != nil {
		return failErr(err)
	}
	d.groupsMu.Lock()
	delete(d.groups, gid)
	d.groupsMu.Unlock()
	_ = os.RemoveAll(d.Layout.GroupDir(gid))
	return ok(map[string]any{"deleted": true})
}

func opGroupDetachScope(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	scopeKey := argString(args, "scope_key")
	if gid == "" {
		return fail(ErrMissingGroupID, "group_detach_scope requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpGroupDetachScope, ""); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	if scopeKey == "" {
		return fail(ErrInvalidScope, "group_detach_scope requires scope_key")
	}
	found := false
	remaining := g.Scopes[:0]
	for _, s := range g.Scopes {
		if s.ScopeKey == scopeKey {
			found = true
			continue
		}
		remaining = append(remaining, s)
	}
	if !found {
		return fail(ErrScopeNotAttached, "scope %q is not attached to group %q", scopeKey, gid)
	}
	g.Scopes = remaining
	if g.ActiveScopeKey == scopeKey {
		g.ActiveScopeKey = ""
		if len(remaining) > 0 {
			g.ActiveScopeKey = remaining[0].ScopeKey
		}
	}
	if err := d.saveGroup(g); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"active_scope_key": g.ActiveScopeKey})
}

func opGroupUse(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	scopeKey := argString(args, "scope_key")
	if gid == "" {
		return fail(ErrMissingGroupID, "group_use requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if scopeKey == "" {
		if p := argString(args, "path"); p != "" {
			if s, err := scopeFor(p); err == nil {
				scopeKey = s.ScopeKey
			}
		}
	}
	attached := false
	for _, s := range g.Scopes {
		if s.ScopeKey == scopeKey {
			attached = true
			break
		}
	}
	if !attached {
		return fail(ErrScopeNotAttached, "scope %q is not attached to group %q", scopeKey, gid)
	}
	g.ActiveScopeKey = scopeKey
	if err := d.saveGroup(g); err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"active_scope_key": g.ActiveScopeKey})
}

func opGroups(d *Daemon, by string, args map[string]any) ipcwire.Response {
	metas := d.Registry.List()
	items := make([]map[string]any, 0, len(metas))
	for _, m := range metas {
		items = append(items, map[string]any{
			"group_id": m.GroupID, "title": m.Title, "topic": m.Topic,
			"running": d.PTY.GroupRunning(m.GroupID) || d.headlessGroupRunning(m.GroupID),
		})
	}
	return ok(map[string]any{"groups": items})
}

func (d *Daemon) headlessGroupRunning(gid string) bool {
	g, err := d.loadGroup(gid)
	if err != nil {
		return false
	}
	for _, a := range g.Actors {
		if hs, ok := d.Headless.Get(gid, a.ID); ok && hs.Running() {
			return true
		}
	}
	return false
}

func opGroupStart(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "group_start requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpGroupStart, ""); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	g.Running = true
	if err := d.saveGroup(g); err != nil {
		return fail(ErrGroupStartFailed, "%v", err)
	}
	d.startGroupActors(g)
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindGroupStart, gid, g.ActiveScopeKey, by, map[string]any{})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"event_id": ev.ID})
}

func opGroupStop(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "group_stop requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpGroupStop, ""); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	g.Running = false
	if err := d.saveGroup(g); err != nil {
		return fail(ErrGroupStopFailed, "%v", err)
	}
	for _, a := range g.Actors {
		d.stopActorRuntime(gid, a.ID)
	}
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindGroupStop, gid, g.ActiveScopeKey, by, map[string]any{})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"event_id": ev.ID})
}

// opGroupSetState flips Group.Paused. While paused, the automation ticker
// skips the group entirely (see ticker.go) — decided as Open Question
// resolution (a): a dedicated boolean + op, foreman/user only.
func opGroupSetState(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "group_set_state requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpGroupSetState, ""); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	paused := argBool(args, "paused")
	g.Paused = paused
	if err := d.saveGroup(g); err != nil {
		return failErr(err)
	}
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindGroupSetState, gid, g.ActiveScopeKey, by, map[string]any{"paused": paused})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"paused": g.Paused, "event_id": ev.ID})
}
