package daemon

import (
	"github.com/cccckit/cccc/internal/ipcwire"
	"github.com/cccckit/cccc/internal/model"
	"github.com/cccckit/cccc/internal/permission"
	"github.com/cccckit/cccc/internal/ptysup"
)

func actorToResult(g model.Group, a model.Actor) map[string]any {
	return map[string]any{
		"id": a.ID, "title": a.Title, "enabled": a.Enabled,
		"runner": string(a.Runner), "runner_effective": string(a.RunnerEffective),
		"runtime": a.Runtime, "autonomous": a.Autonomous, "submit": string(a.Submit),
		"role": g.EffectiveRole(a.ID),
	}
}

func opActorList(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "actor_list requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpActorList, ""); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	actors := make([]map[string]any, 0, len(g.Actors))
	for _, a := range g.Actors {
		actors = append(actors, actorToResult(g, a))
	}
	return ok(map[string]any{"actors": actors})
}

func opActorAdd(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "actor_add requires group_id")
	}
	aid := argString(args, "actor_id")
	if aid == "" {
		return fail(ErrMissingActorID, "actor_add requires actor_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpActorAdd, ""); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	if _, found := g.FindActor(aid); found {
		return fail(ErrInvalidRequest, "actor %q already exists", aid)
	}
	now := nowISO()
	submit := model.Submit(argString(args, "submit"))
	if submit == "" {
		submit = model.SubmitEnter
	}
	runner := model.Runner(argString(args, "runner"))
	if runner == "" {
		runner = model.RunnerPTY
	}
	a := model.Actor{
		ID: aid, Title: argString(args, "title"), Command: argStringSlice(args, "command"),
		Env: argStringMap(args, "env"), Submit: submit, Enabled: true,
		Runner: runner, Runtime: argString(args, "runtime"), Autonomous: argBool(args, "autonomous"),
		CreatedAt: now, UpdatedAt: now,
	}
	if err := a.Validate(); err != nil {
		return fail(ErrInvalidRequest, "%v", err)
	}
	g.Actors = append(g.Actors, a)
	if err := g.Validate(); err != nil {
		return fail(ErrInvalidRequest, "%v", err)
	}
	if err := d.saveGroup(g); err != nil {
		return failErr(err)
	}
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindActorAdd, gid, g.ActiveScopeKey, by, map[string]any{"actor_id": aid})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"event_id": ev.ID})
}

func opActorRemove(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	aid := argString(args, "actor_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "actor_remove requires group_id")
	}
	if aid == "" {
		return fail(ErrMissingActorID, "actor_remove requires actor_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpActorRemove, aid); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	found := false
	remaining := g.Actors[:0]
	for _, a := range g.Actors {
		if a.ID == aid {
			found = true
			continue
		}
		remaining = append(remaining, a)
	}
	if !found {
		return fail(ErrActorNotFound, "actor %q not found", aid)
	}
	g.Actors = remaining
	d.stopActorRuntime(gid, aid)
	if err := d.saveGroup(g); err != nil {
		return failErr(err)
	}
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindActorRemove, gid, g.ActiveScopeKey, by, map[string]any{"actor_id": aid})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"event_id": ev.ID})
}

// opActorUpdate is user-only per the permission matrix (denied for both
// foreman and peer inside permission.Check).
func opActorUpdate(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	aid := argString(args, "actor_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "actor_update requires group_id")
	}
	if aid == "" {
		return fail(ErrMissingActorID, "actor_update requires actor_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpActorUpdate, aid); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	idx := -1
	for i, a := range g.Actors {
		if a.ID == aid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fail(ErrActorNotFound, "actor %q not found", aid)
	}
	a := g.Actors[idx]
	if title := argString(args, "title"); title != "" {
		a.Title = title
	}
	if cmd := argStringSlice(args, "command"); cmd != nil {
		a.Command = cmd
	}
	if submit := argString(args, "submit"); submit != "" {
		a.Submit = model.Submit(submit)
	}
	if _, has := args["enabled"]; has {
		a.Enabled = argBool(args, "enabled")
	}
	a.UpdatedAt = nowISO()
	if err := a.Validate(); err != nil {
		return fail(ErrInvalidRequest, "%v", err)
	}
	g.Actors[idx] = a
	if err := d.saveGroup(g); err != nil {
		return failErr(err)
	}
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindActorUpdate, gid, g.ActiveScopeKey, by, map[string]any{"actor_id": aid})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"event_id": ev.ID})
}

func opActorStart(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	aid := argString(args, "actor_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "actor_start requires group_id")
	}
	if aid == "" {
		return fail(ErrMissingActorID, "actor_start requires actor_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpActorStart, aid); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	a, found := g.FindActor(aid)
	if !found {
		return fail(ErrActorNotFound, "actor %q not found", aid)
	}
	if _, running := d.PTY.Get(ptysup.Key{GroupID: gid, ActorID: aid}); running {
		return fail(ErrActorAlreadyRunning, "actor %q already running", aid)
	}
	d.startActorRuntime(g, a)
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindActorStart, gid, g.ActiveScopeKey, by, map[string]any{"actor_id": aid})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"event_id": ev.ID})
}

func opActorStop(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	aid := argString(args, "actor_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "actor_stop requires group_id")
	}
	if aid == "" {
		return fail(ErrMissingActorID, "actor_stop requires actor_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpActorStop, aid); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	d.stopActorRuntime(gid, aid)
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindActorStop, gid, g.ActiveScopeKey, by, map[string]any{"actor_id": aid})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"event_id": ev.ID})
}

func opActorRestart(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	aid := argString(args, "actor_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "actor_restart requires group_id")
	}
	if aid == "" {
		return fail(ErrMissingActorID, "actor_restart requires actor_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if err := permission.Check(g, by, permission.OpActorRestart, aid); err != nil {
		return fail(ErrPermissionDenied, "%v", err)
	}
	a, found := g.FindActor(aid)
	if !found {
		return fail(ErrActorNotFound, "actor %q not found", aid)
	}
	d.stopActorRuntime(gid, aid)
	d.startActorRuntime(g, a)
	gr := d.groupRuntime(gid)
	ev, err := gr.appendEvent(model.KindActorStart, gid, g.ActiveScopeKey, by, map[string]any{"actor_id": aid, "restart": true})
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"event_id": ev.ID})
}

// opActorSetRole is kept for back-compat only: role is positional
// (ROLE-POSITIONAL — the first enabled actor is always foreman), so this op
// is a no-op that reports the actor's current derived role.
func opActorSetRole(d *Daemon, by string, args map[string]any) ipcwire.Response {
	gid := argString(args, "group_id")
	aid := argString(args, "actor_id")
	if gid == "" {
		return fail(ErrMissingGroupID, "actor_set_role requires group_id")
	}
	g, err := d.loadGroup(gid)
	if err != nil {
		return failErr(err)
	}
	if _, found := g.FindActor(aid); !found {
		return fail(ErrActorNotFound, "actor %q not found", aid)
	}
	return ok(map[string]any{"role": g.EffectiveRole(aid), "ignored": true})
}
