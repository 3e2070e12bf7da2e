// Package daemon implements ccccd: the single-writer collaboration kernel
// that owns every group's ledger, actor supervision, and automation, and
// exposes them over the Unix-socket op protocol (internal/ipcwire).
// Grounded on the teacher's internal/apiserver request-router shape and
// cmd/controller's reconcile-loop composition, adapted from a Kubernetes
// control plane to a single long-lived process with no external cluster
// state.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/cccckit/cccc/internal/archive"
	"github.com/cccckit/cccc/internal/delivery"
	"github.com/cccckit/cccc/internal/eventbus"
	"github.com/cccckit/cccc/internal/fsutil"
	"github.com/cccckit/cccc/internal/headless"
	"github.com/cccckit/cccc/internal/homedir"
	"github.com/cccckit/cccc/internal/idgen"
	"github.com/cccckit/cccc/internal/ipcwire"
	"github.com/cccckit/cccc/internal/model"
	"github.com/cccckit/cccc/internal/ptysup"
	"github.com/cccckit/cccc/internal/registry"
	"github.com/cccckit/cccc/internal/runtime"
	"github.com/cccckit/cccc/internal/scope"
	"github.com/cccckit/cccc/internal/settings"
	"github.com/cccckit/cccc/internal/xtime"
)

// Version is the daemon's self-reported build version.
const Version = "0.1.0"

// opHandler handles one request under the daemon's dispatch table. by is
// the caller-supplied audit identity; args is the raw JSON args map.
type opHandler func(d *Daemon, by string, args map[string]any) ipcwire.Response

// Daemon is the long-running ccccd process state.
type Daemon struct {
	Layout   homedir.Layout
	Registry *registry.Registry
	Settings settings.Document
	Bus      *eventbus.Broadcaster
	PTY      *ptysup.Supervisor
	Headless *headless.Supervisor
	Archive  *archive.Store // nil unless settings.archive.database_url is set

	log logr.Logger

	groupsMu sync.Mutex
	groups   map[string]*groupRuntime // gid -> runtime

	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Daemon rooted at home, loading (or defaulting) registry
// and settings. It does not bind the socket or start any tickers — call
// Run for that.
func New(home string, newProvider func(runtime string) (headless.Provider, error), log logr.Logger) (*Daemon, error) {
	layout := homedir.NewLayout(home)
	if err := layout.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("daemon: ensure dirs: %w", err)
	}

	reg, err := registry.Load(layout.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load registry: %w", err)
	}
	sdoc, err := settings.Load(layout.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load settings: %w", err)
	}
	bus, err := eventbus.New()
	if err != nil {
		return nil, fmt.Errorf("daemon: start event bus: %w", err)
	}

	d := &Daemon{
		Layout:   layout,
		Registry: reg,
		Settings: sdoc,
		Bus:      bus,
		log:      log.WithName("ccccd"),
		groups:   map[string]*groupRuntime{},
		shutdown: make(chan struct{}),
	}
	d.PTY = ptysup.NewSupervisor(func(k ptysup.Key) string { return runnerStateDir(d.Layout, k.GroupID) })
	d.Headless = headless.NewSupervisor(newProvider)

	if sdoc.Archive.DatabaseURL != "" {
		store, err := archive.NewStore(context.Background(), sdoc.Archive.DatabaseURL)
		if err != nil {
			// Non-fatal: the archive mirror is optional off-host retention,
			// never the live read path. A group with archive_backend:
			// postgres simply skips mirroring until this succeeds.
			d.log.Error(err, "archive mirror unavailable, continuing without it")
		} else {
			d.Archive = store
		}
	}
	return d, nil
}

func (d *Daemon) groupRuntime(gid string) *groupRuntime {
	d.groupsMu.Lock()
	defer d.groupsMu.Unlock()
	gr, ok := d.groups[gid]
	if !ok {
		gr = newGroupRuntime(d.Layout, gid, d.Bus)
		d.groups[gid] = gr
	}
	return gr
}

// loadGroup reads groups/<gid>/group.yaml. Returns ErrGroupNotFound shaped
// error when absent.
func (d *Daemon) loadGroup(gid string) (model.Group, error) {
	path := d.Layout.GroupYAML(gid)
	if !fsutil.Exists(path) {
		return model.Group{}, &opError{Code: ErrGroupNotFound, Message: fmt.Sprintf("group %q not found", gid)}
	}
	var g model.Group
	if err := fsutil.ReadYAML(path, &g); err != nil {
		return model.Group{}, fmt.Errorf("daemon: read group %s: %w", gid, err)
	}
	return g, nil
}

func (d *Daemon) saveGroup(g model.Group) error {
	g.UpdatedAt = xtime.NowISO()
	if err := fsutil.AtomicWriteYAML(d.Layout.GroupYAML(g.GroupID), g, 0o644); err != nil {
		return err
	}
	meta := registry.GroupMeta{
		GroupID: g.GroupID, Title: g.Title, Topic: g.Topic,
		Path: d.Layout.GroupDir(g.GroupID), DefaultScopeKey: g.ActiveScopeKey,
		CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}
	return d.Registry.Put(meta)
}

// opError is an internal error carrying a stable wire code; Dispatch
// translates it into ipcwire.ErrResponse.
type opError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *opError) Error() string { return e.Code + ": " + e.Message }

func fail(code, format string, args ...any) ipcwire.Response {
	return ipcwire.ErrResponse(code, fmt.Sprintf(format, args...), nil)
}

func failErr(err error) ipcwire.Response {
	var oe *opError
	if as, ok := err.(*opError); ok {
		oe = as
	}
	if oe != nil {
		return ipcwire.ErrResponse(oe.Code, oe.Message, oe.Details)
	}
	return ipcwire.ErrResponse(ErrGroupStartFailed, err.Error(), nil)
}

func ok(result map[string]any) ipcwire.Response { return ipcwire.OKResponse(result) }

// dispatchTable is the closed op surface from §4.1. Built once; never
// mutated after init.
var dispatchTable = map[string]opHandler{
	"ping":               opPing,
	"shutdown":           opShutdown,
	"attach":             opAttach,
	"group_create":       opGroupCreate,
	"group_update":       opGroupUpdate,
	"group_show":         opGroupShow,
	"group_delete":       opGroupDelete,
	"group_detach_scope": opGroupDetachScope,
	"group_use":          opGroupUse,
	"groups":             opGroups,
	"group_start":        opGroupStart,
	"group_stop":         opGroupStop,
	"group_set_state":    opGroupSetState,
	"actor_list":         opActorList,
	"actor_add":          opActorAdd,
	"actor_remove":       opActorRemove,
	"actor_update":       opActorUpdate,
	"actor_start":        opActorStart,
	"actor_stop":         opActorStop,
	"actor_restart":      opActorRestart,
	"actor_set_role":     opActorSetRole,
	"term_resize":        opTermResize,
	"inbox_list":         opInboxList,
	"inbox_mark_read":    opInboxMarkRead,
	"send":               opSend,
	"ledger_snapshot":    opLedgerSnapshot,
	"ledger_compact":     opLedgerCompact,
}

// Dispatch routes req to its handler. term_attach is handled by the
// connection loop directly (it switches the connection to raw-byte mode
// after acking), so it never reaches this table.
func (d *Daemon) Dispatch(req ipcwire.Request) ipcwire.Response {
	h, ok2 := dispatchTable[req.Op]
	if !ok2 {
		return fail(ErrUnknownOp, "unknown op %q", req.Op)
	}
	by := req.By
	if by == "" {
		by = "user"
	}
	return h(d, by, req.Args)
}

// Run executes the full startup sequence (§4.1) and serves until Shutdown
// is called or a shutdown op arrives.
func (d *Daemon) Run(ctx context.Context) error {
	alreadyRunning, err := d.acquireOrExit()
	if err != nil {
		return err
	}
	if alreadyRunning {
		d.log.Info("ccccd already running; exiting", "socket", d.Layout.SocketPath)
		return nil
	}
	d.reapOrphans()
	d.autostartGroups()

	d.wg.Add(2)
	go d.automationTicker(ctx)
	go d.compactionTicker(ctx)

	ln, err := net.Listen("unix", d.Layout.SocketPath)
	if err != nil {
		return fmt.Errorf("daemon: listen %s: %w", d.Layout.SocketPath, err)
	}
	d.listener = ln
	d.log.Info("ccccd listening", "socket", d.Layout.SocketPath)

	go func() {
		<-ctx.Done()
		d.Shutdown()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-d.shutdown:
				d.wg.Wait()
				return nil
			default:
				return fmt.Errorf("daemon: accept: %w", err)
			}
		}
		go d.handleConn(conn)
	}
}

// Shutdown stops all PTY sessions, the tickers, and unlinks the socket.
func (d *Daemon) Shutdown() {
	select {
	case <-d.shutdown:
		return // already shutting down
	default:
		close(d.shutdown)
	}
	d.groupsMu.Lock()
	gids := make([]string, 0, len(d.groups))
	for gid := range d.groups {
		gids = append(gids, gid)
	}
	d.groupsMu.Unlock()
	for _, gid := range gids {
		if g, err := d.loadGroup(gid); err == nil {
			for _, a := range g.Actors {
				d.stopActorRuntime(gid, a.ID)
			}
		}
	}
	d.Bus.Close()
	if d.Archive != nil {
		d.Archive.Close()
	}
	if d.listener != nil {
		_ = d.listener.Close()
	}
	_ = os.Remove(d.Layout.SocketPath)
	_ = os.Remove(d.Layout.PIDPath)
}

func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		req, err := ipcwire.ReadRequest(r)
		if err != nil {
			return
		}
		if req.Op == "term_attach" {
			d.serveTermAttach(conn, r, req)
			return
		}
		resp := d.Dispatch(req)
		if err := ipcwire.WriteResponse(conn, resp); err != nil {
			return
		}
		if req.Op == "shutdown" {
			go d.Shutdown()
			return
		}
	}
}

// acquireOrExit implements startup steps 1-3: if a live daemon already
// answers ping on the existing socket, it reports true and Run returns nil
// so this process exits cleanly; otherwise it removes the stale socket and
// writes its own PID.
func (d *Daemon) acquireOrExit() (bool, error) {
	if fsutil.Exists(d.Layout.SocketPath) {
		if pingSocket(d.Layout.SocketPath) {
			return true, nil
		}
		_ = os.Remove(d.Layout.SocketPath)
	}
	return false, fsutil.AtomicWriteText(d.Layout.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// pingSocket dials path and issues a bare ping request, returning true if a
// well-formed response line comes back before the deadline.
func pingSocket(path string) bool {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(500 * time.Millisecond))

	line, err := json.Marshal(ipcwire.Request{V: 1, Op: "ping"})
	if err != nil {
		return false
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return false
	}
	br := bufio.NewReader(conn)
	respLine, err := br.ReadBytes('\n')
	if err != nil || len(respLine) == 0 {
		return false
	}
	var resp ipcwire.Response
	return json.Unmarshal(respLine, &resp) == nil
}

// reapOrphans implements startup step 4: scan every group's PTY runner
// state sidecar and SIGTERM/SIGKILL any PID left behind by a prior crash.
func (d *Daemon) reapOrphans() {
	entries, err := os.ReadDir(d.Layout.GroupsDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		gid := e.Name()
		dir := runnerStateDir(d.Layout, gid)
		sidecars, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, sc := range sidecars {
			path := dir + "/" + sc.Name()
			var rec struct {
				PID int `json:"pid"`
			}
			if err := fsutil.ReadJSON(path, &rec); err != nil {
				continue
			}
			if rec.PID > 0 {
				_ = syscall.Kill(rec.PID, syscall.SIGTERM)
				time.Sleep(200 * time.Millisecond)
				_ = syscall.Kill(rec.PID, syscall.SIGKILL)
			}
			_ = os.Remove(path)
		}
	}
}

// autostartGroups implements startup step 5: for every group with
// running=true, spawn every enabled PTY actor and inject its system
// prompt.
func (d *Daemon) autostartGroups() {
	for _, meta := range d.Registry.List() {
		g, err := d.loadGroup(meta.GroupID)
		if err != nil || !g.Running {
			continue
		}
		d.startGroupActors(g)
	}
}

func (d *Daemon) startGroupActors(g model.Group) {
	for _, a := range g.Actors {
		if !a.Enabled {
			continue
		}
		d.startActorRuntime(g, a)
	}
}

func (d *Daemon) startActorRuntime(g model.Group, a model.Actor) {
	runner := a.Runner
	if runner == model.RunnerPTY && !ptysup.Supported() {
		runner = model.RunnerHeadless
		a.RunnerEffective = model.RunnerHeadless
		gr := d.groupRuntime(g.GroupID)
		_, _ = gr.appendEvent(model.KindActorUpdate, g.GroupID, g.ActiveScopeKey, "daemon", map[string]any{
			"actor_id": a.ID, "runner_effective": "headless",
		})
	}

	switch runner {
	case model.RunnerPTY:
		key := ptysup.Key{GroupID: g.GroupID, ActorID: a.ID}
		cmd := a.Command
		if len(cmd) == 0 {
			cmd = commandForRuntime(a.Runtime, a.Autonomous)
		}
		if _, err := d.PTY.Start(key, cmd, a.Env, 120, 40); err != nil {
			d.log.Error(err, "actor start failed", "group", g.GroupID, "actor", a.ID)
			return
		}
	default:
		if _, err := d.Headless.Start(g.GroupID, a.ID, a.Runtime, systemPromptFor(g, a)); err != nil {
			d.log.Error(err, "headless actor start failed", "group", g.GroupID, "actor", a.ID)
			return
		}
	}
	d.injectSystemPrompt(g, a)
}

func (d *Daemon) stopActorRuntime(gid, aid string) {
	key := ptysup.Key{GroupID: gid, ActorID: aid}
	if _, ok2 := d.PTY.Get(key); ok2 {
		_ = d.PTY.Stop(key)
		return
	}
	d.Headless.Stop(gid, aid)
}

func (d *Daemon) injectSystemPrompt(g model.Group, a model.Actor) {
	prompt := systemPromptFor(g, a)
	key := ptysup.Key{GroupID: g.GroupID, ActorID: a.ID}
	if sess, ok2 := d.PTY.Get(key); ok2 {
		payload := delivery.InjectSystemPrompt(prompt, a.Submit)
		_ = sess.WriteInput([]byte(payload))
	}
}

func systemPromptFor(g model.Group, a model.Actor) string {
	role := "peer"
	if g.EffectiveRole(a.ID) == "foreman" {
		role = "foreman"
	}
	return fmt.Sprintf("[cccc] You are %q (%s) in group %q (%s).", a.ID, role, g.Title, g.GroupID)
}

// commandForRuntime resolves a known runtime id to its default launch
// command, optionally appending its autonomous-mode flags. "custom" (and
// any unrecognized id) falls back to nil, requiring the actor's own
// Command to be set.
func commandForRuntime(runtimeID string, autonomous bool) []string {
	if autonomous {
		if cmd := runtime.CommandWithAutonomousFlags(runtimeID); cmd != nil {
			return cmd
		}
	}
	return runtime.CommandFor(runtimeID)
}

// newGroupID mints a fresh opaque group id.
func newGroupID() string { return idgen.GroupID() }

// scopeFor derives a scope from path, used by attach/group_create.
func scopeFor(path string) (model.Scope, error) {
	s, err := scope.Derive(path)
	if err != nil {
		return model.Scope{}, err
	}
	s.AttachedAt = xtime.NowISO()
	return s, nil
}
