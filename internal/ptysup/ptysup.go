// Package ptysup is the PTY actor supervisor: it owns the lifecycle of
// interactive CLI subprocesses attached to pseudo-terminals, fans their
// output out to attached clients with backlog replay, and detects
// bracketed-paste support by scanning the output stream. Grounded on the
// original implementation's runners/pty.py, with the Go read-loop/ring
// buffer shape adapted from the pack's creack/pty-based drivers.
package ptysup

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/cccckit/cccc/internal/fsutil"
	"github.com/cccckit/cccc/internal/obs"
)

const (
	defaultBacklogBytes  = 2 << 20 // 2 MiB
	defaultClientCapBytes = 8 << 20 // 8 MiB
	readChunkBytes       = 64 * 1024
)

var (
	bracketedPasteEnable  = []byte("\x1b[?2004h")
	bracketedPasteDisable = []byte("\x1b[?2004l")
)

// Key identifies a session by (group_id, actor_id).
type Key struct {
	GroupID string
	ActorID string
}

// Client is one attached terminal connection.
type Client struct {
	id      uint64
	outbox  [][]byte
	outLen  int
	send    func([]byte) error
	closed  bool
}

// Session is one supervised PTY-backed process.
type Session struct {
	key     Key
	cmd     *exec.Cmd
	master  *os.File
	running bool

	mu             sync.Mutex
	backlog        []byte
	backlogCap     int
	bracketedPaste bool
	pasteCarry     []byte
	clients        map[uint64]*Client
	writerID       uint64
	nextClientID   uint64

	onExit func(Key)
	done   chan struct{}
}

// Supervisor owns every live Session, keyed by (group_id, actor_id).
type Supervisor struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	stateDir func(Key) string // returns the runner-state sidecar dir for a key
}

// NewSupervisor returns an empty Supervisor. stateDir, if non-nil, is used
// to write/remove the runner state sidecar on spawn/exit.
func NewSupervisor(stateDir func(Key) string) *Supervisor {
	return &Supervisor{sessions: map[Key]*Session{}, stateDir: stateDir}
}

// Supported reports whether PTY sessions are supported on this platform.
// The answer comes from supportedImpl in supported_unix.go or
// supported_windows.go, chosen by build tag.
func Supported() bool { return supportedImpl() }

// Start spawns command as a new session leader under a PTY of the given
// size, registering it under key. If a session already exists and is
// running for key, it is returned unchanged (at-most-one-per-key
// invariant).
func (s *Supervisor) Start(key Key, command []string, env map[string]string, cols, rows int) (*Session, error) {
	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok && existing.running {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	if len(command) == 0 {
		return nil, fmt.Errorf("actor_start_failed: empty command")
	}
	if !Supported() {
		return nil, fmt.Errorf("actor_start_failed: pty not supported on this platform")
	}
	if cols <= 0 {
		cols = 120
	}
	if rows <= 0 {
		rows = 40
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("actor_start_failed: %w", err)
	}

	sess := &Session{
		key:        key,
		cmd:        cmd,
		master:     master,
		running:    true,
		backlogCap: defaultBacklogBytes,
		clients:    map[uint64]*Client{},
		done:       make(chan struct{}),
		onExit:     s.onSessionExit,
	}

	s.mu.Lock()
	s.sessions[key] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	obs.SetPTYSessionsActive(n)

	if s.stateDir != nil {
		s.writeRunnerState(key, sess)
	}

	go sess.readLoop()
	go sess.waitExit()

	return sess, nil
}

func (s *Supervisor) writeRunnerState(key Key, sess *Session) {
	dir := s.stateDir(key)
	if dir == "" {
		return
	}
	path := dir + "/" + key.ActorID + ".json"
	_ = fsutil.AtomicWriteJSON(path, map[string]any{
		"v": 1, "kind": "pty", "group_id": key.GroupID, "actor_id": key.ActorID,
		"pid": sess.cmd.Process.Pid, "started_at": time.Now().UTC().Format(time.RFC3339),
	}, 0o644)
}

func (s *Supervisor) onSessionExit(key Key) {
	s.mu.Lock()
	delete(s.sessions, key)
	n := len(s.sessions)
	s.mu.Unlock()
	obs.SetPTYSessionsActive(n)
	if s.stateDir != nil {
		dir := s.stateDir(key)
		if dir != "" {
			_ = os.Remove(dir + "/" + key.ActorID + ".json")
		}
	}
}

// Get returns the session for key, if running.
func (s *Supervisor) Get(key Key) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// GroupRunning reports whether any session belonging to gid is alive.
func (s *Supervisor) GroupRunning(gid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, sess := range s.sessions {
		if k.GroupID == gid && sess.running {
			return true
		}
	}
	return false
}

// Stop sends SIGTERM, waits up to 1s, then SIGKILL, and always closes the
// master fd.
func (s *Supervisor) Stop(key Key) error {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session_not_found")
	}
	return sess.stop()
}

func (sess *Session) stop() error {
	if sess.cmd.Process != nil {
		_ = sess.cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-sess.done:
	case <-time.After(time.Second):
		if sess.cmd.Process != nil {
			_ = sess.cmd.Process.Kill()
		}
		<-sess.done
	}
	return nil
}

func (sess *Session) waitExit() {
	_ = sess.cmd.Wait()
	sess.mu.Lock()
	sess.running = false
	sess.mu.Unlock()
	_ = sess.master.Close()
	close(sess.done)
	if sess.onExit != nil {
		sess.onExit(sess.key)
	}
}

func (sess *Session) readLoop() {
	buf := make([]byte, readChunkBytes)
	for {
		n, err := sess.master.Read(buf)
		if n > 0 {
			sess.handleChunk(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (sess *Session) handleChunk(chunk []byte) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.backlog = append(sess.backlog, chunk...)
	if over := len(sess.backlog) - sess.backlogCap; over > 0 {
		sess.backlog = sess.backlog[over:]
	}

	sess.updateBracketedPaste(chunk)

	for id, c := range sess.clients {
		if c.closed {
			continue
		}
		c.outbox = append(c.outbox, append([]byte(nil), chunk...))
		c.outLen += len(chunk)
		if c.outLen > defaultClientCapBytes {
			sess.detachLocked(id)
			continue
		}
		sess.flushClientLocked(c)
	}
}

// updateBracketedPaste maintains a small carry-over buffer across reads so
// a split enable/disable sequence is still detected, per §9.
func (sess *Session) updateBracketedPaste(chunk []byte) {
	window := append(sess.pasteCarry, chunk...)
	enableAt := bytes.LastIndex(window, bracketedPasteEnable)
	disableAt := bytes.LastIndex(window, bracketedPasteDisable)
	if enableAt >= 0 || disableAt >= 0 {
		sess.bracketedPaste = enableAt > disableAt
	}
	carryLen := len(bracketedPasteEnable) - 1
	if len(window) > carryLen {
		sess.pasteCarry = append([]byte(nil), window[len(window)-carryLen:]...)
	} else {
		sess.pasteCarry = append([]byte(nil), window...)
	}
}

func (sess *Session) flushClientLocked(c *Client) {
	for len(c.outbox) > 0 {
		chunk := c.outbox[0]
		if err := c.send(chunk); err != nil {
			sess.detachLocked(c.id)
			return
		}
		c.outLen -= len(chunk)
		c.outbox = c.outbox[1:]
	}
}

func (sess *Session) detachLocked(id uint64) {
	c, ok := sess.clients[id]
	if !ok {
		return
	}
	c.closed = true
	delete(sess.clients, id)
	if sess.writerID == id {
		sess.promoteNextWriterLocked()
	}
}

func (sess *Session) promoteNextWriterLocked() {
	sess.writerID = 0
	for id := range sess.clients {
		sess.writerID = id
		return
	}
}

// Attach registers a new client, preloading it with the current backlog.
// The first attached client becomes the writer. It returns the client's id
// and its current backlog.
func (sess *Session) Attach(send func([]byte) error) (uint64, []byte) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.nextClientID++
	id := sess.nextClientID
	c := &Client{id: id, send: send}
	sess.clients[id] = c
	if sess.writerID == 0 {
		sess.writerID = id
	}
	backlog := append([]byte(nil), sess.backlog...)
	return id, backlog
}

// Detach removes a client; if it was the writer, the next client in
// iteration order is promoted.
func (sess *Session) Detach(id uint64) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.detachLocked(id)
}

// IsWriter reports whether id is the current writer.
func (sess *Session) IsWriter(id uint64) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.writerID == id
}

// BracketedPasteEnabled reports the most recently detected state.
func (sess *Session) BracketedPasteEnabled() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.bracketedPaste
}

// BacklogLen reports the current backlog size, for PTY-BACKLOG-BOUND tests.
func (sess *Session) BacklogLen() int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.backlog)
}

// WriteInput writes b to the master fd, looping with a short backoff on
// EAGAIN for up to ~5s cumulative.
func (sess *Session) WriteInput(b []byte) error {
	deadline := time.Now().Add(5 * time.Second)
	for len(b) > 0 {
		n, err := sess.master.Write(b)
		if err != nil {
			if isEAGAIN(err) && time.Now().Before(deadline) {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("actor_write_failed: %w", err)
		}
		b = b[n:]
	}
	return nil
}

func isEAGAIN(err error) bool {
	return err == syscall.EAGAIN
}

// Resize sets TIOCSWINSZ on the master and signals SIGWINCH to the process
// group.
func (sess *Session) Resize(cols, rows int) error {
	if err := pty.Setsize(sess.master, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return err
	}
	if sess.cmd.Process != nil {
		_ = syscall.Kill(-sess.cmd.Process.Pid, syscall.SIGWINCH)
	}
	return nil
}

// Running reports whether the process has not yet exited.
func (sess *Session) Running() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.running
}
