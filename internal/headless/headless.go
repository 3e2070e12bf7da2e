// Package headless supervises provider-backed "headless" actors: those
// whose runner is headless rather than pty, driven by a model API instead
// of an interactive CLI subprocess. Grounded on cmd/agent-runner/main.go's
// request/response tool-calling loop (the teacher's own headless runner),
// generalized from a Kubernetes AgentRun custom resource to a group actor.
package headless

import (
	"context"
	"fmt"
	"sync"
)

// Provider is a model backend capable of running one turn of a headless
// actor's loop. Concrete implementations wrap anthropic-sdk-go and
// openai-go/v3.
type Provider interface {
	// Respond sends systemPrompt + the pending inbox text to the model and
	// returns its reply text.
	Respond(ctx context.Context, systemPrompt, input string) (string, error)
}

// Session is one running headless actor loop.
type Session struct {
	GroupID string
	ActorID string

	provider Provider
	mu       sync.Mutex
	system   string
	running  bool
	cancel   context.CancelFunc
}

// Supervisor mirrors ptysup.Supervisor's shape for headless actors, so the
// daemon can treat both runner kinds uniformly where possible.
type Supervisor struct {
	mu       sync.Mutex
	sessions map[string]*Session // key: group_id + "/" + actor_id
	newProvider func(runtime string) (Provider, error)
}

// NewSupervisor returns an empty Supervisor. newProvider resolves a runtime
// id (ccccd maps "anthropic" and "openai") to a concrete Provider.
func NewSupervisor(newProvider func(runtime string) (Provider, error)) *Supervisor {
	return &Supervisor{sessions: map[string]*Session{}, newProvider: newProvider}
}

func key(gid, aid string) string { return gid + "/" + aid }

// Start begins a headless session for (gid, aid) using runtime's provider,
// returning the existing session if one is already running.
func (s *Supervisor) Start(gid, aid, runtime, systemPrompt string) (*Session, error) {
	s.mu.Lock()
	if existing, ok := s.sessions[key(gid, aid)]; ok && existing.Running() {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	provider, err := s.newProvider(runtime)
	if err != nil {
		return nil, fmt.Errorf("actor_start_failed: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{GroupID: gid, ActorID: aid, provider: provider, system: systemPrompt, running: true, cancel: cancel}

	s.mu.Lock()
	s.sessions[key(gid, aid)] = sess
	s.mu.Unlock()

	_ = ctx // the loop itself is driven by Deliver calls, not a background goroutine
	return sess, nil
}

// Stop cancels and removes the session for (gid, aid).
func (s *Supervisor) Stop(gid, aid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key(gid, aid)]; ok {
		sess.mu.Lock()
		sess.running = false
		sess.mu.Unlock()
		sess.cancel()
		delete(s.sessions, key(gid, aid))
	}
}

// Get returns the session for (gid, aid), if running.
func (s *Supervisor) Get(gid, aid string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key(gid, aid)]
	return sess, ok
}

// Running reports whether the session is still active.
func (sess *Session) Running() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.running
}

// Deliver plays the role ptysup.WriteInput plays for PTY actors: it hands
// the rendered delivery text to the provider and returns its reply, which
// the daemon appends back into the ledger as a chat.message from this
// actor.
func (sess *Session) Deliver(ctx context.Context, text string) (string, error) {
	if !sess.Running() {
		return "", fmt.Errorf("actor_not_running")
	}
	return sess.provider.Respond(ctx, sess.system, text)
}
