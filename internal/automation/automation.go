// Package automation implements the per-actor automation ticker: unread
// nudges, self-check cadence, system-prompt refresh, keep-alive progress
// reminders, and the back-pressure resend model. Grounded on the original
// implementation's daemon/automation.py for the nudge/self-check portion;
// keep-alive and back-pressure are specified but absent from the original
// source, so they are implemented fresh in the same state-file style.
package automation

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cccckit/cccc/internal/fsutil"
	"github.com/cccckit/cccc/internal/model"
)

// ActorState is the persisted per-actor automation bookkeeping
// (state/automation.json).
type ActorState struct {
	HandoffCount     int    `json:"handoff_count"`
	SelfCheckCount   int    `json:"self_check_count"`
	LastNudgeEventID string `json:"last_nudge_event_id,omitempty"`
	LastNudgeAt      string `json:"last_nudge_at,omitempty"`
}

// Store persists state/automation.json: a map of actor id to ActorState.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore binds a Store to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) load() (map[string]ActorState, error) {
	states := map[string]ActorState{}
	if !fsutil.Exists(s.path) {
		return states, nil
	}
	if err := fsutil.ReadJSON(s.path, &states); err != nil {
		return nil, err
	}
	return states, nil
}

func (s *Store) save(states map[string]ActorState) error {
	return fsutil.AtomicWriteJSON(s.path, states, 0o644)
}

// Get returns the stored state for aid.
func (s *Store) Get(aid string) (ActorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states, err := s.load()
	if err != nil {
		return ActorState{}, err
	}
	return states[aid], nil
}

// Put persists st for aid.
func (s *Store) Put(aid string, st ActorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	states, err := s.load()
	if err != nil {
		return err
	}
	states[aid] = st
	return s.save(states)
}

// NudgeDecision is the outcome of evaluating whether to nudge an actor.
type NudgeDecision struct {
	ShouldNudge bool
	Text        string
	EventID     string
}

// EvaluateNudge implements the unread-nudge rule: if the oldest unread
// message is older than cfg.NudgeAfterSeconds and hasn't already produced a
// nudge, emit one.
func EvaluateNudge(cfg model.DeliveryConfig, st ActorState, aid string, oldestUnreadID, oldestUnreadTS string, now time.Time) NudgeDecision {
	if oldestUnreadID == "" {
		return NudgeDecision{}
	}
	if oldestUnreadID == st.LastNudgeEventID {
		return NudgeDecision{}
	}
	ts, err := parseTS(oldestUnreadTS)
	if err != nil {
		return NudgeDecision{}
	}
	if now.Sub(ts) < time.Duration(cfg.NudgeAfterSeconds)*time.Second {
		return NudgeDecision{}
	}
	text := "[cccc] NUDGE: unread message waiting (oldest " + oldestUnreadTS + "). " +
		"Run: cccc inbox --actor-id " + aid + " --by " + aid + " --mark-read"
	return NudgeDecision{ShouldNudge: true, Text: text, EventID: oldestUnreadID}
}

func parseTS(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05Z", s)
}

// SelfCheckDecision is the outcome of evaluating self-check/system-refresh
// cadence after a handoff.
type SelfCheckDecision struct {
	SelfCheck     bool
	SystemRefresh bool
}

// EvaluateOnHandoff bumps the handoff counter and decides whether this
// handoff should trigger a self-check (and, within that, a system prompt
// refresh). Returns the new state to persist.
func EvaluateOnHandoff(cfg model.DeliveryConfig, st ActorState) (ActorState, SelfCheckDecision) {
	st.HandoffCount++
	var dec SelfCheckDecision
	if cfg.SelfCheckEveryHandoffs > 0 && st.HandoffCount%cfg.SelfCheckEveryHandoffs == 0 {
		dec.SelfCheck = true
		st.SelfCheckCount++
		if cfg.SystemRefreshEverySelf > 0 && st.SelfCheckCount%cfg.SystemRefreshEverySelf == 0 {
			dec.SystemRefresh = true
		}
	}
	return st, dec
}

const selfCheckText = "[cccc] SELF-CHECK: reply in 3 bullets — (1) what changed, (2) next step, (3) blocker/decision."

// SelfCheckText is the fixed self-check prompt body.
func SelfCheckText() string { return selfCheckText }

var (
	progressPattern = regexp.MustCompile(`(?m)^\s*(?:[-*]\s*)?Progress\s*(?:\(|:)`)
	nextPattern      = regexp.MustCompile(`(?m)^\s*(?:[-*]\s*)?Next\s*(?:\(|:)\s*(.+)$`)
)

// ContainsProgressLine reports whether body contains a "Progress" line that
// should schedule a keep-alive.
func ContainsProgressLine(body string) bool {
	return progressPattern.MatchString(body)
}

// NextHint extracts the last "Next: ..." line's hint text, if present.
func NextHint(body string) string {
	matches := nextPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[len(matches)-1][1])
}

// KeepaliveText renders the keep-alive continuation message for hint (which
// may be empty).
func KeepaliveText(hint string) string {
	if hint == "" {
		return "[cccc] keepalive: continue:"
	}
	return "[cccc] keepalive: continue: " + hint
}
