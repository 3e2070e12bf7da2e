// Package model holds the core data types shared by the daemon, ledger,
// inbox, and bridge packages: groups, actors, ledger events, and their
// embedded payloads.
package model

import (
	"fmt"
	"regexp"
	"unicode"
)

// Submit is how a rendered delivery is committed into an actor's PTY.
type Submit string

const (
	SubmitEnter   Submit = "enter"
	SubmitNewline Submit = "newline"
	SubmitNone    Submit = "none"
)

// Runner selects the actor supervision strategy.
type Runner string

const (
	RunnerPTY      Runner = "pty"
	RunnerHeadless Runner = "headless"
)

// ReservedActorIDs can never be assigned to an actor; they are recipient
// tokens with special meaning in the targeting rule.
var ReservedActorIDs = map[string]bool{
	"user":    true,
	"all":     true,
	"peers":   true,
	"foreman": true,
}

var actorIDPattern = regexp.MustCompile(`^[\p{L}\p{N}_-]{1,32}$`)

// ValidateActorID enforces the id grammar from the data model: 1-32 chars,
// letters/digits/CJK/underscore/dash, first char not punctuation, and not a
// reserved token.
func ValidateActorID(id string) error {
	if id == "" {
		return fmt.Errorf("actor id must not be empty")
	}
	if ReservedActorIDs[id] {
		return fmt.Errorf("actor id %q is reserved", id)
	}
	if !actorIDPattern.MatchString(id) {
		return fmt.Errorf("actor id %q has invalid characters", id)
	}
	first := []rune(id)[0]
	if unicode.IsPunct(first) && first != '_' {
		return fmt.Errorf("actor id %q must not start with punctuation", id)
	}
	return nil
}

// Scope is a project identity derived from a filesystem path.
type Scope struct {
	URL        string `yaml:"url" json:"url"`
	ScopeKey   string `yaml:"scope_key" json:"scope_key"`
	Label      string `yaml:"label" json:"label"`
	GitRemote  string `yaml:"git_remote,omitempty" json:"git_remote,omitempty"`
	AttachedAt string `yaml:"attached_at,omitempty" json:"attached_at,omitempty"`
}

// Actor is a runnable agent session definition within a group.
type Actor struct {
	ID               string            `yaml:"id" json:"id"`
	Title            string            `yaml:"title" json:"title"`
	Command          []string          `yaml:"command,omitempty" json:"command,omitempty"`
	Env              map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	DefaultScopeKey  string            `yaml:"default_scope_key,omitempty" json:"default_scope_key,omitempty"`
	Submit           Submit            `yaml:"submit" json:"submit"`
	Enabled          bool              `yaml:"enabled" json:"enabled"`
	Runner           Runner            `yaml:"runner" json:"runner"`
	Runtime          string            `yaml:"runtime" json:"runtime"`
	Autonomous       bool              `yaml:"autonomous,omitempty" json:"autonomous,omitempty"`
	CreatedAt        string            `yaml:"created_at" json:"created_at"`
	UpdatedAt        string            `yaml:"updated_at" json:"updated_at"`
	RunnerEffective  Runner            `yaml:"runner_effective,omitempty" json:"runner_effective,omitempty"`
}

// Validate checks actor invariants that don't require group context.
func (a Actor) Validate() error {
	if err := ValidateActorID(a.ID); err != nil {
		return err
	}
	if a.Runtime == "custom" && a.Runner == RunnerPTY && len(a.Command) == 0 {
		return fmt.Errorf("actor %q: custom runtime with pty runner requires a command", a.ID)
	}
	switch a.Submit {
	case SubmitEnter, SubmitNewline, SubmitNone:
	default:
		return fmt.Errorf("actor %q: invalid submit mode %q", a.ID, a.Submit)
	}
	return nil
}

// DeliveryConfig governs automation thresholds (§4.4).
type DeliveryConfig struct {
	NudgeAfterSeconds          int `yaml:"nudge_after_seconds" json:"nudge_after_seconds"`
	SelfCheckEveryHandoffs     int `yaml:"self_check_every_handoffs" json:"self_check_every_handoffs"`
	SystemRefreshEverySelf     int `yaml:"system_refresh_every_self_checks" json:"system_refresh_every_self_checks"`
	KeepaliveDelaySeconds      int `yaml:"keepalive_delay_seconds" json:"keepalive_delay_seconds"`
	AckTimeoutSeconds          int `yaml:"ack_timeout_seconds" json:"ack_timeout_seconds"`
	ResendAttempts             int `yaml:"resend_attempts" json:"resend_attempts"`
	DigestCron                 string `yaml:"digest_cron,omitempty" json:"digest_cron,omitempty"`
}

// DefaultDeliveryConfig returns the spec's documented defaults.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		NudgeAfterSeconds:      300,
		SelfCheckEveryHandoffs: 6,
		SystemRefreshEverySelf: 3,
		KeepaliveDelaySeconds:  90,
		AckTimeoutSeconds:      30,
		ResendAttempts:         2,
	}
}

// LedgerConfig governs retention/compaction thresholds (§4.3).
type LedgerConfig struct {
	MaxActiveBytes     int64 `yaml:"max_active_bytes" json:"max_active_bytes"`
	KeepTailLines      int   `yaml:"keep_tail_lines" json:"keep_tail_lines"`
	MinIntervalSeconds int   `yaml:"min_interval_seconds" json:"min_interval_seconds"`
	ArchiveBackend     string `yaml:"archive_backend,omitempty" json:"archive_backend,omitempty"`
}

// DefaultLedgerConfig returns the spec's documented defaults.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		MaxActiveBytes:     50 * 1024 * 1024,
		KeepTailLines:      2000,
		MinIntervalSeconds: 300,
	}
}

// TerminalTranscriptConfig governs optional local transcript persistence.
type TerminalTranscriptConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	PerActorBytes int  `yaml:"per_actor_bytes" json:"per_actor_bytes"`
	Persist       bool `yaml:"persist" json:"persist"`
	StripANSI     bool `yaml:"strip_ansi" json:"strip_ansi"`
}

// MessagingConfig governs default recipient policy.
type MessagingConfig struct {
	DefaultSendTo []string `yaml:"default_send_to,omitempty" json:"default_send_to,omitempty"`
}

// Group is a working group document (group.yaml).
type Group struct {
	V               int                      `yaml:"v" json:"v"`
	GroupID         string                   `yaml:"group_id" json:"group_id"`
	Title           string                   `yaml:"title" json:"title"`
	Topic           string                   `yaml:"topic,omitempty" json:"topic,omitempty"`
	CreatedAt       string                   `yaml:"created_at" json:"created_at"`
	UpdatedAt       string                   `yaml:"updated_at" json:"updated_at"`
	Running         bool                     `yaml:"running" json:"running"`
	Paused          bool                     `yaml:"paused" json:"paused"`
	ActiveScopeKey  string                   `yaml:"active_scope_key,omitempty" json:"active_scope_key,omitempty"`
	Scopes          []Scope                  `yaml:"scopes,omitempty" json:"scopes,omitempty"`
	Actors          []Actor                  `yaml:"actors,omitempty" json:"actors,omitempty"`
	Delivery        DeliveryConfig           `yaml:"delivery" json:"delivery"`
	Automation      map[string]any           `yaml:"automation,omitempty" json:"automation,omitempty"`
	Messaging       MessagingConfig          `yaml:"messaging" json:"messaging"`
	TerminalTranscript TerminalTranscriptConfig `yaml:"terminal_transcript" json:"terminal_transcript"`
	Ledger          LedgerConfig             `yaml:"ledger" json:"ledger"`
}

// Validate checks group-level invariants independent of filesystem state.
func (g Group) Validate() error {
	seen := map[string]bool{}
	scopeKeys := map[string]bool{}
	for _, s := range g.Scopes {
		scopeKeys[s.ScopeKey] = true
	}
	for _, a := range g.Actors {
		if seen[a.ID] {
			return fmt.Errorf("duplicate actor id %q", a.ID)
		}
		seen[a.ID] = true
		if err := a.Validate(); err != nil {
			return err
		}
	}
	if g.ActiveScopeKey != "" && !scopeKeys[g.ActiveScopeKey] {
		return fmt.Errorf("active_scope_key %q is not an attached scope", g.ActiveScopeKey)
	}
	return nil
}

// EffectiveRole returns "foreman" for the first enabled actor in order,
// "peer" for any other enabled actor, and "" if aid is unknown.
func (g Group) EffectiveRole(aid string) string {
	for _, a := range g.Actors {
		if !a.Enabled {
			continue
		}
		if a.ID == aid {
			return "foreman"
		}
		break
	}
	for _, a := range g.Actors {
		if a.ID == aid {
			if a.Enabled {
				return "peer"
			}
			return ""
		}
	}
	return ""
}

// Foreman returns the first enabled actor, if any.
func (g Group) Foreman() (Actor, bool) {
	for _, a := range g.Actors {
		if a.Enabled {
			return a, true
		}
	}
	return Actor{}, false
}

// FindActor returns the actor with id aid.
func (g Group) FindActor(aid string) (Actor, bool) {
	for _, a := range g.Actors {
		if a.ID == aid {
			return a, true
		}
	}
	return Actor{}, false
}
