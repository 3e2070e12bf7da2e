// Package runtime holds the catalogue of known agent CLI runtimes, their
// default commands, and autonomous-mode flag sets. This supplements the
// distilled spec with the full runtime table from the original
// implementation's kernel/runtime.py.
package runtime

// Entry describes one known runtime: its display name, default command,
// capability flags, and how MCP servers are registered for it.
type Entry struct {
	ID             string
	DisplayName    string
	Command        []string
	AutonomousFlag []string
	SupportsMCP    bool
	MCPAddPattern  string
}

// KnownRuntimes is the full catalogue, keyed by runtime id. "custom" is
// handled specially (no default command) and is not present here.
var KnownRuntimes = map[string]Entry{
	"claude": {
		ID: "claude", DisplayName: "Claude Code",
		Command:        []string{"claude"},
		AutonomousFlag: []string{"--dangerously-skip-permissions"},
		SupportsMCP:    true,
		MCPAddPattern:  "claude mcp add {name} -- {command}",
	},
	"codex": {
		ID: "codex", DisplayName: "Codex CLI",
		Command:        []string{"codex"},
		AutonomousFlag: []string{"--full-auto"},
		SupportsMCP:    true,
		MCPAddPattern:  "codex mcp add {name} {command}",
	},
	"droid": {
		ID: "droid", DisplayName: "Droid",
		Command:        []string{"droid"},
		AutonomousFlag: []string{"--auto"},
		SupportsMCP:    false,
	},
	"opencode": {
		ID: "opencode", DisplayName: "OpenCode",
		Command:        []string{"opencode"},
		AutonomousFlag: nil,
		SupportsMCP:    true,
		MCPAddPattern:  "opencode mcp add {name} {command}",
	},
	"gemini": {
		ID: "gemini", DisplayName: "Gemini CLI",
		Command:        []string{"gemini"},
		AutonomousFlag: []string{"--yolo"},
		SupportsMCP:    true,
		MCPAddPattern:  "gemini mcp add {name} {command}",
	},
	"copilot": {
		ID: "copilot", DisplayName: "GitHub Copilot CLI",
		Command:        []string{"copilot"},
		AutonomousFlag: nil,
		SupportsMCP:    false,
	},
	"cursor": {
		ID: "cursor", DisplayName: "Cursor Agent",
		Command:        []string{"cursor-agent"},
		AutonomousFlag: []string{"--force"},
		SupportsMCP:    false,
	},
	"auggie": {
		ID: "auggie", DisplayName: "Auggie",
		Command:        []string{"auggie"},
		AutonomousFlag: []string{"--auto-approve"},
		SupportsMCP:    false,
	},
	"kilocode": {
		ID: "kilocode", DisplayName: "Kilo Code",
		Command:        []string{"kilocode"},
		AutonomousFlag: nil,
		SupportsMCP:    false,
	},
}

// PrimaryRuntimes are the runtimes surfaced first in UI pickers.
var PrimaryRuntimes = []string{"claude", "codex", "gemini"}

// Detect returns the runtime entry for id, if known.
func Detect(id string) (Entry, bool) {
	e, ok := KnownRuntimes[id]
	return e, ok
}

// CommandFor returns the default command for a known runtime id.
func CommandFor(id string) []string {
	if e, ok := KnownRuntimes[id]; ok {
		return append([]string(nil), e.Command...)
	}
	return nil
}

// CommandWithAutonomousFlags returns the default command plus its
// autonomous-mode flags, used when an actor opts into unattended operation.
func CommandWithAutonomousFlags(id string) []string {
	e, ok := KnownRuntimes[id]
	if !ok {
		return nil
	}
	out := append([]string(nil), e.Command...)
	return append(out, e.AutonomousFlag...)
}

// Available filters KnownRuntimes to those whose command id is present in
// lookPath (injected so callers can use exec.LookPath or a fake in tests).
func Available(lookPath func(string) (string, error)) []string {
	var out []string
	for id, e := range KnownRuntimes {
		if len(e.Command) == 0 {
			continue
		}
		if _, err := lookPath(e.Command[0]); err == nil {
			out = append(out, id)
		}
	}
	return out
}
