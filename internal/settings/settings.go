// Package settings loads and saves the global settings.yaml: the runtime
// pool recommendation list and ambient observability configuration. These
// are supplemented features carried over from the original implementation's
// kernel/settings.py, not present in the distilled spec.
package settings

import (
	"github.com/cccckit/cccc/internal/fsutil"
)

// RuntimePoolEntry is one recommendation in the prioritized runtime pool.
type RuntimePoolEntry struct {
	RuntimeID string `yaml:"runtime_id" json:"runtime_id"`
	Priority  int    `yaml:"priority" json:"priority"`
	Scenario  string `yaml:"scenario,omitempty" json:"scenario,omitempty"`
	Notes     string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// DefaultRuntimePool mirrors the original implementation's recommendation
// table, preferring Claude/Codex/Gemini for general work and narrower tools
// for specific scenarios.
func DefaultRuntimePool() []RuntimePoolEntry {
	return []RuntimePoolEntry{
		{RuntimeID: "claude", Priority: 1, Scenario: "general", Notes: "default foreman choice"},
		{RuntimeID: "codex", Priority: 2, Scenario: "general"},
		{RuntimeID: "gemini", Priority: 3, Scenario: "general"},
		{RuntimeID: "droid", Priority: 4, Scenario: "refactor"},
		{RuntimeID: "opencode", Priority: 5, Scenario: "general"},
		{RuntimeID: "copilot", Priority: 6, Scenario: "review"},
		{RuntimeID: "cursor", Priority: 7, Scenario: "general"},
		{RuntimeID: "auggie", Priority: 8, Scenario: "general"},
		{RuntimeID: "kilocode", Priority: 9, Scenario: "general"},
	}
}

// Observability is the global, process-wide observability configuration.
type Observability struct {
	DeveloperMode       bool                       `yaml:"developer_mode" json:"developer_mode"`
	LogLevel            string                     `yaml:"log_level" json:"log_level"`
	Components          map[string]string          `yaml:"components,omitempty" json:"components,omitempty"`
	TerminalTranscript  TerminalTranscriptSettings `yaml:"terminal_transcript" json:"terminal_transcript"`
}

// TerminalTranscriptSettings mirrors model.TerminalTranscriptConfig at the
// global-default level; per-group config in group.yaml overrides it.
type TerminalTranscriptSettings struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	PerActorBytes int  `yaml:"per_actor_bytes" json:"per_actor_bytes"`
	Persist       bool `yaml:"persist" json:"persist"`
	StripANSI     bool `yaml:"strip_ansi" json:"strip_ansi"`
}

// DefaultObservability mirrors kernel/settings.py's DEFAULT_OBSERVABILITY.
func DefaultObservability() Observability {
	return Observability{
		DeveloperMode: false,
		LogLevel:      "info",
		Components:    map[string]string{},
		TerminalTranscript: TerminalTranscriptSettings{
			Enabled:       true,
			PerActorBytes: 2 * 1024 * 1024,
			Persist:       false,
			StripANSI:     true,
		},
	}
}

// Archive is the global configuration for the optional Postgres ledger
// mirror. DatabaseURL is only consulted when a group's ledger.archive_backend
// is "postgres"; the mirror is otherwise never connected to.
type Archive struct {
	DatabaseURL string `yaml:"database_url,omitempty" json:"database_url,omitempty"`
}

// Document is the on-disk shape of settings.yaml.
type Document struct {
	V             int                `yaml:"v" json:"v"`
	RuntimePool   []RuntimePoolEntry `yaml:"runtime_pool,omitempty" json:"runtime_pool,omitempty"`
	Observability Observability      `yaml:"observability" json:"observability"`
	Archive       Archive            `yaml:"archive,omitempty" json:"archive,omitempty"`
}

// Default returns the settings document used when no settings.yaml exists
// yet.
func Default() Document {
	return Document{
		V:             1,
		RuntimePool:   DefaultRuntimePool(),
		Observability: DefaultObservability(),
	}
}

// Load reads settings.yaml at path, returning defaults (merged with any
// partial content) if the file is absent.
func Load(path string) (Document, error) {
	if !fsutil.Exists(path) {
		return Default(), nil
	}
	var doc Document
	if err := fsutil.ReadYAML(path, &doc); err != nil {
		return Document{}, err
	}
	doc = mergeDefaults(doc)
	return doc, nil
}

// Save writes doc to path atomically.
func Save(path string, doc Document) error {
	return fsutil.AtomicWriteYAML(path, doc, 0o644)
}

func mergeDefaults(doc Document) Document {
	if doc.V == 0 {
		doc.V = 1
	}
	if len(doc.RuntimePool) == 0 {
		doc.RuntimePool = DefaultRuntimePool()
	}
	if doc.Observability.LogLevel == "" {
		doc.Observability.LogLevel = "info"
	}
	if doc.Observability.Components == nil {
		doc.Observability.Components = map[string]string{}
	}
	if doc.Observability.TerminalTranscript.PerActorBytes == 0 {
		doc.Observability.TerminalTranscript.PerActorBytes = 2 * 1024 * 1024
	}
	return doc
}

// RecommendedRuntime returns the highest-priority (lowest Priority value)
// entry for scenario, or the overall top entry if scenario is empty or
// unmatched.
func RecommendedRuntime(doc Document, scenario string) (RuntimePoolEntry, bool) {
	var best RuntimePoolEntry
	found := false
	for _, e := range doc.RuntimePool {
		if scenario != "" && e.Scenario != scenario {
			continue
		}
		if !found || e.Priority < best.Priority {
			best = e
			found = true
		}
	}
	if !found {
		for _, e := range doc.RuntimePool {
			if !found || e.Priority < best.Priority {
				best = e
				found = true
			}
		}
	}
	return best, found
}
