// Package homedir resolves CCCC_HOME and the fixed directory layout beneath
// it.
package homedir

import (
	"os"
	"path/filepath"
)

// Home resolves the cccc home directory: $CCCC_HOME if set, else
// ~/.cccc.
func Home() (string, error) {
	if v := os.Getenv("CCCC_HOME"); v != "" {
		return v, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, ".cccc"), nil
}

// Layout is the set of fixed paths under a resolved home directory.
type Layout struct {
	Root           string
	RegistryPath   string
	ActivePath     string
	SettingsPath   string
	DaemonDir      string
	SocketPath     string
	PIDPath        string
	DaemonEventLog string
	GroupsDir      string
}

// NewLayout builds a Layout rooted at home.
func NewLayout(home string) Layout {
	daemonDir := filepath.Join(home, "daemon")
	return Layout{
		Root:           home,
		RegistryPath:   filepath.Join(home, "registry.json"),
		ActivePath:     filepath.Join(home, "active.json"),
		SettingsPath:   filepath.Join(home, "settings.yaml"),
		DaemonDir:      daemonDir,
		SocketPath:     filepath.Join(daemonDir, "ccccd.sock"),
		PIDPath:        filepath.Join(daemonDir, "ccccd.pid"),
		DaemonEventLog: filepath.Join(daemonDir, "ccccd.events.jsonl"),
		GroupsDir:      filepath.Join(home, "groups"),
	}
}

// GroupDir returns the per-group directory for gid.
func (l Layout) GroupDir(gid string) string {
	return filepath.Join(l.GroupsDir, gid)
}

// GroupYAML returns the group document path for gid.
func (l Layout) GroupYAML(gid string) string {
	return filepath.Join(l.GroupDir(gid), "group.yaml")
}

// LedgerPath returns the ledger path for gid.
func (l Layout) LedgerPath(gid string) string {
	return filepath.Join(l.GroupDir(gid), "ledger.jsonl")
}

// StateDir returns the mutable runtime state directory for gid.
func (l Layout) StateDir(gid string) string {
	return filepath.Join(l.GroupDir(gid), "state")
}

// ContextDir returns the group context directory for gid.
func (l Layout) ContextDir(gid string) string {
	return filepath.Join(l.GroupDir(gid), "context")
}

// ScopesDir returns the attached-scope metadata directory for gid.
func (l Layout) ScopesDir(gid string) string {
	return filepath.Join(l.GroupDir(gid), "scopes")
}

// EnsureDirs creates the fixed top-level directories.
func (l Layout) EnsureDirs() error {
	for _, d := range []string{l.Root, l.DaemonDir, l.GroupsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
