// Package scope derives project scope identities from filesystem paths.
package scope

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cccckit/cccc/internal/idgen"
	"github.com/cccckit/cccc/internal/model"
)

// Derive builds a Scope for an absolute project path. If the path is a git
// working tree with an "origin" remote, the scope key is derived from the
// normalized remote URL; otherwise it falls back to the absolute path.
func Derive(path string) (model.Scope, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return model.Scope{}, fmt.Errorf("scope: resolve %s: %w", path, err)
	}

	remote := gitRemote(abs)
	keySource := abs
	normalized := ""
	if remote != "" {
		normalized = NormalizeRemote(remote)
		keySource = normalized
	}

	return model.Scope{
		URL:       abs,
		ScopeKey:  idgen.ScopeKey(keySource),
		Label:     filepath.Base(abs),
		GitRemote: normalized,
	}, nil
}

func gitRemote(path string) string {
	cmd := exec.Command("git", "-C", path, "remote", "get-url", "origin")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

var (
	sshRemotePattern   = regexp.MustCompile(`^git@([^:]+):(.+?)(\.git)?$`)
	schemeRemotePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
)

// NormalizeRemote converts a git remote URL (ssh or https form) into a
// canonical "https://host/path" form, stripping credentials and a trailing
// ".git".
func NormalizeRemote(remote string) string {
	remote = strings.TrimSpace(remote)
	if m := sshRemotePattern.FindStringSubmatch(remote); m != nil {
		host, path := m[1], m[2]
		return "https://" + host + "/" + strings.TrimSuffix(path, ".git")
	}
	if schemeRemotePrefix.MatchString(remote) {
		rest := schemeRemotePrefix.ReplaceAllString(remote, "")
		if idx := strings.Index(rest, "@"); idx != -1 && idx < strings.Index(rest+"/", "/") {
			rest = rest[idx+1:]
		}
		return "https://" + strings.TrimSuffix(rest, ".git")
	}
	return strings.TrimSuffix(remote, ".git")
}
