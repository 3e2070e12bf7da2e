// Package idgen generates the opaque identifiers used across group, scope,
// and event records.
package idgen

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// EventID returns a fresh lowercase hex UUID for a ledger event.
func EventID() string {
	return uuid.NewString()
}

// GroupID returns a new opaque group id: "g_" + 12 hex chars.
func GroupID() string {
	u := uuid.New()
	return "g_" + hex.EncodeToString(u[:6])
}

// ScopeKey derives a stable scope key from a normalized git remote, or from
// the raw path when no remote is available. The key is "s_" + 12 hex chars
// of the sha256 of the input.
func ScopeKey(remoteOrPath string) string {
	sum := sha256.Sum256([]byte(remoteOrPath))
	return "s_" + hex.EncodeToString(sum[:6])
}
