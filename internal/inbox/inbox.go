// Package inbox implements per-actor read cursors, the recipient targeting
// rule, and per-peer monotonic sequence counters, grounded on the original
// implementation's kernel/inbox.py.
package inbox

import (
	"encoding/json"

	"github.com/cccckit/cccc/internal/fsutil"
	"github.com/cccckit/cccc/internal/model"
)

// IsForActor implements the §4.3 targeting rule: whether event ev (already
// known to be chat.message and not self-authored) is addressed to actor
// aid, given the group's actor list for role resolution.
func IsForActor(g model.Group, aid string, to []string) bool {
	if len(to) == 0 {
		return true
	}
	for _, t := range to {
		if t == "@all" || t == aid {
			return true
		}
	}
	role := g.EffectiveRole(aid)
	for _, t := range to {
		switch t {
		case "@peers":
			if role == "peer" {
				return true
			}
		case "@foreman":
			if role == "foreman" {
				return true
			}
		}
	}
	return false
}

// Unread returns up to limit chat.message events from events that target
// aid, were not authored by aid, and are newer than cursor (or all, if
// cursor is the zero value).
func Unread(g model.Group, aid string, events []model.Event, cursor model.ReadCursor, limit int) []model.Event {
	var out []model.Event
	for _, ev := range events {
		if ev.Kind != model.KindChatMessage {
			continue
		}
		if ev.By == aid {
			continue
		}
		var data model.ChatMessageData
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			continue
		}
		if !IsForActor(g, aid, data.To) {
			continue
		}
		if cursor.TS != "" && ev.TS <= cursor.TS {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// CursorStore persists state/read_cursors.json: a map of actor id to
// ReadCursor.
type CursorStore struct {
	path string
}

// NewCursorStore binds a CursorStore to path.
func NewCursorStore(path string) *CursorStore {
	return &CursorStore{path: path}
}

func (s *CursorStore) load() (map[string]model.ReadCursor, error) {
	cursors := map[string]model.ReadCursor{}
	if !fsutil.Exists(s.path) {
		return cursors, nil
	}
	if err := fsutil.ReadJSON(s.path, &cursors); err != nil {
		return nil, err
	}
	return cursors, nil
}

// Get returns the stored cursor for aid, the zero value if none exists.
func (s *CursorStore) Get(aid string) (model.ReadCursor, error) {
	cursors, err := s.load()
	if err != nil {
		return model.ReadCursor{}, err
	}
	return cursors[aid], nil
}

// All returns every stored cursor, keyed by actor id.
func (s *CursorStore) All() (map[string]model.ReadCursor, error) {
	return s.load()
}

// Advance sets aid's cursor to the given event id/ts if it does not move it
// backward in time (CURSOR-MONOTONIC).
func (s *CursorStore) Advance(aid, eventID, ts, updatedAt string) (model.ReadCursor, error) {
	cursors, err := s.load()
	if err != nil {
		return model.ReadCursor{}, err
	}
	cur := cursors[aid]
	if cur.TS != "" && ts < cur.TS {
		return cur, nil
	}
	cur = model.ReadCursor{EventID: eventID, TS: ts, UpdatedAt: updatedAt}
	cursors[aid] = cur
	if err := fsutil.AtomicWriteJSON(s.path, cursors, 0o644); err != nil {
		return model.ReadCursor{}, err
	}
	return cur, nil
}

// GlobalSafeCursorTS returns the minimum ts across every stored cursor, or
// "" if there are none — used by ledger compaction.
func (s *CursorStore) GlobalSafeCursorTS() (string, error) {
	cursors, err := s.load()
	if err != nil {
		return "", err
	}
	min := ""
	for _, c := range cursors {
		if c.TS == "" {
			continue
		}
		if min == "" || c.TS < min {
			min = c.TS
		}
	}
	return min, nil
}
