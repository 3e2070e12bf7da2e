// Package registry maintains registry.json: the global index of groups and
// the scope→group default mapping.
package registry

import (
	"fmt"
	"sync"

	"github.com/cccckit/cccc/internal/fsutil"
	"github.com/cccckit/cccc/internal/xtime"
)

// GroupMeta is one entry in the registry's groups map.
type GroupMeta struct {
	GroupID         string `json:"group_id"`
	Title           string `json:"title"`
	Topic           string `json:"topic,omitempty"`
	Path            string `json:"path"`
	DefaultScopeKey string `json:"default_scope_key,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// Document is the on-disk shape of registry.json.
type Document struct {
	V         int                  `json:"v"`
	CreatedAt string               `json:"created_at"`
	UpdatedAt string               `json:"updated_at"`
	Groups    map[string]GroupMeta `json:"groups"`
	Defaults  map[string]string    `json:"defaults"`
}

// Registry loads, mutates, and atomically persists registry.json. All
// mutation goes through daemon ops; Registry itself only enforces
// in-process serialization via its mutex.
type Registry struct {
	mu   sync.Mutex
	path string
	doc  Document
}

// Load reads registry.json at path, creating an empty document if absent.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if fsutil.Exists(path) {
		if err := fsutil.ReadJSON(path, &r.doc); err != nil {
			return nil, fmt.Errorf("registry: read %s: %w", path, err)
		}
	} else {
		now := xtime.NowISO()
		r.doc = Document{
			V:         1,
			CreatedAt: now,
			UpdatedAt: now,
			Groups:    map[string]GroupMeta{},
			Defaults:  map[string]string{},
		}
	}
	if r.doc.Groups == nil {
		r.doc.Groups = map[string]GroupMeta{}
	}
	if r.doc.Defaults == nil {
		r.doc.Defaults = map[string]string{}
	}
	return r, nil
}

func (r *Registry) save() error {
	r.doc.UpdatedAt = xtime.NowISO()
	return fsutil.AtomicWriteJSON(r.path, r.doc, 0o644)
}

// Put inserts or updates a group entry and persists.
func (r *Registry) Put(meta GroupMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Groups[meta.GroupID] = meta
	return r.save()
}

// Remove deletes a group entry and any default mapping pointing to it, then
// persists.
func (r *Registry) Remove(gid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.doc.Groups, gid)
	for k, v := range r.doc.Defaults {
		if v == gid {
			delete(r.doc.Defaults, k)
		}
	}
	return r.save()
}

// Get returns the registry entry for gid.
func (r *Registry) Get(gid string) (GroupMeta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.doc.Groups[gid]
	return m, ok
}

// List returns all group entries.
func (r *Registry) List() []GroupMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]GroupMeta, 0, len(r.doc.Groups))
	for _, m := range r.doc.Groups {
		out = append(out, m)
	}
	return out
}

// SetDefault maps scopeKey to gid and persists.
func (r *Registry) SetDefault(scopeKey, gid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Defaults[scopeKey] = gid
	return r.save()
}

// DefaultFor returns the group id registered as default for scopeKey.
func (r *Registry) DefaultFor(scopeKey string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gid, ok := r.doc.Defaults[scopeKey]
	return gid, ok
}

// ClearDefault removes scopeKey's default mapping and persists.
func (r *Registry) ClearDefault(scopeKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.doc.Defaults, scopeKey)
	return r.save()
}
