package bridge

import (
	"sync"
	"time"
)

// DedupMap tracks recently seen "conversation_id:message_id" keys so a
// replaying stream SDK (DingTalk's reconnect replay, per spec.md §4.5)
// doesn't re-deliver a message the bridge already processed. Entries older
// than ttl are pruned opportunistically on each Seen call.
type DedupMap struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

// NewDedupMap returns an empty map with the given entry TTL.
func NewDedupMap(ttl time.Duration) *DedupMap {
	return &DedupMap{ttl: ttl, seen: map[string]time.Time{}}
}

// Seen reports whether key was already recorded (and records it if not),
// pruning expired entries as a side effect.
func (d *DedupMap) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for k, ts := range d.seen {
		if now.Sub(ts) > d.ttl {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = now
	return false
}
