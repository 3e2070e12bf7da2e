package bridge

import (
	"testing"
	"time"
)

func TestDedupMapFlagsRepeat(t *testing.T) {
	d := NewDedupMap(time.Minute)
	if d.Seen("chat-1:msg-1") {
		t.Fatalf("first sighting should not be flagged as seen")
	}
	if !d.Seen("chat-1:msg-1") {
		t.Fatalf("replayed key should be flagged as seen")
	}
}

func TestDedupMapExpiresEntries(t *testing.T) {
	d := NewDedupMap(time.Millisecond)
	d.Seen("chat-1:msg-1")
	time.Sleep(5 * time.Millisecond)
	if d.Seen("chat-1:msg-1") {
		t.Fatalf("expired entry should be treated as unseen")
	}
}
