package fsutil

import (
	"path/filepath"
	"testing"
)

func TestAtomicWriteJSONRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "data.json")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	in := payload{Name: "g_abc123", Count: 7}

	if err := AtomicWriteJSON(path, in, 0o644); err != nil {
		t.Fatalf("AtomicWriteJSON: %v", err)
	}

	var out payload
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if out != in {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", out, in)
	}
}

func TestAtomicWriteTextNoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := AtomicWriteText(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("AtomicWriteText: %v", err)
	}
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0] != path {
		t.Fatalf("expected only final file, got %v", entries)
	}
}

func TestFileLockExclusive(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "group.lock")

	l1 := NewFileLock(lockPath)
	ok, err := l1.TryLock()
	if err != nil || !ok {
		t.Fatalf("first lock should succeed: ok=%v err=%v", ok, err)
	}

	l2 := NewFileLock(lockPath)
	ok2, err := l2.TryLock()
	if err != nil {
		t.Fatalf("second TryLock errored: %v", err)
	}
	if ok2 {
		t.Fatalf("second lock should not be acquired while first is held")
	}

	if err := l1.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	ok3, err := l2.TryLock()
	if err != nil || !ok3 {
		t.Fatalf("lock should be acquirable after release: ok=%v err=%v", ok3, err)
	}
	l2.Unlock()
}
