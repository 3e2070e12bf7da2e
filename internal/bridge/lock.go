package bridge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cccckit/cccc/internal/fsutil"
)

// fileLockHandle is the singleton-process guard for one (group, platform)
// bridge, per spec.md §4.5: if a second process starts against the same
// state dir it must exit with a clear message rather than double-poll.
type fileLockHandle struct {
	lock *fsutil.FileLock
}

// acquireBridgeLock takes the exclusive lock at path without blocking,
// failing immediately if another bridge process already holds it.
func acquireBridgeLock(path string) (*fileLockHandle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("bridge: create state dir: %w", err)
	}
	lock := fsutil.NewFileLock(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lock held by another process")
	}
	return &fileLockHandle{lock: lock}, nil
}

func (h *fileLockHandle) release() {
	if h == nil || h.lock == nil {
		return
	}
	_ = h.lock.Unlock()
}
