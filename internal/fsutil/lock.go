package fsutil

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// FileLock is an exclusive advisory lock on a sidecar file, acquired with
// flock(2) and falling back to a mkdir-based mutex directory when flock is
// unavailable on the underlying filesystem (e.g. some network mounts).
type FileLock struct {
	path    string
	file    *os.File
	mkdir   bool
	mkdirAt string
}

// NewFileLock returns a lock bound to <path>.lock (or <path> if it already
// ends in ".lock").
func NewFileLock(path string) *FileLock {
	if len(path) < 5 || path[len(path)-5:] != ".lock" {
		path += ".lock"
	}
	return &FileLock{path: path}
}

// TryLock attempts to acquire the lock without blocking. It reports whether
// the lock was acquired.
func (l *FileLock) TryLock() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("fsutil: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			// Another holder has the flock; not acquired, not unsupported.
			return false, nil
		}
		// flock itself unsupported on this filesystem: fall back to mkdir mutex.
		return l.tryMkdirFallback()
	}
	l.file = f
	return true, nil
}

// Lock blocks (with polling backoff) until the lock is acquired or the
// deadline passes.
func (l *FileLock) Lock(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.TryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fsutil: timed out acquiring lock %s", l.path)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (l *FileLock) tryMkdirFallback() (bool, error) {
	dir := l.path + ".d"
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("fsutil: mkdir lock fallback: %w", err)
	}
	l.mkdir = true
	l.mkdirAt = dir
	return true, nil
}

// Unlock releases the lock, closing the underlying file or removing the
// mkdir-mutex directory, whichever was used to acquire it.
func (l *FileLock) Unlock() error {
	if l.mkdir {
		l.mkdir = false
		return os.Remove(l.mkdirAt)
	}
	if l.file == nil {
		return nil
	}
	defer l.file.Close()
	return unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
}
