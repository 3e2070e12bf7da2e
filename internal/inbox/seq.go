package inbox

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cccckit/cccc/internal/fsutil"
)

// SeqCounter gives each peer's inbox a strictly increasing, zero-padded
// sequence number, durable across daemon restarts. Grounded on the §3 data
// model's InboxSeqCounter and the §4.3/§5 locking contracts.
type SeqCounter struct {
	counterPath string
	lock        *fsutil.FileLock
}

// NewSeqCounter binds a counter to state/inbox-seq-<peer>.txt.
func NewSeqCounter(stateDir, peer string) *SeqCounter {
	path := stateDir + "/inbox-seq-" + peer + ".txt"
	return &SeqCounter{counterPath: path, lock: fsutil.NewFileLock(path)}
}

// Next acquires the peer's lock, reads the last issued value (a missing or
// unparsable counter file counts as 0), increments, persists, and
// releases. SEQ-STRICTLY-INCREASING holds across concurrent callers because
// the whole read-modify-write happens under the exclusive lock.
func (s *SeqCounter) Next() (int, error) {
	if err := s.lock.Lock(5 * time.Second); err != nil {
		return 0, fmt.Errorf("inbox: acquire seq lock: %w", err)
	}
	defer s.lock.Unlock()

	last, err := s.read()
	if err != nil {
		return 0, err
	}
	next := last + 1
	if err := s.write(next); err != nil {
		return 0, err
	}
	return next, nil
}

// Format renders n as the spec's %06d prefix.
func Format(n int) string {
	return fmt.Sprintf("%06d", n)
}

func (s *SeqCounter) read() (int, error) {
	data, err := os.ReadFile(s.counterPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, nil
	}
	return v, nil
}

func (s *SeqCounter) write(v int) error {
	f, err := os.OpenFile(s.counterPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(v)); err != nil {
		return err
	}
	return f.Sync()
}
