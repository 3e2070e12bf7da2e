package bridge

import (
	"encoding/json"
	"os"
	"syscall"
	"time"

	"github.com/cccckit/cccc/internal/fsutil"
	"github.com/cccckit/cccc/internal/model"
)

// LedgerCursor is the on-disk shape of state/im_bridge_cursor.json: a
// (dev, ino, offset) triple that detects ledger rotation/truncation across
// bridge restarts, per spec.md §4.5's cursor-tailed outbound rules.
type LedgerCursor struct {
	Dev    uint64 `json:"dev"`
	Ino    uint64 `json:"ino"`
	Offset int64  `json:"offset"`
}

// Tailer incrementally parses newly appended ledger lines, carrying any
// trailing partial line across polls, and persists its cursor to path after
// every successful read.
type Tailer struct {
	ledgerPath string
	cursorPath string
	cursor     LedgerCursor
	carry      []byte
}

// NewTailer loads cursorPath if present; if absent, it starts at the
// current end of ledgerPath unless the ledger was modified within the last
// 5s (a "fresh" ledger, read from the start so a brand new group's
// messages aren't missed).
func NewTailer(ledgerPath, cursorPath string) (*Tailer, error) {
	t := &Tailer{ledgerPath: ledgerPath, cursorPath: cursorPath}
	var saved LedgerCursor
	if err := fsutil.ReadJSON(cursorPath, &saved); err == nil {
		t.cursor = saved
		return t, nil
	}

	info, err := os.Stat(ledgerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, err
	}
	if time.Since(info.ModTime()) < 5*time.Second {
		return t, nil
	}
	dev, ino := statDevIno(info)
	t.cursor = LedgerCursor{Dev: dev, Ino: ino, Offset: info.Size()}
	return t, nil
}

func statDevIno(info os.FileInfo) (uint64, uint64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(st.Dev), st.Ino
}

// Poll reads any newly appended, complete events since the last call,
// detecting rotation/truncation by (dev, ino) change or offset > size.
func (t *Tailer) Poll() ([]model.Event, error) {
	f, err := os.Open(t.ledgerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	dev, ino := statDevIno(info)
	size := info.Size()

	if t.cursor.Dev != 0 && (t.cursor.Dev != dev || t.cursor.Ino != ino) || t.cursor.Offset > size {
		t.cursor = LedgerCursor{Dev: dev, Ino: ino, Offset: size}
		t.carry = nil
		_ = t.save()
		return nil, nil
	}
	t.cursor.Dev, t.cursor.Ino = dev, ino

	if t.cursor.Offset >= size {
		return nil, nil
	}
	if _, err := f.Seek(t.cursor.Offset, 0); err != nil {
		return nil, err
	}
	buf := make([]byte, size-t.cursor.Offset)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	buf = buf[:n]

	chunk := append(t.carry, buf...)
	lines, rest := splitCompleteLines(chunk)
	t.carry = rest

	events := make([]model.Event, 0, len(lines))
	consumed := 0
	for _, line := range lines {
		consumed += len(line) + 1
		if len(line) == 0 {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	t.cursor.Offset += int64(consumed)
	if err := t.save(); err != nil {
		return events, err
	}
	return events, nil
}

func (t *Tailer) save() error {
	return fsutil.AtomicWriteJSON(t.cursorPath, t.cursor, 0o644)
}

func splitCompleteLines(buf []byte) ([][]byte, []byte) {
	var lines [][]byte
	start := 0
	for i, b := range buf {
		if b == '\n' {
			lines = append(lines, buf[start:i])
			start = i + 1
		}
	}
	return lines, append([]byte(nil), buf[start:]...)
}
