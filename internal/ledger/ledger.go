// Package ledger implements the append-only per-group event log: append,
// tail, follow, and retention/compaction, grounded on the original
// implementation's kernel/ledger.py and kernel/ledger_retention.py.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cccckit/cccc/internal/idgen"
	"github.com/cccckit/cccc/internal/model"
	"github.com/cccckit/cccc/internal/obs"
	"github.com/cccckit/cccc/internal/xtime"
)

// Ledger serializes appends to a single group's ledger.jsonl. The daemon
// holds one Ledger per group and routes every mutation through it, matching
// the spec's single-writer-per-group model.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// Open returns a Ledger bound to path. The file is created on first append
// if absent.
func Open(path string) *Ledger {
	return &Ledger{path: path}
}

// Append validates data for kind (when kind is known), constructs the event
// envelope with a fresh id and UTC timestamp, and appends it as one JSON
// line. It returns the written event.
func (l *Ledger) Append(kind model.Kind, groupID, scopeKey, by string, data any) (model.Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return model.Event{}, fmt.Errorf("ledger: marshal data: %w", err)
	}
	if err := model.ValidateEventData(kind, raw); err != nil {
		return model.Event{}, err
	}

	ev := model.Event{
		V:        1,
		ID:       idgen.EventID(),
		TS:       xtime.NowISO(),
		Kind:     kind,
		GroupID:  groupID,
		ScopeKey: scopeKey,
		By:       by,
		Data:     raw,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(dirOf(l.path), 0o755); err != nil {
		return model.Event{}, fmt.Errorf("ledger: mkdir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return model.Event{}, fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	defer f.Close()

	line, err := json.Marshal(ev)
	if err != nil {
		return model.Event{}, fmt.Errorf("ledger: marshal event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return model.Event{}, fmt.Errorf("ledger: write: %w", err)
	}
	obs.RecordLedgerAppend(string(kind))
	return ev, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// ReadAll reads every well-formed event in the ledger in file order,
// tolerating a partial trailing line (writer crash mid-line).
func ReadAll(path string) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []model.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			// Tolerate a partial trailing line; any mid-stream corruption is
			// a data problem the caller should surface separately.
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// ReadLastLines reads the last n well-formed events from the ledger,
// seeking from the end in blocks rather than reading the whole file.
func ReadLastLines(path string, n int) ([]model.Event, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
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
	const blockSize = 8192
	size := info.Size()
	var buf []byte
	newlineCount := 0
	pos := size

	for pos > 0 && newlineCount <= n {
		readSize := int64(blockSize)
		if readSize > pos {
			readSize = pos
		}
		pos -= readSize
		chunk := make([]byte, readSize)
		if _, err := f.ReadAt(chunk, pos); err != nil && err != io.EOF {
			return nil, err
		}
		for _, b := range chunk {
			if b == '\n' {
				newlineCount++
			}
		}
		buf = append(chunk, buf...)
	}

	lines := splitLines(buf)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	events := make([]model.Event, 0, len(lines))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func splitLines(buf []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range buf {
		if b == '\n' {
			lines = append(lines, buf[start:i])
			start = i + 1
		}
	}
	if start < len(buf) {
		lines = append(lines, buf[start:])
	}
	return lines
}
