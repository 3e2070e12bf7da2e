package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cccckit/cccc/internal/fsutil"
	"github.com/cccckit/cccc/internal/model"
	"github.com/cccckit/cccc/internal/xtime"
)

// CompactionRecord is written to state/ledger/compaction.json after a
// successful compaction.
type CompactionRecord struct {
	RanAt        string `json:"ran_at"`
	ArchivedTo   string `json:"archived_to,omitempty"`
	ArchivedN    int    `json:"archived_n"`
	KeptN        int    `json:"kept_n"`
	SafeCursorTS string `json:"safe_cursor_ts"`
}

// Snapshot is the lightweight variant written by ledger_snapshot: a summary
// of the ledger's tail, without touching the active log.
type Snapshot struct {
	SizeBytes int64      `json:"size_bytes"`
	LastEvent *LastEvent `json:"last_event,omitempty"`
}

// LastEvent is the tail summary embedded in a Snapshot.
type LastEvent struct {
	ID   string     `json:"id"`
	TS   string     `json:"ts"`
	Kind model.Kind `json:"kind"`
	By   string     `json:"by"`
}

// WriteSnapshot records the current size and last event of the ledger at
// ledgerPath into sidecarPath, without mutating the ledger itself.
func WriteSnapshot(ledgerPath, sidecarPath string) (Snapshot, error) {
	info, err := os.Stat(ledgerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, fsutil.AtomicWriteJSON(sidecarPath, Snapshot{}, 0o644)
		}
		return Snapshot{}, err
	}
	tail, err := ReadLastLines(ledgerPath, 1)
	if err != nil {
		return Snapshot{}, fmt.Errorf("ledger: snapshot read tail: %w", err)
	}
	snap := Snapshot{SizeBytes: info.Size()}
	if len(tail) == 1 {
		snap.LastEvent = &LastEvent{ID: tail[0].ID, TS: tail[0].TS, Kind: tail[0].Kind, By: tail[0].By}
	}
	if err := fsutil.AtomicWriteJSON(sidecarPath, snap, 0o644); err != nil {
		return Snapshot{}, fmt.Errorf("ledger: write snapshot: %w", err)
	}
	return snap, nil
}

// CompactOptions parametrizes a Compact call.
type CompactOptions struct {
	LedgerPath   string
	ArchiveDir   string
	LockPath     string
	Config       model.LedgerConfig
	SafeCursorTS string // minimum ts across all per-actor read cursors
	LastRunAt    string // last compaction ran_at, "" if never
	Force        bool
}

// Compact implements the retention algorithm from §4.3: archive events
// older than the global safe cursor beyond the kept tail, atomically
// replacing the active ledger with the remainder.
func Compact(opt CompactOptions) (CompactionRecord, error) {
	lock := fsutil.NewFileLock(opt.LockPath)
	if err := lock.Lock(5 * time.Second); err != nil {
		return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: %w", err)
	}
	defer lock.Unlock()

	if !opt.Force && opt.LastRunAt != "" {
		last, err := xtime.ParseISO(opt.LastRunAt)
		if err == nil && time.Since(last) < time.Duration(opt.Config.MinIntervalSeconds)*time.Second {
			return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: too soon since last compaction")
		}
	}

	info, err := os.Stat(opt.LedgerPath)
	if err != nil {
		return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: stat ledger: %w", err)
	}
	if !opt.Force && info.Size() < opt.Config.MaxActiveBytes {
		return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: below max_active_bytes threshold")
	}
	if opt.SafeCursorTS == "" {
		return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: no safe cursor available")
	}

	events, err := ReadAll(opt.LedgerPath)
	if err != nil {
		return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: read ledger: %w", err)
	}

	total := len(events)
	tailStart := total - opt.Config.KeepTailLines
	if tailStart < 0 {
		tailStart = 0
	}

	var archived, kept []model.Event
	for i, ev := range events {
		inTail := i >= tailStart
		if !inTail && ev.TS <= opt.SafeCursorTS {
			archived = append(archived, ev)
		} else {
			kept = append(kept, ev)
		}
	}

	rec := CompactionRecord{
		RanAt:        xtime.NowISO(),
		ArchivedN:    len(archived),
		KeptN:        len(kept),
		SafeCursorTS: opt.SafeCursorTS,
	}

	if len(archived) > 0 {
		if err := os.MkdirAll(opt.ArchiveDir, 0o755); err != nil {
			return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: mkdir archive: %w", err)
		}
		stamp := time.Now().UTC().Format("20060102T150405Z")
		archivePath := filepath.Join(opt.ArchiveDir, fmt.Sprintf("ledger.%s.jsonl", stamp))
		if err := writeJSONL(archivePath, archived); err != nil {
			return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: write archive: %w", err)
		}
		rec.ArchivedTo = archivePath
	}

	tmpPath := opt.LedgerPath + ".compact.tmp"
	if err := writeJSONL(tmpPath, kept); err != nil {
		return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: write temp: %w", err)
	}
	if err := os.Rename(tmpPath, opt.LedgerPath); err != nil {
		return CompactionRecord{}, fmt.Errorf("ledger_compact_failed: rename: %w", err)
	}

	return rec, nil
}

func writeJSONL(path string, events []model.Event) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return f.Sync()
}
