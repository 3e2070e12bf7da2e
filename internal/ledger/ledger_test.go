package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cccckit/cccc/internal/model"
)

func TestAppendProducesFreshIDAndKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := Open(path)

	ev, err := l.Append(model.KindChatMessage, "g_1", "", "user", model.ChatMessageData{Text: "hello", To: []string{"@all"}})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ev.Kind != model.KindChatMessage {
		t.Fatalf("kind = %v, want chat.message", ev.Kind)
	}
	if ev.ID == "" {
		t.Fatalf("expected non-empty id")
	}

	tail, err := ReadLastLines(path, 1)
	if err != nil {
		t.Fatalf("ReadLastLines: %v", err)
	}
	if len(tail) != 1 || tail[0].ID != ev.ID {
		t.Fatalf("expected last line to match appended event, got %+v", tail)
	}
}

func TestAppendMonotonicTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := Open(path)

	var last string
	for i := 0; i < 5; i++ {
		ev, err := l.Append(model.KindSystemNotify, "g_1", "", "daemon", model.SystemNotifyData{Text: "tick"})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if last != "" && ev.TS < last {
			t.Fatalf("timestamp went backward: %s < %s", ev.TS, last)
		}
		last = ev.TS
		time.Sleep(time.Millisecond)
	}
}

func TestAppendRejectsInvalidChatMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := Open(path)
	if _, err := l.Append(model.KindChatMessage, "g_1", "", "user", model.ChatMessageData{Text: ""}); err == nil {
		t.Fatalf("expected error for empty text")
	}
}

func TestReadLastLinesReturnsRequestedCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l := Open(path)
	for i := 0; i < 10; i++ {
		if _, err := l.Append(model.KindSystemNotify, "g_1", "", "daemon", model.SystemNotifyData{Text: "n"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	tail, err := ReadLastLines(path, 3)
	if err != nil {
		t.Fatalf("ReadLastLines: %v", err)
	}
	if len(tail) != 3 {
		t.Fatalf("expected 3 events, got %d", len(tail))
	}
}

func TestCompactArchivesBeforeSafeCursor(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.jsonl")
	l := Open(ledgerPath)

	var lastTS string
	for i := 0; i < 5; i++ {
		ev, err := l.Append(model.KindSystemNotify, "g_1", "", "daemon", model.SystemNotifyData{Text: "n"})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		lastTS = ev.TS
	}

	rec, err := Compact(CompactOptions{
		LedgerPath: ledgerPath,
		ArchiveDir: filepath.Join(dir, "archive"),
		LockPath:   filepath.Join(dir, "ledger.lock"),
		Config: model.LedgerConfig{
			MaxActiveBytes:     0,
			KeepTailLines:      0,
			MinIntervalSeconds: 0,
		},
		SafeCursorTS: lastTS,
		Force:        true,
	})
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if rec.ArchivedN != 5 {
		t.Fatalf("expected all 5 events archived, got %d", rec.ArchivedN)
	}

	remaining, err := ReadAll(ledgerPath)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty active ledger after full archive, got %d", len(remaining))
	}
}
