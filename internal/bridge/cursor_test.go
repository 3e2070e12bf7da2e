package bridge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cccckit/cccc/internal/model"
)

func writeLedgerLine(t *testing.T, path string, ev model.Event) {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestTailerPollReturnsOnlyNewEvents(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.jsonl")
	cursorPath := filepath.Join(dir, "cursor.json")

	writeLedgerLine(t, ledgerPath, model.Event{ID: "e1", Kind: model.KindChatMessage})

	tailer, err := NewTailer(ledgerPath, cursorPath)
	if err != nil {
		t.Fatalf("NewTailer: %v", err)
	}
	got, err := tailer.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("expected to read e1 from a fresh ledger, got %+v", got)
	}

	if got, err := tailer.Poll(); err != nil || len(got) != 0 {
		t.Fatalf("second poll with no new lines should be empty, got %+v err=%v", got, err)
	}

	writeLedgerLine(t, ledgerPath, model.Event{ID: "e2", Kind: model.KindChatMessage})
	got, err = tailer.Poll()
	if err != nil {
		t.Fatalf("Poll after append: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e2" {
		t.Fatalf("expected only the newly appended event, got %+v", got)
	}
}

func TestTailerPersistsCursorAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.jsonl")
	cursorPath := filepath.Join(dir, "cursor.json")

	writeLedgerLine(t, ledgerPath, model.Event{ID: "e1", Kind: model.KindChatMessage})
	first, err := NewTailer(ledgerPath, cursorPath)
	if err != nil {
		t.Fatalf("NewTailer: %v", err)
	}
	if _, err := first.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	second, err := NewTailer(ledgerPath, cursorPath)
	if err != nil {
		t.Fatalf("NewTailer (restart): %v", err)
	}
	got, err := second.Poll()
	if err != nil {
		t.Fatalf("Poll (restart): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("restarted tailer should resume from the saved cursor, got %+v", got)
	}
}
