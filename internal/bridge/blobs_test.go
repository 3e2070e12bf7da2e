package bridge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreBlobIsContentAddressedAndIdempotent(t *testing.T) {
	dir := t.TempDir()
	data := []byte("hello world")

	att, err := StoreBlob(dir, "notes.txt", "text/plain", data)
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	if att.Size != int64(len(data)) || att.Filename != "notes.txt" {
		t.Fatalf("unexpected attachment: %+v", att)
	}

	path := BlobPath(dir, att)
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("stored content mismatch: %q", got)
	}

	if _, err := StoreBlob(dir, "notes.txt", "text/plain", data); err != nil {
		t.Fatalf("re-storing identical content should be a no-op, got: %v", err)
	}
}

func TestStoreBlobSanitizesFilename(t *testing.T) {
	dir := t.TempDir()
	att, err := StoreBlob(dir, "../../etc/passwd", "text/plain", []byte("x"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	path := BlobPath(dir, att)
	if filepath.Dir(path) != dir {
		t.Fatalf("sanitized path escaped the blob dir: %q", path)
	}
}
