package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cccckit/cccc/internal/model"
)

var unsafeBlobChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// StoreBlob writes data under dir/<sha256>_<sanitized-filename>, a no-op if
// the file already exists (content-addressed, idempotent on sha per
// spec.md §4.5), and returns the Attachment descriptor to embed in a
// chat.message event.
func StoreBlob(dir, filename, mimeType string, data []byte) (model.Attachment, error) {
	sum := sha256.Sum256(data)
	hexSum := hex.EncodeToString(sum[:])
	safeName := unsafeBlobChars.ReplaceAllString(filename, "_")
	path := filepath.Join(dir, hexSum+"_"+safeName)

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return model.Attachment{}, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return model.Attachment{}, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return model.Attachment{}, err
		}
	}
	return model.Attachment{
		SHA256: hexSum, Filename: filename, MIMEType: mimeType, Size: int64(len(data)),
	}, nil
}

// BlobPath returns the on-disk path for a stored attachment, for outbound
// file sends that stream the local blob back out to a platform.
func BlobPath(dir string, att model.Attachment) string {
	safeName := unsafeBlobChars.ReplaceAllString(att.Filename, "_")
	return filepath.Join(dir, att.SHA256+"_"+safeName)
}
