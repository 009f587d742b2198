// Package attach turns uploaded attachment bytes into an opaque locator.
//
// Blobs are content addressed: the object name is the SHA-256 of the data
// plus an extension for the detected type, so uploading the same file twice
// stores it once.
package attach

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/roach88/tally/internal/ledger"
)

// MaxSize is the largest attachment accepted, in bytes.
const MaxSize = 10 << 20

// allowedTypes lists accepted non-image MIME types. Any image/* is accepted.
var allowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Encoder stores an upload and returns the attachment that refers to it.
type Encoder interface {
	Encode(ctx context.Context, u ledger.Upload) (ledger.Attachment, error)
}

// detect checks u and returns its MIME type as sniffed from the data.
// Problems the user can fix are reported as *ledger.ValidationError.
func detect(u ledger.Upload) (string, string, error) {
	if len(u.Data) == 0 {
		return "", "", &ledger.ValidationError{Field: "attachment", Message: "file is empty"}
	}
	if len(u.Data) > MaxSize {
		return "", "", &ledger.ValidationError{
			Field:   "attachment",
			Message: fmt.Sprintf("file exceeds %d MB", MaxSize>>20),
		}
	}

	m := mimetype.Detect(u.Data)
	mimeType := m.String()
	if !strings.HasPrefix(mimeType, "image/") && !mimetype.EqualsAny(mimeType, allowedTypes...) {
		return "", "", &ledger.ValidationError{
			Field:   "attachment",
			Message: fmt.Sprintf("unsupported file type %s", mimeType),
		}
	}

	ext := m.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(u.Name))
	}
	return mimeType, ext, nil
}

// objectName returns the content address of data.
func objectName(data []byte, ext string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + ext
}
