package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/tally/internal/ledger"
)

// LocalScheme prefixes locators of blobs kept in a Dir.
const LocalScheme = "blob:"

// Dir keeps attachment blobs in a local directory.
type Dir struct {
	root string
}

// NewDir creates root if needed and returns a Dir over it.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Encode implements Encoder. File system failures are *ledger.StorageError.
func (d *Dir) Encode(ctx context.Context, u ledger.Upload) (ledger.Attachment, error) {
	mimeType, ext, err := detect(u)
	if err != nil {
		return ledger.Attachment{}, err
	}
	if err := ctx.Err(); err != nil {
		return ledger.Attachment{}, err
	}

	name := objectName(u.Data, ext)
	path := filepath.Join(d.root, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(path, u.Data); err != nil {
			return ledger.Attachment{}, &ledger.StorageError{Op: "store attachment", Err: err}
		}
	} else if err != nil {
		return ledger.Attachment{}, &ledger.StorageError{Op: "store attachment", Err: err}
	}

	return ledger.Attachment{
		Name:     u.Name,
		Locator:  LocalScheme + name,
		MimeType: mimeType,
	}, nil
}

// Open returns the blob a locator from Encode refers to.
func (d *Dir) Open(locator string) (io.ReadCloser, error) {
	name, ok := strings.CutPrefix(locator, LocalScheme)
	if !ok || name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("not a local attachment: %q", locator)
	}
	return os.Open(filepath.Join(d.root, name))
}

// writeAtomic writes data to a temp file next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
