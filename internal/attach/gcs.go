package attach

import (
	"context"
	"errors"
	"fmt"
	"path"

	"cloud.google.com/go/storage"

	"github.com/roach88/tally/internal/ledger"
)

// GCS keeps attachment blobs in a Google Cloud Storage bucket and returns
// their public URL as the locator.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS connects with application default credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Encode implements Encoder. An object that already exists is not rewritten.
func (g *GCS) Encode(ctx context.Context, u ledger.Upload) (ledger.Attachment, error) {
	mimeType, ext, err := detect(u)
	if err != nil {
		return ledger.Attachment{}, err
	}

	key := path.Join(g.prefix, objectName(u.Data, ext))
	obj := g.client.Bucket(g.bucket).Object(key)

	_, err = obj.Attrs(ctx)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		w := obj.NewWriter(ctx)
		w.ContentType = mimeType
		if _, err := w.Write(u.Data); err != nil {
			w.Close()
			return ledger.Attachment{}, fmt.Errorf("upload %s: %w", key, err)
		}
		if err := w.Close(); err != nil {
			return ledger.Attachment{}, fmt.Errorf("upload %s: %w", key, err)
		}
	case err != nil:
		return ledger.Attachment{}, fmt.Errorf("stat %s: %w", key, err)
	}

	return ledger.Attachment{
		Name:     u.Name,
		Locator:  publicURL(g.bucket, key),
		MimeType: mimeType,
	}, nil
}

func publicURL(bucket, key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}
