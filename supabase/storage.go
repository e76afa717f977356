package supabase

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/telegig/marketplace/pkg/errs"
)

// Storage returns the object-storage client.
func (c *Client) Storage() *Storage {
	return &Storage{client: c}
}

// Storage handles object-storage operations.
type Storage struct {
	client *Client
}

// From returns a client for one bucket.
func (s *Storage) From(bucket string) *Bucket {
	return &Bucket{client: s.client, bucket: bucket}
}

// Bucket handles uploads to a single storage bucket.
type Bucket struct {
	client *Client
	bucket string
}

// Upload writes data to the given path. With overwrite set, an existing
// object at the path is replaced. Failures come back as UploadError.
func (b *Bucket) Upload(ctx context.Context, path string, data []byte, contentType string, overwrite bool) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, b.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	b.client.setHeaders(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	if overwrite {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := b.client.do(req)
	if err != nil {
		return errs.NewUploadError(b.bucket, path, err)
	}
	if err := checkError(resp, b.bucket, path, false); err != nil {
		return errs.NewUploadError(b.bucket, path, err)
	}
	return nil
}

// PublicURL returns the public URL for an object in the bucket.
func (b *Bucket) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, b.bucket, path)
}
