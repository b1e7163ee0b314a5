package mirror

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS mirrors cache bodies into a Google Cloud Storage bucket. Same
// shape as S3, this package's other Target.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS mirror target. opts are forwarded to
// storage.NewClient, e.g. option.WithCredentialsFile for non-ambient
// credentials.
func NewGCS(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("mirror gcs: new client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCS) key(name string) string {
	if g.prefix == "" {
		return name
	}
	return strings.TrimSuffix(g.prefix, "/") + "/" + name
}

// Upload implements Target.
func (g *GCS) Upload(ctx context.Context, key string, body io.Reader, bodySize int64, contentType string) error {
	obj := g.client.Bucket(g.bucket).Object(g.key(key))
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("mirror gcs: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mirror gcs: finalize %s: %w", key, err)
	}
	return nil
}

// Clear implements Target, deleting every object under this mirror's
// prefix.
func (g *GCS) Clear(ctx context.Context) error {
	bucket := g.client.Bucket(g.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: g.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("mirror gcs: list objects: %w", err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			return fmt.Errorf("mirror gcs: delete %s: %w", attrs.Name, err)
		}
	}
	return nil
}

// Close implements Target.
func (g *GCS) Close() error { return g.client.Close() }
