package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Archive mirrors stored instances into a Cloud Storage bucket.
type Archive struct {
	client *gcs.Client
	bucket string
}

// NewArchive connects to the bucket. The bucket must already exist.
func NewArchive(ctx context.Context, bucket string) (*Archive, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("checking bucket %q: %w", bucket, err)
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// Put uploads one object, overwriting any previous version.
func (a *Archive) Put(ctx context.Context, object string, r io.Reader) error {
	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("uploading %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", object, err)
	}
	return nil
}

// List returns the object names under prefix.
func (a *Archive) List(ctx context.Context, prefix string) ([]string, error) {
	it := a.client.Bucket(a.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, err)
		}
		names = append(names, attrs.Name)
	}
}

// Close releases the underlying client.
func (a *Archive) Close() error { return a.client.Close() }
