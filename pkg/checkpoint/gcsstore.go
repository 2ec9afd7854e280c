package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"k8s.io/klog/v2"

	"github.com/gradgraph/gradgraph/pkg/tensor"
)

// GCSStore keeps snapshots as objects in a GCS bucket, under an
// optional key prefix.
type GCSStore struct {
	Bucket string
	Prefix string

	// DType selects the element encoding for saves; the zero value is
	// Float32.
	DType DType
}

var _ Store = (*GCSStore)(nil)

func (s *GCSStore) objectKey(name string) string {
	if s.Prefix == "" {
		return name
	}
	return path.Join(s.Prefix, name)
}

func (s *GCSStore) Save(ctx context.Context, name string, tensors map[string]*tensor.Dense) error {
	log := klog.FromContext(ctx)

	objectKey := s.objectKey(name)
	gcsURL := "gs://" + s.Bucket + "/" + objectKey

	var buf bytes.Buffer
	if err := Encode(&buf, tensors, s.DType); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	log.Info("uploading snapshot to GCS", "destination", gcsURL)

	startedAt := time.Now()
	w := client.Bucket(s.Bucket).Object(objectKey).NewWriter(ctx)
	n, err := io.Copy(w, &buf)
	if err != nil {
		return fmt.Errorf("uploading to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing GCS writer: %w", err)
	}

	log.Info("uploaded snapshot to GCS", "url", gcsURL, "bytes", n, "duration", time.Since(startedAt))

	return nil
}

func (s *GCSStore) Load(ctx context.Context, name string) (map[string]*tensor.Dense, error) {
	log := klog.FromContext(ctx)

	objectKey := s.objectKey(name)
	gcsURL := "gs://" + s.Bucket + "/" + objectKey

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	log.Info("downloading snapshot from GCS", "source", gcsURL)

	startedAt := time.Now()
	r, err := client.Bucket(s.Bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("snapshot %q not found: %w", name, os.ErrNotExist)
		}
		return nil, fmt.Errorf("opening object from GCS %q: %w", gcsURL, err)
	}
	defer r.Close()

	tensors, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot %q: %w", name, err)
	}

	log.Info("downloaded snapshot from GCS", "source", gcsURL, "tensors", len(tensors), "duration", time.Since(startedAt))

	return tensors, nil
}

// Fetch copies the raw snapshot object to destPath without decoding
// it, for servers that cache and relay snapshot files.
func (s *GCSStore) Fetch(ctx context.Context, name string, destPath string) error {
	log := klog.FromContext(ctx)

	objectKey := s.objectKey(name)
	gcsURL := "gs://" + s.Bucket + "/" + objectKey

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	log.Info("downloading snapshot from GCS", "source", gcsURL, "destination", destPath)

	startedAt := time.Now()
	r, err := client.Bucket(s.Bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("snapshot %q not found: %w", name, os.ErrNotExist)
		}
		return fmt.Errorf("opening object from GCS %q: %w", gcsURL, err)
	}
	defer r.Close()

	n, err := writeToFile(ctx, r, destPath)
	if err != nil {
		return fmt.Errorf("downloading from GCS %q: %w", gcsURL, err)
	}

	log.Info("downloaded snapshot from GCS", "source", gcsURL, "bytes", n, "duration", time.Since(startedAt))

	return nil
}
