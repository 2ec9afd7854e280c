package checkpoint

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gradgraph/gradgraph/pkg/tensor"
)

type Reader interface {
	// If no snapshot was saved under name, Load should return an error
	// for which errors.Is(err, os.ErrNotExist) is true.
	Load(ctx context.Context, name string) (map[string]*tensor.Dense, error)
}

type Store interface {
	Reader
	// Save writes the snapshot under name, replacing any previous
	// snapshot with the same name.
	Save(ctx context.Context, name string, tensors map[string]*tensor.Dense) error
}

// OpenStore selects a writable store from a location spec: a
// gs://<bucket>[/<prefix>] URL selects GCS, anything else is a local
// directory.
func OpenStore(spec string) (Store, error) {
	switch {
	case strings.HasPrefix(spec, "gs://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(spec, "gs://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("no bucket in %q", spec)
		}
		return &GCSStore{Bucket: bucket, Prefix: prefix}, nil
	case strings.HasPrefix(spec, "http://"), strings.HasPrefix(spec, "https://"):
		return nil, fmt.Errorf("http stores are read-only, cannot save to %q", spec)
	default:
		return &DirStore{Dir: spec}, nil
	}
}

// OpenReader selects a snapshot source from a location spec,
// additionally accepting http:// and https:// URLs of a snapshot
// server.
func OpenReader(spec string) (Reader, error) {
	if strings.HasPrefix(spec, "http://") || strings.HasPrefix(spec, "https://") {
		base, err := url.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("parsing snapshot server url %q: %w", spec, err)
		}
		return &HTTPStore{BaseURL: base}, nil
	}
	return OpenStore(spec)
}
