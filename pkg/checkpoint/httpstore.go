package checkpoint

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/gradgraph/gradgraph/pkg/tensor"
)

// HTTPStore reads snapshots from a snapshot server (see
// cmd/snapshotd). It is read-only.
type HTTPStore struct {
	// BaseURL is the base URL of the snapshot server, typically
	// http://snapshotd
	BaseURL *url.URL
}

var _ Reader = (*HTTPStore)(nil)

func (s *HTTPStore) Load(ctx context.Context, name string) (map[string]*tensor.Dense, error) {
	log := klog.FromContext(ctx)

	url := s.BaseURL.JoinPath(name).String()
	log.Info("downloading snapshot", "url", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	startedAt := time.Now()

	httpClient := &http.Client{}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		if resp.StatusCode == 404 {
			return nil, fmt.Errorf("snapshot %q not found: %w", name, os.ErrNotExist)
		}
		return nil, fmt.Errorf("unexpected status downloading snapshot: %v", resp.Status)
	}

	tensors, err := Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot %q: %w", name, err)
	}

	log.Info("downloaded snapshot", "url", url, "tensors", len(tensors), "duration", time.Since(startedAt))

	return tensors, nil
}
