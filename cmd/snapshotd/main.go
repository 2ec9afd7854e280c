package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"github.com/gradgraph/gradgraph/pkg/checkpoint"
)

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := klog.FromContext(ctx)

	listen := ":8080"
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		// We expect CACHE_DIR to be set when running on kubernetes, but default sensibly for local dev
		cacheDir = "~/.cache/snapshotd/snapshots"
	}
	cacheBucket := os.Getenv("CACHE_BUCKET")
	flag.StringVar(&listen, "listen", listen, "listen address")
	flag.StringVar(&cacheDir, "cache-dir", cacheDir, "cache directory")
	flag.StringVar(&cacheBucket, "cache-bucket", cacheBucket, "optional gs://<bucketName>[/<prefix>] to fill cache misses from")

	klog.InitFlags(nil)
	flag.Parse()

	if strings.HasPrefix(cacheDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, strings.TrimPrefix(cacheDir, "~/"))
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory %q: %w", cacheDir, err)
	}

	snapshotCache := &snapshotCache{
		BaseDir: cacheDir,
	}

	if cacheBucket != "" {
		if !strings.HasPrefix(cacheBucket, "gs://") {
			return fmt.Errorf("cache-bucket must be a GCS bucket URL (gs://<bucketName>)")
		}
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(cacheBucket, "gs://"), "/")
		log.Info("using GCS cache fill", "bucket", bucket, "prefix", prefix)

		snapshotCache.fill = &checkpoint.GCSStore{
			Bucket: bucket,
			Prefix: prefix,
		}
	}

	s := &httpServer{
		snapshotCache: snapshotCache,
	}

	klog.Infof("serving on %q", listen)
	if err := http.ListenAndServe(listen, s); err != nil {
		return fmt.Errorf("serving on %q: %w", listen, err)
	}

	return nil
}

type httpServer struct {
	snapshotCache *snapshotCache
}

func (s *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokens := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(tokens) == 1 && tokens[0] != "" {
		if r.Method == "GET" {
			name := tokens[0]
			s.serveGETSnapshot(w, r, name)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	http.Error(w, "not found", http.StatusNotFound)
}

func (s *httpServer) serveGETSnapshot(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()

	log := klog.FromContext(ctx)

	// The name becomes a path component under BaseDir, so it must not
	// walk the tree.
	if strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		http.Error(w, "bad snapshot name", http.StatusBadRequest)
		return
	}

	p, err := s.snapshotCache.GetSnapshot(ctx, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		log.Error(err, "error getting snapshot")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	klog.Infof("serving snapshot %q", p)
	http.ServeFile(w, r, p)
}

type snapshotCache struct {
	BaseDir string

	// fill, when set, downloads snapshots missing from BaseDir.
	fill *checkpoint.GCSStore
}

// GetSnapshot returns the local path of the named snapshot, filling
// the cache from GCS on a miss when a fill store is configured.
func (c *snapshotCache) GetSnapshot(ctx context.Context, name string) (string, error) {
	localPath := filepath.Join(c.BaseDir, name)
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking snapshot %q: %w", name, err)
	}

	if c.fill == nil {
		return "", fmt.Errorf("snapshot %q not found: %w", name, os.ErrNotExist)
	}

	if err := c.fill.Fetch(ctx, name, localPath); err != nil {
		return "", err
	}
	return localPath, nil
}
