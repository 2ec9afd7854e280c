package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gradgraph/gradgraph/pkg/tensor"
)

// DirStore keeps snapshots as files in a local directory.
type DirStore struct {
	Dir string

	// DType selects the element encoding for saves; the zero value is
	// Float32.
	DType DType
}

var _ Store = (*DirStore)(nil)

func (s *DirStore) Save(ctx context.Context, name string, tensors map[string]*tensor.Dense) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory %q: %w", s.Dir, err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, tensors, s.DType); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if _, err := writeToFile(ctx, &buf, filepath.Join(s.Dir, name)); err != nil {
		return fmt.Errorf("writing snapshot %q: %w", name, err)
	}
	return nil
}

func (s *DirStore) Load(ctx context.Context, name string) (map[string]*tensor.Dense, error) {
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %q: %w", name, err)
	}
	defer f.Close()

	tensors, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot %q: %w", name, err)
	}
	return tensors, nil
}
