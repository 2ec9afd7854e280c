package checkpoint_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gradgraph/gradgraph/pkg/checkpoint"
	"github.com/gradgraph/gradgraph/pkg/tensor"
)

func sampleTensors() map[string]*tensor.Dense {
	return map[string]*tensor.Dense{
		"weights": tensor.MustNew([]float64{1, 2, 3, 4, 5, 6}, 2, 3),
		"bias":    tensor.MustNew([]float64{0.5, -0.25}, 2),
	}
}

func TestCodecRoundTripFloat32(t *testing.T) {
	var buf bytes.Buffer
	if err := checkpoint.Encode(&buf, sampleTensors(), checkpoint.Float32); err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	decoded, err := checkpoint.Decode(&buf)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	// The sample values are exactly representable in float32.
	assertTensorsEqual(t, decoded, sampleTensors(), 0)
}

func TestCodecRoundTripFloat16(t *testing.T) {
	tensors := map[string]*tensor.Dense{
		"x": tensor.MustNew([]float64{3.14, -0.001, 42, 0}, 4),
	}
	var buf bytes.Buffer
	if err := checkpoint.Encode(&buf, tensors, checkpoint.Float16); err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	decoded, err := checkpoint.Decode(&buf)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	// Half precision resolves roughly three decimal digits.
	assertTensorsEqual(t, decoded, tensors, 0.01)
}

func TestEncodeIsDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	if err := checkpoint.Encode(&a, sampleTensors(), checkpoint.Float32); err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	if err := checkpoint.Encode(&b, sampleTensors(), checkpoint.Float32); err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("two encodings of the same set differ")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := checkpoint.Decode(bytes.NewReader([]byte("not a snapshot"))); err == nil {
		t.Fatalf("expected error for bad magic")
	}
	if _, err := checkpoint.Decode(bytes.NewReader(nil)); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestDecodeRejectsImplausibleShape(t *testing.T) {
	// Snapshots may come from an untrusted server, so a declared shape
	// whose element count overflows must be an error, not a crash
	// while sizing the allocation.
	var buf bytes.Buffer
	for _, v := range []any{
		uint32(0x64617267), // magic
		uint8(1),           // version
		uint8(0),           // float32
		uint32(1),          // one tensor
		uint16(1),          // name length
	} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("failed to build snapshot: %v", err)
		}
	}
	buf.WriteString("x")
	for _, v := range []any{
		uint8(3), // rank
		uint32(1 << 31), uint32(1 << 31), uint32(2),
	} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("failed to build snapshot: %v", err)
		}
	}

	if _, err := checkpoint.Decode(&buf); err == nil {
		t.Fatalf("expected error for an implausible shape")
	}
}

func TestEncodeRejectsExcessiveRank(t *testing.T) {
	shape := make([]int, 256)
	for i := range shape {
		shape[i] = 1
	}
	tensors := map[string]*tensor.Dense{
		"deep": tensor.MustNew([]float64{1}, shape...),
	}
	var buf bytes.Buffer
	if err := checkpoint.Encode(&buf, tensors, checkpoint.Float32); err == nil {
		t.Fatalf("expected error for rank beyond the format limit")
	}
}

func TestDirStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &checkpoint.DirStore{Dir: filepath.Join(t.TempDir(), "snapshots")}

	if err := store.Save(ctx, "demo", sampleTensors()); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	loaded, err := store.Load(ctx, "demo")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	assertTensorsEqual(t, loaded, sampleTensors(), 0)

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist for a missing snapshot, got %v", err)
	}
}

func TestDirStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	store := &checkpoint.DirStore{Dir: t.TempDir()}

	if err := store.Save(ctx, "demo", sampleTensors()); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	replacement := map[string]*tensor.Dense{
		"weights": tensor.MustNew([]float64{9}, 1),
	}
	if err := store.Save(ctx, "demo", replacement); err != nil {
		t.Fatalf("failed to overwrite: %v", err)
	}
	loaded, err := store.Load(ctx, "demo")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	assertTensorsEqual(t, loaded, replacement, 0)
}

func TestHTTPStoreLoad(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	if err := checkpoint.Encode(&buf, sampleTensors(), checkpoint.Float32); err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/demo" {
			w.Write(buf.Bytes())
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	base, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("failed to parse server url: %v", err)
	}
	store := &checkpoint.HTTPStore{BaseURL: base}

	loaded, err := store.Load(ctx, "demo")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	assertTensorsEqual(t, loaded, sampleTensors(), 0)

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist for a missing snapshot, got %v", err)
	}
}

func TestGCSStoreRoundTrip(t *testing.T) {
	bucket := os.Getenv("SNAPSHOT_BUCKET")
	if bucket == "" {
		t.Skip("SNAPSHOT_BUCKET is not set")
	}
	ctx := context.Background()
	store := &checkpoint.GCSStore{Bucket: bucket, Prefix: "gradgraph-test"}

	if err := store.Save(ctx, "roundtrip", sampleTensors()); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	loaded, err := store.Load(ctx, "roundtrip")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	assertTensorsEqual(t, loaded, sampleTensors(), 0)

	if _, err := store.Load(ctx, "gradgraph-test-missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist for a missing snapshot, got %v", err)
	}
}

func TestOpenStoreSelection(t *testing.T) {
	store, err := checkpoint.OpenStore("gs://my-bucket/snapshots")
	if err != nil {
		t.Fatalf("failed to open gs store: %v", err)
	}
	gcs, ok := store.(*checkpoint.GCSStore)
	if !ok {
		t.Fatalf("expected a GCSStore, got %T", store)
	}
	if gcs.Bucket != "my-bucket" || gcs.Prefix != "snapshots" {
		t.Fatalf("unexpected gcs fields: bucket %q prefix %q", gcs.Bucket, gcs.Prefix)
	}

	store, err = checkpoint.OpenStore("/var/lib/snapshots")
	if err != nil {
		t.Fatalf("failed to open dir store: %v", err)
	}
	if _, ok := store.(*checkpoint.DirStore); !ok {
		t.Fatalf("expected a DirStore, got %T", store)
	}

	if _, err := checkpoint.OpenStore("http://snapshotd"); err == nil {
		t.Fatalf("expected error for a writable http store")
	}

	reader, err := checkpoint.OpenReader("http://snapshotd")
	if err != nil {
		t.Fatalf("failed to open http reader: %v", err)
	}
	if _, ok := reader.(*checkpoint.HTTPStore); !ok {
		t.Fatalf("expected an HTTPStore, got %T", reader)
	}
}

func assertTensorsEqual(t *testing.T, got, want map[string]*tensor.Dense, tolerance float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d tensors, want %d", len(got), len(want))
	}
	for name, w := range want {
		g, ok := got[name]
		if !ok {
			t.Fatalf("missing tensor %q", name)
		}
		gotShape, wantShape := g.Shape(), w.Shape()
		if len(gotShape) != len(wantShape) {
			t.Fatalf("tensor %q shape: got %v want %v", name, gotShape, wantShape)
		}
		for i := range wantShape {
			if gotShape[i] != wantShape[i] {
				t.Fatalf("tensor %q shape: got %v want %v", name, gotShape, wantShape)
			}
		}
		gotData, wantData := g.Data(), w.Data()
		for i := range wantData {
			if math.Abs(gotData[i]-wantData[i]) > tolerance {
				t.Fatalf("tensor %q element %d: got %v want %v", name, i, gotData[i], wantData[i])
			}
		}
	}
}
