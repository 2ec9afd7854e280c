// Package checkpoint persists named tensor sets as snapshots. A
// snapshot is a small binary file; stores put that file in a local
// directory, a GCS bucket or behind an HTTP snapshot server.
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/x448/float16"

	"github.com/gradgraph/gradgraph/pkg/tensor"
)

// DType selects the on-disk element encoding. Float16 halves the
// snapshot size at the cost of precision; decoding restores float64
// values either way.
type DType uint8

const (
	Float32 DType = iota
	Float16
)

const (
	// "grad" in little-endian byte order.
	snapshotMagic uint32 = 0x64617267

	formatVersion uint8 = 1

	// maxElements bounds a decoded tensor's element count. Snapshots
	// can arrive over HTTP, so the declared shape must not be trusted
	// to size an allocation.
	maxElements = 1 << 30
)

// Encode writes the tensor set to w. Tensors are written in sorted
// name order so identical sets encode to identical bytes.
func Encode(w io.Writer, tensors map[string]*tensor.Dense, dtype DType) error {
	if dtype != Float32 && dtype != Float16 {
		return fmt.Errorf("unsupported dtype %d", dtype)
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := writeLE(w, snapshotMagic, formatVersion, uint8(dtype), uint32(len(names))); err != nil {
		return fmt.Errorf("writing snapshot header: %w", err)
	}

	for _, name := range names {
		if err := encodeTensor(w, name, tensors[name], dtype); err != nil {
			return fmt.Errorf("encoding tensor %q: %w", name, err)
		}
	}
	return nil
}

func encodeTensor(w io.Writer, name string, t *tensor.Dense, dtype DType) error {
	if t == nil {
		return fmt.Errorf("tensor is nil")
	}
	if len(name) > 1<<16-1 {
		return fmt.Errorf("name is %d bytes, limit is %d", len(name), 1<<16-1)
	}

	if err := writeLE(w, uint16(len(name))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, name); err != nil {
		return err
	}

	shape := t.Shape()
	if len(shape) > 1<<8-1 {
		return fmt.Errorf("rank is %d, limit is %d", len(shape), 1<<8-1)
	}
	dims := make([]uint32, len(shape))
	for i, dim := range shape {
		dims[i] = uint32(dim)
	}
	if err := writeLE(w, uint8(len(dims)), dims); err != nil {
		return err
	}

	values := t.Data()
	switch dtype {
	case Float32:
		encoded := make([]float32, len(values))
		for i, v := range values {
			encoded[i] = float32(v)
		}
		return writeLE(w, encoded)
	case Float16:
		encoded := make([]uint16, len(values))
		for i, v := range values {
			encoded[i] = float16.Fromfloat32(float32(v)).Bits()
		}
		return writeLE(w, encoded)
	}
	return fmt.Errorf("unsupported dtype %d", dtype)
}

// Decode reads a tensor set written by Encode.
func Decode(r io.Reader) (map[string]*tensor.Dense, error) {
	var (
		magic   uint32
		version uint8
		dtype   uint8
		count   uint32
	)
	if err := readLE(r, &magic, &version, &dtype, &count); err != nil {
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("bad snapshot magic %#x", magic)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	if DType(dtype) != Float32 && DType(dtype) != Float16 {
		return nil, fmt.Errorf("unsupported dtype %d", dtype)
	}

	tensors := make(map[string]*tensor.Dense, count)
	for i := uint32(0); i < count; i++ {
		name, t, err := decodeTensor(r, DType(dtype))
		if err != nil {
			return nil, fmt.Errorf("decoding tensor %d of %d: %w", i+1, count, err)
		}
		if _, ok := tensors[name]; ok {
			return nil, fmt.Errorf("duplicate tensor name %q", name)
		}
		tensors[name] = t
	}
	return tensors, nil
}

func decodeTensor(r io.Reader, dtype DType) (string, *tensor.Dense, error) {
	var nameLen uint16
	if err := readLE(r, &nameLen); err != nil {
		return "", nil, fmt.Errorf("reading name length: %w", err)
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return "", nil, fmt.Errorf("reading name: %w", err)
	}
	name := string(nameBytes)

	var rank uint8
	if err := readLE(r, &rank); err != nil {
		return name, nil, fmt.Errorf("reading rank: %w", err)
	}
	dims := make([]uint32, rank)
	if err := readLE(r, dims); err != nil {
		return name, nil, fmt.Errorf("reading shape: %w", err)
	}

	size := int64(1)
	shape := make([]int, rank)
	for i, dim := range dims {
		shape[i] = int(dim)
		size *= int64(dim)
		if dim == 0 || size > maxElements {
			return name, nil, fmt.Errorf("implausible tensor shape %v", dims)
		}
	}

	values := make([]float64, size)
	switch dtype {
	case Float32:
		encoded := make([]float32, size)
		if err := readLE(r, encoded); err != nil {
			return name, nil, fmt.Errorf("reading values: %w", err)
		}
		for i, v := range encoded {
			values[i] = float64(v)
		}
	case Float16:
		encoded := make([]uint16, size)
		if err := readLE(r, encoded); err != nil {
			return name, nil, fmt.Errorf("reading values: %w", err)
		}
		for i, bits := range encoded {
			values[i] = float64(float16.Frombits(bits).Float32())
		}
	}

	t, err := tensor.New(values, shape...)
	if err != nil {
		return name, nil, fmt.Errorf("rebuilding tensor: %w", err)
	}
	return name, t, nil
}

func writeLE(w io.Writer, values ...any) error {
	for _, v := range values {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readLE(r io.Reader, values ...any) error {
	for _, v := range values {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}
