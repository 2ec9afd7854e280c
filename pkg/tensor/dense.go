// Package tensor provides the dense row-major buffer used as a graph
// payload. It is deliberately naive: same-shape elementwise arithmetic,
// no broadcasting, no views.
package tensor

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Dense is an n-dimensional buffer of float64 values in row-major order.
type Dense struct {
	shape []int
	data  []float64
}

// New builds a tensor from data and an explicit shape. The element count
// must match the product of the dimensions.
func New(data []float64, shape ...int) (*Dense, error) {
	if len(shape) == 0 {
		return nil, errors.New("tensor: shape is required")
	}
	total := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, errors.Errorf("tensor: invalid dimension %d", dim)
		}
		total *= dim
	}
	if total != len(data) {
		return nil, errors.Errorf("tensor: %d values do not fill shape %v", len(data), shape)
	}
	return &Dense{
		shape: append([]int(nil), shape...),
		data:  append([]float64(nil), data...),
	}, nil
}

// MustNew is New that panics on error, for literals in demos and tests.
func MustNew(data []float64, shape ...int) *Dense {
	d, err := New(data, shape...)
	if err != nil {
		panic(err)
	}
	return d
}

func Zeros(shape ...int) *Dense {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return MustNew(make([]float64, size), shape...)
}

func Ones(shape ...int) *Dense {
	return Full(1, shape...)
}

func Full(value float64, shape ...int) *Dense {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = value
	}
	return MustNew(data, shape...)
}

// Fill returns a tensor with the receiver's shape and every element set to
// x. This satisfies the graph payload contract: the engine calls it to zero
// fresh gradient storage and to seed the unit gradient without knowing the
// shape.
func (d *Dense) Fill(x float64) *Dense {
	return Full(x, d.shape...)
}

func (d *Dense) Clone() *Dense {
	if d == nil {
		return nil
	}
	return &Dense{
		shape: append([]int(nil), d.shape...),
		data:  append([]float64(nil), d.data...),
	}
}

// Shape returns a copy of the dimension sizes.
func (d *Dense) Shape() []int {
	return append([]int(nil), d.shape...)
}

func (d *Dense) Numel() int {
	return len(d.data)
}

// Data returns a copy of the underlying values in row-major order.
func (d *Dense) Data() []float64 {
	return append([]float64(nil), d.data...)
}

// At reads the element at the given indices. Panics on a rank mismatch or
// an out-of-range index; accessors have no error path by design.
func (d *Dense) At(indices ...int) float64 {
	return d.data[d.flatIndex(indices)]
}

// Set writes the element at the given indices, with At's panic behavior.
func (d *Dense) Set(value float64, indices ...int) {
	d.data[d.flatIndex(indices)] = value
}

func (d *Dense) flatIndex(indices []int) int {
	if len(indices) != len(d.shape) {
		panic(errors.Errorf("tensor: got %d indices for rank %d", len(indices), len(d.shape)))
	}
	index := 0
	multiplier := 1
	for i := len(d.shape) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= d.shape[i] {
			panic(errors.Errorf("tensor: index %d out of range for dimension %d of size %d", indices[i], i, d.shape[i]))
		}
		index += indices[i] * multiplier
		multiplier *= d.shape[i]
	}
	return index
}

// Add returns the elementwise sum of two same-shape tensors.
func (d *Dense) Add(other *Dense) (*Dense, error) {
	if err := sameShape(d, other); err != nil {
		return nil, err
	}
	out := d.Clone()
	for i := range out.data {
		out.data[i] += other.data[i]
	}
	return out, nil
}

// Sub returns the elementwise difference of two same-shape tensors.
func (d *Dense) Sub(other *Dense) (*Dense, error) {
	if err := sameShape(d, other); err != nil {
		return nil, err
	}
	out := d.Clone()
	for i := range out.data {
		out.data[i] -= other.data[i]
	}
	return out, nil
}

// Mul returns the elementwise product of two same-shape tensors.
func (d *Dense) Mul(other *Dense) (*Dense, error) {
	if err := sameShape(d, other); err != nil {
		return nil, err
	}
	out := d.Clone()
	for i := range out.data {
		out.data[i] *= other.data[i]
	}
	return out, nil
}

// Div returns the elementwise quotient of two same-shape tensors. A zero
// divisor is an error, not an IEEE infinity.
func (d *Dense) Div(other *Dense) (*Dense, error) {
	if err := sameShape(d, other); err != nil {
		return nil, err
	}
	out := d.Clone()
	for i := range out.data {
		if other.data[i] == 0 {
			return nil, errors.Errorf("tensor: division by zero at element %d", i)
		}
		out.data[i] /= other.data[i]
	}
	return out, nil
}

// AddInPlace accumulates other into the receiver. Gradient accumulation
// runs through here, so it mutates rather than allocating.
func (d *Dense) AddInPlace(other *Dense) error {
	if err := sameShape(d, other); err != nil {
		return err
	}
	for i := range d.data {
		d.data[i] += other.data[i]
	}
	return nil
}

// Scale returns the tensor multiplied elementwise by c.
func (d *Dense) Scale(c float64) *Dense {
	out := d.Clone()
	for i := range out.data {
		out.data[i] *= c
	}
	return out
}

func (d *Dense) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dense%v[", d.shape)
	for i, v := range d.data {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteString("]")
	return b.String()
}

func sameShape(a, b *Dense) error {
	if len(a.shape) != len(b.shape) {
		return errors.Errorf("tensor: shape mismatch %v vs %v", a.shape, b.shape)
	}
	for i, dim := range a.shape {
		if dim != b.shape[i] {
			return errors.Errorf("tensor: shape mismatch %v vs %v", a.shape, b.shape)
		}
	}
	return nil
}
