// Package linalg provides graph backends over dense tensors: 2-D
// matrix product, uniform scaling and RMS normalization.
package linalg

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/gradgraph/gradgraph/pkg/graph"
	"github.com/gradgraph/gradgraph/pkg/tensor"
)

// MatMulBackend computes the matrix product C = A·B of two 2-D
// tensors. Backward applies dA += G·Bᵀ and dB += Aᵀ·G, where G is the
// output gradient.
type MatMulBackend struct{}

func (MatMulBackend) Forward(inputs []*graph.Node[*tensor.Dense], outputs *[]*graph.Node[*tensor.Dense]) {
	requireInputs(inputs, 2)
	a := asMatrix(inputs[0].Data)
	b := asMatrix(inputs[1].Data)

	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		panic(errors.Errorf("linalg: cannot multiply %dx%d by %dx%d", ar, ac, br, bc))
	}

	out := mat.NewDense(ar, bc, nil)
	out.Mul(a, b)
	*outputs = append(*outputs, graph.New(fromMatrix(out)))
}

func (MatMulBackend) Backward(inputs []*graph.Node[*tensor.Dense], output *graph.Node[*tensor.Dense], _ int) {
	a, b := inputs[0], inputs[1]
	g := asMatrix(output.Grad)

	if a.RequiresGrad {
		gr, _ := g.Dims()
		bt := asMatrix(b.Data).T()
		_, bc := bt.Dims()
		da := mat.NewDense(gr, bc, nil)
		da.Mul(g, bt)
		accumulate(a.Grad, da)
	}
	if b.RequiresGrad {
		at := asMatrix(a.Data).T()
		ar, _ := at.Dims()
		_, gc := g.Dims()
		db := mat.NewDense(ar, gc, nil)
		db.Mul(at, g)
		accumulate(b.Grad, db)
	}
}

// MatMul returns a dispatcher for the 2-D matrix product.
func MatMul() graph.Module[*tensor.Dense, MatMulBackend] {
	return graph.Module[*tensor.Dense, MatMulBackend]{}
}

func asMatrix(d *tensor.Dense) *mat.Dense {
	shape := d.Shape()
	if len(shape) != 2 {
		panic(errors.Errorf("linalg: want a 2-D tensor, got shape %v", shape))
	}
	return mat.NewDense(shape[0], shape[1], d.Data())
}

func fromMatrix(m *mat.Dense) *tensor.Dense {
	r, c := m.Dims()
	raw := m.RawMatrix().Data
	data := make([]float64, len(raw))
	copy(data, raw)
	return tensor.MustNew(data, r, c)
}

func accumulate(into *tensor.Dense, m *mat.Dense) {
	if err := into.AddInPlace(fromMatrix(m)); err != nil {
		panic(err)
	}
}

func requireInputs(inputs []*graph.Node[*tensor.Dense], want int) {
	if len(inputs) != want {
		panic(errors.Errorf("linalg: got %d inputs, want %d", len(inputs), want))
	}
}
