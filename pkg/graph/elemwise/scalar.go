// Package elemwise provides the reference backends for the graph
// engine: scalar arithmetic and elementwise vector operations. Each
// backend is a pure kernel pair; shape and arity checks are its own
// responsibility and violations panic.
package elemwise

import (
	"github.com/pkg/errors"

	"github.com/gradgraph/gradgraph/pkg/graph"
)

// Scalar is a float64 payload for graph nodes.
type Scalar float64

// Fill satisfies graph.Value; a scalar's shape is itself.
func (Scalar) Fill(x float64) Scalar { return Scalar(x) }

// AddBackend sums any number of scalars. The gradient of a sum passes
// through unchanged to every addend, so an operand listed twice
// collects it twice.
type AddBackend struct{}

func (AddBackend) Forward(inputs []*graph.Node[Scalar], outputs *[]*graph.Node[Scalar]) {
	out := graph.New(Scalar(0))
	for _, in := range inputs {
		out.Data += in.Data
	}
	*outputs = append(*outputs, out)
}

func (AddBackend) Backward(inputs []*graph.Node[Scalar], output *graph.Node[Scalar], _ int) {
	for _, in := range inputs {
		if in.RequiresGrad {
			in.Grad += output.Grad
		}
	}
}

// SubBackend computes inputs[0] - inputs[1].
type SubBackend struct{}

func (SubBackend) Forward(inputs []*graph.Node[Scalar], outputs *[]*graph.Node[Scalar]) {
	requireInputs(inputs, 2)
	*outputs = append(*outputs, graph.New(inputs[0].Data-inputs[1].Data))
}

func (SubBackend) Backward(inputs []*graph.Node[Scalar], output *graph.Node[Scalar], _ int) {
	if inputs[0].RequiresGrad {
		inputs[0].Grad += output.Grad
	}
	if inputs[1].RequiresGrad {
		inputs[1].Grad -= output.Grad
	}
}

// MulBackend computes inputs[0] * inputs[1], with the product-rule
// gradient.
type MulBackend struct{}

func (MulBackend) Forward(inputs []*graph.Node[Scalar], outputs *[]*graph.Node[Scalar]) {
	requireInputs(inputs, 2)
	*outputs = append(*outputs, graph.New(inputs[0].Data*inputs[1].Data))
}

func (MulBackend) Backward(inputs []*graph.Node[Scalar], output *graph.Node[Scalar], _ int) {
	a, b := inputs[0], inputs[1]
	if a.RequiresGrad {
		a.Grad += b.Data * output.Grad
	}
	if b.RequiresGrad {
		b.Grad += a.Data * output.Grad
	}
}

// DivBackend computes inputs[0] / inputs[1], with the quotient-rule
// gradient. A zero divisor panics rather than producing an infinity.
type DivBackend struct{}

func (DivBackend) Forward(inputs []*graph.Node[Scalar], outputs *[]*graph.Node[Scalar]) {
	requireInputs(inputs, 2)
	if inputs[1].Data == 0 {
		panic(errors.New("elemwise: division by zero"))
	}
	*outputs = append(*outputs, graph.New(inputs[0].Data/inputs[1].Data))
}

func (DivBackend) Backward(inputs []*graph.Node[Scalar], output *graph.Node[Scalar], _ int) {
	a, b := inputs[0], inputs[1]
	if a.RequiresGrad {
		a.Grad += output.Grad / b.Data
	}
	if b.RequiresGrad {
		b.Grad -= a.Data / (b.Data * b.Data) * output.Grad
	}
}

// Add returns a dispatcher for n-ary scalar addition.
func Add() graph.Module[Scalar, AddBackend] {
	return graph.Module[Scalar, AddBackend]{}
}

// Sub returns a dispatcher for binary scalar subtraction.
func Sub() graph.Module[Scalar, SubBackend] {
	return graph.Module[Scalar, SubBackend]{}
}

// Mul returns a dispatcher for binary scalar multiplication.
func Mul() graph.Module[Scalar, MulBackend] {
	return graph.Module[Scalar, MulBackend]{}
}

// Div returns a dispatcher for binary scalar division.
func Div() graph.Module[Scalar, DivBackend] {
	return graph.Module[Scalar, DivBackend]{}
}

func requireInputs[T graph.Value[T]](inputs []*graph.Node[T], want int) {
	if len(inputs) != want {
		panic(errors.Errorf("elemwise: got %d inputs, want %d", len(inputs), want))
	}
}
