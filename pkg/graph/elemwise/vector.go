package elemwise

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gradgraph/gradgraph/pkg/graph"
)

// Vector is a fixed-size []float64 payload for graph nodes.
type Vector []float64

// Fill satisfies graph.Value: a fresh vector of the receiver's length
// with every element set to x.
func (v Vector) Fill(x float64) Vector {
	out := make(Vector, len(v))
	for i := range out {
		out[i] = x
	}
	return out
}

// SumBackend adds any number of same-length vectors elementwise into
// a single output. The gradient passes through unchanged to every
// addend.
type SumBackend struct{}

func (SumBackend) Forward(inputs []*graph.Node[Vector], outputs *[]*graph.Node[Vector]) {
	if len(inputs) == 0 {
		panic(errors.New("elemwise: Sum requires at least one input"))
	}
	out := graph.New(inputs[0].Data.Fill(0))
	for _, in := range inputs {
		requireLen(in.Data, len(out.Data))
		for i, x := range in.Data {
			out.Data[i] += x
		}
	}
	*outputs = append(*outputs, out)
}

func (SumBackend) Backward(inputs []*graph.Node[Vector], output *graph.Node[Vector], _ int) {
	for _, in := range inputs {
		if in.RequiresGrad {
			for i := range in.Grad {
				in.Grad[i] += output.Grad[i]
			}
		}
	}
}

// SplitBackend scatters an n-element vector into n single-element
// outputs. Each output's backward step writes its gradient back into
// the input slot it came from, which is why it needs its output
// index.
type SplitBackend struct{}

func (SplitBackend) Forward(inputs []*graph.Node[Vector], outputs *[]*graph.Node[Vector]) {
	requireInputs(inputs, 1)
	for _, x := range inputs[0].Data {
		*outputs = append(*outputs, graph.New(Vector{x}))
	}
}

func (SplitBackend) Backward(inputs []*graph.Node[Vector], output *graph.Node[Vector], outputIndex int) {
	in := inputs[0]
	if in.RequiresGrad {
		in.Grad[outputIndex] += output.Grad[0]
	}
}

// PowBackend raises each element to the exponent bound at module
// construction. Backward applies the power rule, p*x^(p-1), chained
// with the output gradient.
type PowBackend struct{}

func (PowBackend) Forward(inputs []*graph.Node[Vector], outputs *[]*graph.Node[Vector], exponent float64) {
	requireInputs(inputs, 1)
	out := graph.New(inputs[0].Data.Fill(0))
	for i, x := range inputs[0].Data {
		out.Data[i] = math.Pow(x, exponent)
	}
	*outputs = append(*outputs, out)
}

func (PowBackend) Backward(inputs []*graph.Node[Vector], output *graph.Node[Vector], _ int, exponent float64) {
	in := inputs[0]
	if in.RequiresGrad {
		for i, x := range in.Data {
			in.Grad[i] += exponent * math.Pow(x, exponent-1) * output.Grad[i]
		}
	}
}

// Sum returns a dispatcher for n-ary vector addition.
func Sum() graph.Module[Vector, SumBackend] {
	return graph.Module[Vector, SumBackend]{}
}

// Split returns a dispatcher scattering one vector into single-element
// nodes.
func Split() graph.Module[Vector, SplitBackend] {
	return graph.Module[Vector, SplitBackend]{}
}

// Pow returns a dispatcher computing elementwise x^exponent.
func Pow(exponent float64) graph.ConfiguredModule[Vector, float64, PowBackend] {
	return graph.NewConfiguredModule[Vector, float64, PowBackend](exponent)
}

func requireLen(v Vector, want int) {
	if len(v) != want {
		panic(errors.Errorf("elemwise: vector length %d, want %d", len(v), want))
	}
}
