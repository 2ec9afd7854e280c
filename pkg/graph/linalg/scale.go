package linalg

import (
	"github.com/gradgraph/gradgraph/pkg/graph"
	"github.com/gradgraph/gradgraph/pkg/tensor"
)

// ScaleBackend multiplies every element by the factor bound at module
// construction. The gradient is the output gradient scaled by the
// same factor.
type ScaleBackend struct{}

func (ScaleBackend) Forward(inputs []*graph.Node[*tensor.Dense], outputs *[]*graph.Node[*tensor.Dense], factor float64) {
	requireInputs(inputs, 1)
	*outputs = append(*outputs, graph.New(inputs[0].Data.Scale(factor)))
}

func (ScaleBackend) Backward(inputs []*graph.Node[*tensor.Dense], output *graph.Node[*tensor.Dense], _ int, factor float64) {
	in := inputs[0]
	if !in.RequiresGrad {
		return
	}
	if err := in.Grad.AddInPlace(output.Grad.Scale(factor)); err != nil {
		panic(err)
	}
}

// Scale returns a dispatcher multiplying a tensor by a constant
// factor.
func Scale(factor float64) graph.ConfiguredModule[*tensor.Dense, float64, ScaleBackend] {
	return graph.NewConfiguredModule[*tensor.Dense, float64, ScaleBackend](factor)
}
