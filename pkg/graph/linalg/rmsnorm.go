package linalg

import (
	"math"

	"github.com/gradgraph/gradgraph/pkg/graph"
	"github.com/gradgraph/gradgraph/pkg/tensor"
)

// defaultEpsilon is used when a module is constructed with epsilon 0.
const defaultEpsilon = 1e-5

// RMSNormBackend divides every element by the root mean square over
// the whole tensor: y = x / sqrt(mean(x^2) + epsilon).
type RMSNormBackend struct{}

func (RMSNormBackend) Forward(inputs []*graph.Node[*tensor.Dense], outputs *[]*graph.Node[*tensor.Dense], epsilon float64) {
	requireInputs(inputs, 1)
	in := inputs[0].Data
	r := rms(in.Data(), epsilon)
	*outputs = append(*outputs, graph.New(in.Scale(1/r)))
}

// Backward distributes the output gradient through the normalization:
// dx_j = g_j/r - x_j * sum_i(g_i*x_i) / (n*r^3).
func (RMSNormBackend) Backward(inputs []*graph.Node[*tensor.Dense], output *graph.Node[*tensor.Dense], _ int, epsilon float64) {
	in := inputs[0]
	if !in.RequiresGrad {
		return
	}

	x := in.Data.Data()
	g := output.Grad.Data()
	n := float64(len(x))
	r := rms(x, epsilon)

	dot := 0.0
	for i := range x {
		dot += g[i] * x[i]
	}

	dx := make([]float64, len(x))
	for j := range x {
		dx[j] = g[j]/r - x[j]*dot/(n*r*r*r)
	}
	if err := in.Grad.AddInPlace(tensor.MustNew(dx, in.Data.Shape()...)); err != nil {
		panic(err)
	}
}

// RMSNorm returns a dispatcher for root-mean-square normalization.
// Passing epsilon 0 selects the 1e-5 default.
func RMSNorm(epsilon float64) graph.ConfiguredModule[*tensor.Dense, float64, RMSNormBackend] {
	return graph.NewConfiguredModule[*tensor.Dense, float64, RMSNormBackend](epsilon)
}

func rms(values []float64, epsilon float64) float64 {
	if epsilon == 0 {
		epsilon = defaultEpsilon
	}
	sumSq := 0.0
	for _, v := range values {
		sumSq += v * v
	}
	return math.Sqrt(sumSq/float64(len(values)) + epsilon)
}
