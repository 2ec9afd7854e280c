package graph

// Backend is the contract an operation's numeric kernels must satisfy.
// Forward reads the input nodes' values and appends freshly
// constructed output nodes holding values only; the dispatcher does
// all graph wiring afterwards. Backward pushes output's gradient onto
// the gradients of the inputs that require differentiation.
//
// The dispatcher passes every original input to Backward, including
// inputs that do not require differentiation, so a kernel must check
// RequiresGrad before writing to an input's gradient. outputIndex is
// the output's position in Forward's output sequence; kernels
// producing a single output can ignore it.
//
// Validating input count and value shapes is the backend's
// responsibility, not the dispatcher's.
type Backend[T Value[T]] interface {
	Forward(inputs []*Node[T], outputs *[]*Node[T])
	Backward(inputs []*Node[T], output *Node[T], outputIndex int)
}

// ConfiguredBackend is a Backend whose kernels take an immutable
// configuration value, bound at module construction and threaded
// through both calls.
type ConfiguredBackend[T Value[T], C any] interface {
	Forward(inputs []*Node[T], outputs *[]*Node[T], config C)
	Backward(inputs []*Node[T], output *Node[T], outputIndex int, config C)
}

// Module wires a Backend's kernels into the graph. The zero value is
// ready to use as long as B's zero value is.
type Module[T Value[T], B Backend[T]] struct{}

// Forward invokes the backend's forward kernel on inputs and wires
// the produced nodes into the graph: each output's parent list is the
// full input sequence, its differentiation flag is the OR of the
// inputs' flags, and, when that OR holds, a backward step bound to
// the output's index. Input values are never mutated.
func (Module[T, B]) Forward(inputs []*Node[T]) []*Node[T] {
	var backend B

	var outputs []*Node[T]
	backend.Forward(inputs, &outputs)

	wireOutputs(inputs, outputs, backend)
	return outputs
}

// ConfiguredModule is a Module for a ConfiguredBackend; construct it
// with NewConfiguredModule.
type ConfiguredModule[T Value[T], C any, B ConfiguredBackend[T, C]] struct {
	config C
}

// NewConfiguredModule returns a dispatcher with config bound to both
// of the backend's kernels.
func NewConfiguredModule[T Value[T], C any, B ConfiguredBackend[T, C]](config C) ConfiguredModule[T, C, B] {
	return ConfiguredModule[T, C, B]{config: config}
}

// Forward behaves exactly like Module.Forward, with the bound
// configuration passed to both kernels.
func (m ConfiguredModule[T, C, B]) Forward(inputs []*Node[T]) []*Node[T] {
	var backend B

	var outputs []*Node[T]
	backend.Forward(inputs, &outputs, m.config)

	wireOutputs(inputs, outputs, bindConfig[T, C](backend, m.config))
	return outputs
}

// backwardKernel is the replay half of a backend, as stored on a
// backward step. A plain Backend satisfies it directly; a
// ConfiguredBackend is adapted by bindConfig.
type backwardKernel[T Value[T]] interface {
	Backward(inputs []*Node[T], output *Node[T], outputIndex int)
}

// boundKernel pairs a configured backend with its bound configuration
// so replay needs no type-erased closure.
type boundKernel[T Value[T], C any] struct {
	backend ConfiguredBackend[T, C]
	config  C
}

func bindConfig[T Value[T], C any](backend ConfiguredBackend[T, C], config C) boundKernel[T, C] {
	return boundKernel[T, C]{backend: backend, config: config}
}

func (k boundKernel[T, C]) Backward(inputs []*Node[T], output *Node[T], outputIndex int) {
	k.backend.Backward(inputs, output, outputIndex, k.config)
}

// wireOutputs performs the dispatcher's graph bookkeeping over the
// nodes a forward kernel produced. The inputs are copied once; the
// copy is shared by every output's parent list and backward step,
// none of which mutate it.
func wireOutputs[T Value[T]](inputs, outputs []*Node[T], kernel backwardKernel[T]) {
	requiresGrad := false
	for _, in := range inputs {
		if in.RequiresGrad {
			requiresGrad = true
			break
		}
	}

	parents := append([]*Node[T](nil), inputs...)
	for i, out := range outputs {
		out.Parents = parents
		out.RequiresGrad = requiresGrad
		if requiresGrad {
			out.step = &backwardStep[T]{
				kernel:      kernel,
				inputs:      parents,
				outputIndex: i,
			}
		}
	}
}
