// Package graph implements a reverse-mode automatic-differentiation
// engine. Operations build a DAG of nodes as they execute; calling
// Backward on a node replays the reachable subgraph in reverse
// topological order, accumulating gradients into each node.
//
// The engine never inspects the payload type beyond the Value
// constraint, so the math of every operation lives in a Backend and
// the graph bookkeeping stays operation-agnostic.
package graph

// Value is the constraint on node payloads. Fill returns a value
// shaped like the receiver with every element set to x; the engine
// uses it to zero fresh gradient storage and to seed the unit
// gradient without knowing the payload's structure.
type Value[T any] interface {
	Fill(x float64) T
}

// Node is a vertex in the computational graph. Data holds the forward
// value and Grad the gradient accumulated so far. Parents lists the
// operand nodes that produced this node, in operand order; it is empty
// for leaves.
//
// Nodes are shared: the same node may appear in the parent list of any
// number of downstream nodes, and its gradient then collects the
// contributions of every consumer.
type Node[T Value[T]] struct {
	Data         T
	Grad         T
	RequiresGrad bool
	Parents      []*Node[T]

	step *backwardStep[T]
}

// New returns a leaf node that requires differentiation. The gradient
// is initialized to data.Fill(0) so it has the right structure before
// the first accumulation.
func New[T Value[T]](data T) *Node[T] {
	return &Node[T]{
		Data:         data,
		Grad:         data.Fill(0),
		RequiresGrad: true,
	}
}

// NewConstant returns a leaf node that does not require
// differentiation. Its gradient stays at T's zero value: no dispatcher
// attaches a backward step to it and no kernel writes to it.
func NewConstant[T Value[T]](data T) *Node[T] {
	return &Node[T]{Data: data}
}

// HasBackwardStep reports whether a dispatcher attached a backward
// step to this node. Leaves and nodes that do not require
// differentiation never carry one.
func (n *Node[T]) HasBackwardStep() bool {
	return n.step != nil
}

// Backward computes gradients for the subgraph reachable from n,
// treating n as the output of interest. It is a no-op when n does not
// require differentiation.
//
// The seed node's gradient is overwritten with the unit value; every
// other reachable node's gradient is accumulated into, not replaced.
// A second Backward call therefore adds to existing gradients, which
// is intentional (it is how multiple losses are combined); callers
// wanting fresh gradients must re-zero them between calls.
func (n *Node[T]) Backward() {
	if !n.RequiresGrad {
		return
	}
	n.Grad = n.Data.Fill(1)

	order := topologicalOrder(n)
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		if node.step != nil {
			node.step.run(node)
		}
	}
}

// topologicalOrder returns the nodes reachable from root through
// parent edges, restricted to nodes requiring differentiation, with
// every node after all of its parents. The order is deterministic: a
// DFS post-order that visits parents in operand order, each node once.
// It is rebuilt on every call; the graph is assumed acyclic.
func topologicalOrder[T Value[T]](root *Node[T]) []*Node[T] {
	var order []*Node[T]
	visited := make(map[*Node[T]]bool)

	var visit func(n *Node[T])
	visit = func(n *Node[T]) {
		if visited[n] || !n.RequiresGrad {
			return
		}
		visited[n] = true
		for _, parent := range n.Parents {
			visit(parent)
		}
		order = append(order, n)
	}
	visit(root)

	return order
}

// backwardStep is the descriptor a dispatcher attaches to each output
// node: the bound kernel, the original inputs and the output's index
// in the kernel's output sequence. Replay passes the owning node
// itself as the output pointer, so the step never holds a reference
// back to its own node.
type backwardStep[T Value[T]] struct {
	kernel      backwardKernel[T]
	inputs      []*Node[T]
	outputIndex int
}

func (s *backwardStep[T]) run(output *Node[T]) {
	s.kernel.Backward(s.inputs, output, s.outputIndex)
}
