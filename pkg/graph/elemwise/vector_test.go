package elemwise_test

import (
	"math"
	"testing"

	"github.com/gradgraph/gradgraph/pkg/graph"
	"github.com/gradgraph/gradgraph/pkg/graph/elemwise"
)

func vectors(ns ...*graph.Node[elemwise.Vector]) []*graph.Node[elemwise.Vector] {
	return ns
}

func TestSumVectors(t *testing.T) {
	a := graph.New(elemwise.Vector{1, 2, 3, 4})
	b := graph.New(elemwise.Vector{1, 2, 3, 4})
	c := elemwise.Sum().Forward(vectors(a, b))[0]

	if !floatsEqual(c.Data, []float64{2, 4, 6, 8}) {
		t.Fatalf("Sum: got %v", c.Data)
	}
	c.Backward()
	if !floatsEqual(a.Grad, []float64{1, 1, 1, 1}) {
		t.Fatalf("a.Grad: got %v want all ones", a.Grad)
	}
	if !floatsEqual(b.Grad, []float64{1, 1, 1, 1}) {
		t.Fatalf("b.Grad: got %v want all ones", b.Grad)
	}
}

func TestSplitVector(t *testing.T) {
	a := graph.New(elemwise.Vector{1, 2, 3, 4})
	parts := elemwise.Split().Forward(vectors(a))

	if len(parts) != 4 {
		t.Fatalf("parts: got %d want 4", len(parts))
	}
	for i, part := range parts {
		if !floatsEqual(part.Data, []float64{float64(i + 1)}) {
			t.Fatalf("part %d: got %v want [%d]", i, part.Data, i+1)
		}
	}

	parts[2].Backward()
	if !floatsEqual(a.Grad, []float64{0, 0, 1, 0}) {
		t.Fatalf("a.Grad: got %v want [0 0 1 0]", a.Grad)
	}
}

func TestPow(t *testing.T) {
	a := graph.New(elemwise.Vector{1, 2, 3, 4})
	b := elemwise.Pow(2).Forward(vectors(a))[0]

	if !floatsEqual(b.Data, []float64{1, 4, 9, 16}) {
		t.Fatalf("Pow: got %v want [1 4 9 16]", b.Data)
	}
	b.Backward()
	if !floatsEqual(a.Grad, []float64{2, 4, 6, 8}) {
		t.Fatalf("a.Grad: got %v want [2 4 6 8]", a.Grad)
	}
}

func TestSplitThenSum(t *testing.T) {
	// Scatter and regather: every element's gradient path survives.
	a := graph.New(elemwise.Vector{1, 2, 3, 4})
	parts := elemwise.Split().Forward(vectors(a))
	s := elemwise.Sum().Forward(parts)[0]

	if !floatsEqual(s.Data, []float64{10}) {
		t.Fatalf("regathered sum: got %v want [10]", s.Data)
	}
	s.Backward()
	if !floatsEqual(a.Grad, []float64{1, 1, 1, 1}) {
		t.Fatalf("a.Grad: got %v want all ones", a.Grad)
	}
}

func TestSplitOfConstant(t *testing.T) {
	a := graph.NewConstant(elemwise.Vector{1, 2, 3, 4})
	parts := elemwise.Split().Forward(vectors(a))

	for i, part := range parts {
		if part.RequiresGrad {
			t.Fatalf("part %d requires grad", i)
		}
		if part.HasBackwardStep() {
			t.Fatalf("part %d got a backward step", i)
		}
	}

	parts[1].Backward()
	if a.Grad != nil {
		t.Fatalf("constant's grad was allocated: %v", a.Grad)
	}
}

func TestSumLengthMismatchPanics(t *testing.T) {
	a := graph.New(elemwise.Vector{1, 2, 3})
	b := graph.New(elemwise.Vector{1, 2})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for mismatched lengths")
		}
	}()
	elemwise.Sum().Forward(vectors(a, b))
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}
