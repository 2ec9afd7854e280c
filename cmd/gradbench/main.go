package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/gradgraph/gradgraph/internal/runlog"
	"github.com/gradgraph/gradgraph/internal/stopwatch"
	"github.com/gradgraph/gradgraph/pkg/graph"
	"github.com/gradgraph/gradgraph/pkg/graph/elemwise"
	"github.com/gradgraph/gradgraph/pkg/graph/linalg"
	"github.com/gradgraph/gradgraph/pkg/tensor"
)

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	op := "add"
	nodes := 100
	iters := 50
	history := 5
	journalPath := os.Getenv("BENCH_JOURNAL")
	if journalPath == "" {
		journalPath = "bench.sqlite3"
	}
	flag.StringVar(&op, "op", op, "operation to benchmark: add, split, pow or matmul")
	flag.IntVar(&nodes, "nodes", nodes, "input count for add, vector length for split and pow, matrix dimension for matmul")
	flag.IntVar(&iters, "iters", iters, "iterations to run")
	flag.IntVar(&history, "history", history, "recent journal entries to print")
	flag.StringVar(&journalPath, "journal", journalPath, "path to the benchmark journal database")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	if nodes < 1 {
		return fmt.Errorf("nodes must be positive, got %d", nodes)
	}
	if iters < 1 {
		return fmt.Errorf("iters must be positive, got %d", iters)
	}

	iteration, err := benchmarkFor(op, nodes)
	if err != nil {
		return err
	}

	// Open the journal before measuring anything, so a bad path fails
	// fast instead of discarding a finished run.
	journal, err := runlog.Open(journalPath)
	if err != nil {
		return fmt.Errorf("opening benchmark journal: %w", err)
	}
	defer journal.Close()

	log.Info("running benchmark", "op", op, "nodes", nodes, "iters", iters)

	// Each iteration rebuilds the graph, so graph construction is part
	// of what we measure.
	var watch stopwatch.Stopwatch
	for i := 0; i < iters; i++ {
		watch.Start()
		iteration()
		watch.Stop()
	}

	fmt.Printf("%s nodes=%d iters=%d avg=%dus std=%dus\n", op, nodes, iters, watch.Avg(), watch.Std())

	if err := journal.Record(runlog.Run{
		Op:    op,
		Nodes: nodes,
		Iters: iters,
		AvgUS: watch.Avg(),
		StdUS: watch.Std(),
	}); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	if history > 0 {
		recent, err := journal.Recent(history)
		if err != nil {
			return fmt.Errorf("reading journal: %w", err)
		}
		fmt.Printf("recent runs:\n")
		for _, r := range recent {
			fmt.Printf("  %s %s nodes=%d iters=%d avg=%dus std=%dus\n",
				r.At.Format(time.RFC3339), r.Op, r.Nodes, r.Iters, r.AvgUS, r.StdUS)
		}
	}

	return nil
}

// benchmarkFor returns one forward plus backward pass over a freshly
// built graph for the named operation.
func benchmarkFor(op string, nodes int) (func(), error) {
	switch op {
	case "add":
		return func() {
			inputs := make([]*graph.Node[elemwise.Scalar], nodes)
			for i := range inputs {
				inputs[i] = graph.New(elemwise.Scalar(float64(i)))
			}
			elemwise.Add().Forward(inputs)[0].Backward()
		}, nil

	case "split":
		data := make(elemwise.Vector, nodes)
		for i := range data {
			data[i] = float64(i + 1)
		}
		return func() {
			parts := elemwise.Split().Forward([]*graph.Node[elemwise.Vector]{graph.New(data)})
			parts[len(parts)-1].Backward()
		}, nil

	case "pow":
		data := make(elemwise.Vector, nodes)
		for i := range data {
			data[i] = float64(i + 1)
		}
		square := elemwise.Pow(2)
		return func() {
			square.Forward([]*graph.Node[elemwise.Vector]{graph.New(data)})[0].Backward()
		}, nil

	case "matmul":
		values := make([]float64, nodes*nodes)
		for i := range values {
			values[i] = float64(i%7) + 1
		}
		a := tensor.MustNew(values, nodes, nodes)
		b := tensor.MustNew(values, nodes, nodes)
		return func() {
			inputs := []*graph.Node[*tensor.Dense]{graph.New(a), graph.New(b)}
			linalg.MatMul().Forward(inputs)[0].Backward()
		}, nil

	default:
		return nil, fmt.Errorf("unknown op %q (want add, split, pow or matmul)", op)
	}
}
