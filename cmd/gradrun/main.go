package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/gradgraph/gradgraph/pkg/checkpoint"
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
	checkpointSpec := os.Getenv("CHECKPOINT")
	restoreSpec := os.Getenv("RESTORE")
	snapshotName := "gradrun"
	flag.StringVar(&checkpointSpec, "checkpoint", checkpointSpec, "where to save gradients: a directory or gs://<bucketName>[/<prefix>]")
	flag.StringVar(&restoreSpec, "restore", restoreSpec, "where to load matmul inputs from: a directory, gs://<bucketName>[/<prefix>] or http(s)://<server>")
	flag.StringVar(&snapshotName, "name", snapshotName, "snapshot name to save or restore")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	// z = x + x + x + y
	x := graph.New(elemwise.Scalar(3))
	y := graph.New(elemwise.Scalar(3))
	add := elemwise.Add()
	z := add.Forward([]*graph.Node[elemwise.Scalar]{x, x, x, y})[0]
	z.Backward()
	log.Info("scalar demo", "z", z.Data, "dz/dx", x.Grad, "dz/dy", y.Grad)

	v := graph.New(elemwise.Vector{1, 2, 3, 4})
	parts := elemwise.Split().Forward([]*graph.Node[elemwise.Vector]{v})
	parts[2].Backward()
	log.Info("split demo", "parts", len(parts), "third", parts[2].Data, "dv", v.Grad)

	w := graph.New(elemwise.Vector{1, 2, 3, 4})
	squares := elemwise.Pow(2).Forward([]*graph.Node[elemwise.Vector]{w})[0]
	squares.Backward()
	log.Info("pow demo", "squares", squares.Data, "dw", w.Grad)

	a, b, err := matmulInputs(ctx, restoreSpec, snapshotName)
	if err != nil {
		return err
	}
	product := linalg.MatMul().Forward([]*graph.Node[*tensor.Dense]{a, b})[0]
	product.Backward()
	log.Info("matmul demo", "product", product.Data, "dA", a.Grad, "dB", b.Grad)

	if checkpointSpec != "" {
		store, err := checkpoint.OpenStore(checkpointSpec)
		if err != nil {
			return fmt.Errorf("opening checkpoint store: %w", err)
		}
		gradients := map[string]*tensor.Dense{
			"a.grad": a.Grad,
			"b.grad": b.Grad,
		}
		if err := store.Save(ctx, snapshotName, gradients); err != nil {
			return fmt.Errorf("saving gradients: %w", err)
		}
		log.Info("saved gradients", "checkpoint", checkpointSpec, "name", snapshotName)
	}

	return nil
}

// matmulInputs returns the two matrix leaves for the demo, loading
// tensors named "a" and "b" from the restore source when one is given.
func matmulInputs(ctx context.Context, restoreSpec string, snapshotName string) (*graph.Node[*tensor.Dense], *graph.Node[*tensor.Dense], error) {
	aData := tensor.MustNew([]float64{1, 2, 3, 4}, 2, 2)
	bData := tensor.MustNew([]float64{5, 6, 7, 8}, 2, 2)

	if restoreSpec != "" {
		reader, err := checkpoint.OpenReader(restoreSpec)
		if err != nil {
			return nil, nil, fmt.Errorf("opening restore source: %w", err)
		}
		tensors, err := reader.Load(ctx, snapshotName)
		if err != nil {
			return nil, nil, fmt.Errorf("restoring matmul inputs: %w", err)
		}
		if t, ok := tensors["a"]; ok {
			aData = t
		}
		if t, ok := tensors["b"]; ok {
			bData = t
		}
	}

	return graph.New(aData), graph.New(bData), nil
}
