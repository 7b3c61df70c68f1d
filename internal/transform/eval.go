package transform

import (
	"github.com/flint-ml/flint/internal/prim"
	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

func gatherTensors(trees []*tree.Node) []*tensor.Array {
	var arrays []*tensor.Array
	for _, t := range trees {
		flat, err := tree.Flatten(t, false)
		if err != nil {
			continue
		}
		arrays = append(arrays, flat...)
	}
	return arrays
}

// Eval materializes every tensor in the given trees, blocking until done.
func Eval(trees ...*tree.Node) {
	prim.Eval(gatherTensors(trees))
}

// AsyncEval schedules materialization of every tensor in the given trees
// without waiting for it.
func AsyncEval(trees ...*tree.Node) {
	prim.AsyncEval(gatherTensors(trees))
}
