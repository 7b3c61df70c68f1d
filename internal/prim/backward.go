package prim

import (
	"fmt"

	"github.com/flint-ml/flint/internal/tensor"
)

// backward computes cotangents for every array reachable from roots by
// walking provenance records in reverse topological order, accumulating when
// an array feeds several consumers. seeds are the initial cotangents, aligned
// with roots; nil seeds are skipped.
func backward(roots, seeds []*tensor.Array) (map[*tensor.Array]*tensor.Array, error) {
	order := topoOrder(roots)

	cot := make(map[*tensor.Array]*tensor.Array)
	for i, r := range roots {
		if seeds[i] != nil {
			accumulate(cot, r, seeds[i])
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		g := cot[n]
		if g == nil || n.IsLeaf() {
			continue
		}
		if err := propagate(cot, n, g); err != nil {
			return nil, err
		}
	}
	return cot, nil
}

// topoOrder returns a post-order DFS over provenance so that every array
// appears after all arrays it depends on.
func topoOrder(roots []*tensor.Array) []*tensor.Array {
	var order []*tensor.Array
	seen := make(map[*tensor.Array]bool)
	var walk func(a *tensor.Array)
	walk = func(a *tensor.Array) {
		if a == nil || seen[a] {
			return
		}
		seen[a] = true
		if op := a.Op(); op != nil {
			for _, in := range backwardChildren(op) {
				walk(in)
			}
		}
		order = append(order, a)
	}
	for _, r := range roots {
		walk(r)
	}
	return order
}

// backwardChildren picks the arrays gradient flows into from an operation.
// A custom record with an override routes straight to its primals; one
// without differentiates through the recorded inner output.
func backwardChildren(op *tensor.Op) []*tensor.Array {
	if op.Kind == tensor.OpCustom && op.Custom.VJP == nil {
		return []*tensor.Array{op.Custom.Outputs[op.Index]}
	}
	return op.Inputs
}

func accumulate(cot map[*tensor.Array]*tensor.Array, a, g *tensor.Array) {
	if prev, ok := cot[a]; ok {
		cot[a] = tensor.Add(prev, g)
	} else {
		cot[a] = g
	}
}

// reduceTo adapts a cotangent to the shape of the input it flows into. Only
// the scalar-broadcast case needs reduction; anything else is a rule bug.
func reduceTo(g *tensor.Array, shape tensor.Shape) *tensor.Array {
	if g.Shape().Equal(shape) {
		return g
	}
	if shape.Rank() == 0 {
		return tensor.Sum(g)
	}
	panic(fmt.Sprintf("reduceTo: cannot reduce %v to %v", g.Shape(), shape))
}

// propagate applies the VJP rule for a single array and accumulates the
// resulting input cotangents.
func propagate(cot map[*tensor.Array]*tensor.Array, n, g *tensor.Array) error {
	op := n.Op()
	in := op.Inputs

	switch op.Kind {
	case tensor.OpAdd:
		accumulate(cot, in[0], reduceTo(g, in[0].Shape()))
		accumulate(cot, in[1], reduceTo(g, in[1].Shape()))
	case tensor.OpSub:
		accumulate(cot, in[0], reduceTo(g, in[0].Shape()))
		accumulate(cot, in[1], reduceTo(tensor.Neg(g), in[1].Shape()))
	case tensor.OpMul:
		accumulate(cot, in[0], reduceTo(tensor.Mul(g, in[1]), in[0].Shape()))
		accumulate(cot, in[1], reduceTo(tensor.Mul(g, in[0]), in[1].Shape()))
	case tensor.OpNeg:
		accumulate(cot, in[0], tensor.Neg(g))
	case tensor.OpSin:
		accumulate(cot, in[0], tensor.Mul(g, tensor.Cos(in[0])))
	case tensor.OpCos:
		accumulate(cot, in[0], tensor.Neg(tensor.Mul(g, tensor.Sin(in[0]))))
	case tensor.OpExp:
		accumulate(cot, in[0], tensor.Mul(g, tensor.Exp(in[0])))
	case tensor.OpSum:
		accumulate(cot, in[0], tensor.Mul(tensor.OnesLike(in[0]), g))
	case tensor.OpStack:
		for k, input := range in {
			accumulate(cot, input, tensor.Take(g, k, op.Axis))
		}
	case tensor.OpTake:
		accumulate(cot, in[0], scatterSlice(g, in[0], op.Index, op.Axis))
	case tensor.OpCustom:
		return propagateCustom(cot, op, g)
	default:
		return fmt.Errorf("backward: no gradient rule for op kind %d", op.Kind)
	}
	return nil
}

// scatterSlice builds the gradient of Take: zeros shaped like src with g
// placed at index along axis.
func scatterSlice(g, src *tensor.Array, index, axis int) *tensor.Array {
	dim := src.Shape()[axis]
	slices := make([]*tensor.Array, dim)
	for j := 0; j < dim; j++ {
		if j == index {
			slices[j] = g
		} else {
			slices[j] = tensor.ZerosLike(g)
		}
	}
	return tensor.Stack(slices, axis)
}

func propagateCustom(cot map[*tensor.Array]*tensor.Array, op *tensor.Op, g *tensor.Array) error {
	rec := op.Custom
	if rec.VJP == nil {
		// No override: differentiate through the recorded inner graph.
		accumulate(cot, rec.Outputs[op.Index], g)
		return nil
	}

	cots := make([]*tensor.Array, len(rec.Outputs))
	for i, out := range rec.Outputs {
		cots[i] = tensor.ZerosLike(out)
	}
	cots[op.Index] = g

	grads, err := rec.VJP(rec.Primals, cots, rec.Outputs)
	if err != nil {
		return err
	}
	if len(grads) != len(rec.Primals) {
		return fmt.Errorf("custom vjp returned %d cotangents for %d primals", len(grads), len(rec.Primals))
	}
	for i, grad := range grads {
		if grad != nil {
			accumulate(cot, rec.Primals[i], grad)
		}
	}
	return nil
}
