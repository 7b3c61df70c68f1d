package transform

import (
	"fmt"

	"github.com/flint-ml/flint/internal/prim"
	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

// ValueAndGradFunc computes a function's value together with the gradients
// of its (scalar) first output with respect to the selected arguments.
type ValueAndGradFunc func(args []*tree.Node, kwargs map[string]*tree.Node) (value, grads *tree.Node, err error)

// GradFunc computes only the gradients.
type GradFunc func(args []*tree.Node, kwargs map[string]*tree.Node) (*tree.Node, error)

// ValueAndGrad wraps fun so that calling the result returns both fun's value
// and the gradients with respect to the arguments selected by the options.
// fun must return either a single tensor or a non-empty list whose first
// element is a tensor; trailing elements are auxiliary outputs passed through
// undifferentiated.
func ValueAndGrad(fun Func, opts ...GradOption) (ValueAndGradFunc, error) {
	var o gradOptions
	for _, opt := range opts {
		opt(&o)
	}
	sel, err := resolveArgSelection(o)
	if err != nil {
		return nil, err
	}
	return valueAndGrad(fun, sel, false), nil
}

// Grad is ValueAndGrad restricted to scalar-returning functions; it discards
// the value and returns only the gradients.
func Grad(fun Func, opts ...GradOption) (GradFunc, error) {
	var o gradOptions
	for _, opt := range opts {
		opt(&o)
	}
	sel, err := resolveArgSelection(o)
	if err != nil {
		return nil, err
	}
	inner := valueAndGrad(fun, sel, true)
	return func(args []*tree.Node, kwargs map[string]*tree.Node) (*tree.Node, error) {
		_, grads, err := inner(args, kwargs)
		return grads, err
	}, nil
}

func valueAndGrad(fun Func, sel argSelection, scalarOnly bool) ValueAndGradFunc {
	return func(args []*tree.Node, kwargs map[string]*tree.Node) (*tree.Node, *tree.Node, error) {
		if err := sel.validateCall(args, kwargs); err != nil {
			return nil, nil, err
		}

		// Flatten arguments, strictly for the selected ones, recording the
		// flat index range each selected argument contributed so gradients
		// can be redistributed afterwards. Positional arguments first, then
		// keyword arguments in key order.
		var arrays []*tensor.Array
		var gradIndices []int
		counts := []int{0}
		j := 0
		for i, arg := range args {
			needsGrad := j < len(sel.argnums) && sel.argnums[j] == i
			flat, err := tree.Flatten(arg, needsGrad)
			if err != nil {
				return nil, nil, fmt.Errorf("value_and_grad: argument %d: %w", i, err)
			}
			if needsGrad {
				for k := range flat {
					gradIndices = append(gradIndices, len(arrays)+k)
				}
				counts = append(counts, len(flat))
				j++
			}
			arrays = append(arrays, flat...)
		}
		keys := sortedKeys(kwargs)
		for _, key := range keys {
			needsGrad := sel.argnames[key]
			flat, err := tree.Flatten(kwargs[key], needsGrad)
			if err != nil {
				return nil, nil, fmt.Errorf("value_and_grad: keyword argument %q: %w", key, err)
			}
			if needsGrad {
				for k := range flat {
					gradIndices = append(gradIndices, len(arrays)+k)
				}
				counts = append(counts, len(flat))
			}
			arrays = append(arrays, flat...)
		}
		for i := 1; i < len(counts); i++ {
			counts[i] += counts[i-1]
		}

		bundle := tree.PackCall(args, kwargs)
		var valueOut *tree.Node

		closure := func(tracers []*tensor.Array) ([]*tensor.Array, error) {
			if err := tree.Fill(bundle, tracers); err != nil {
				return nil, err
			}
			argNodes, kwargsNode, err := tree.UnpackCall(bundle)
			if err != nil {
				return nil, err
			}
			out, err := fun(argNodes, kwargsMap(kwargsNode))
			if err != nil {
				return nil, err
			}
			valueOut = out

			// Replace the tracers with the originals, leaving alone any slot
			// the call itself overwrote.
			idx := 0
			tree.VisitUpdate(bundle, func(leaf *tree.Node) *tree.Node {
				if idx < len(tracers) && leaf.Tensor() == tracers[idx] {
					restored := tree.Tensor(arrays[idx])
					idx++
					return restored
				}
				return leaf
			})

			if err := checkReturnContract(out, scalarOnly); err != nil {
				return nil, err
			}
			return tree.Flatten(out, false)
		}

		values, gradients, err := prim.ValueAndGrad(closure, gradIndices)(arrays)
		if err != nil {
			return nil, nil, err
		}

		grads, err := packageGrads(sel, args, kwargs, keys, gradients, counts)
		if err != nil {
			return nil, nil, err
		}
		value, err := tree.Unflatten(valueOut, values, 0)
		if err != nil {
			return nil, nil, err
		}
		return value, grads, nil
	}
}

// checkReturnContract validates the differentiated function's return value:
// a single tensor, or (unless scalarOnly) a non-empty list whose first
// element is a tensor.
func checkReturnContract(out *tree.Node, scalarOnly bool) error {
	if out != nil && out.Kind() == tree.KindTensor {
		return nil
	}
	if scalarOnly {
		return fmt.Errorf(
			"%w: the function whose gradient we want to compute should return a scalar tensor; got %s",
			ErrReturnContract, out)
	}
	if out == nil || out.Kind() != tree.KindList {
		return fmt.Errorf(
			"%w: the function whose gradient we want to compute should return either a scalar tensor or a list with the first value being a tensor; got %s",
			ErrReturnContract, out)
	}
	if out.Len() == 0 {
		return fmt.Errorf(
			"%w: the function whose gradient we want to compute should return either a scalar tensor or a non-empty list; got an empty list",
			ErrReturnContract)
	}
	if first := out.At(0); first == nil || first.Kind() != tree.KindTensor {
		return fmt.Errorf(
			"%w: the function whose gradient we want to compute returned a list whose first value is %s, not a tensor",
			ErrReturnContract, first)
	}
	return nil
}

// packageGrads redistributes the flat gradients into the original argument
// shapes. One selected positional index yields that argument's gradient tree
// directly; several yield a list in selection order; selected keyword names
// add a dict, making the result a (positional, keyword) pair.
func packageGrads(sel argSelection, args []*tree.Node, kwargs map[string]*tree.Node, keys []string, gradients []*tensor.Array, counts []int) (*tree.Node, error) {
	var positional *tree.Node
	switch len(sel.argnums) {
	case 0:
		positional = nil
	case 1:
		var err error
		positional, err = tree.Unflatten(args[sel.argnums[0]], gradients, counts[0])
		if err != nil {
			return nil, err
		}
	default:
		parts := make([]*tree.Node, len(sel.argnums))
		for i, n := range sel.argnums {
			var err error
			parts[i], err = tree.Unflatten(args[n], gradients, counts[i])
			if err != nil {
				return nil, err
			}
		}
		positional = tree.List(parts...)
	}

	if len(sel.argnames) == 0 {
		return positional, nil
	}

	kw := make(map[string]*tree.Node, len(sel.argnames))
	i := 0
	for _, key := range keys {
		if !sel.argnames[key] {
			continue
		}
		g, err := tree.Unflatten(kwargs[key], gradients, counts[i+len(sel.argnums)])
		if err != nil {
			return nil, err
		}
		kw[key] = g
		i++
	}
	return tree.List(positional, tree.Dict(kw)), nil
}
