package transform

import (
	"errors"
	"fmt"

	"github.com/flint-ml/flint/internal/prim"
	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

// VmapFunc is a vectorized function over positional tensor-tree arguments.
type VmapFunc func(args ...*tree.Node) (*tree.Node, error)

// Vmap maps fun over a batch axis of its inputs. inAxes and outAxes are axis
// specification trees matched against the arguments and the result as prefix
// trees: an int leaf selects the batched axis (negative values count from the
// end), a nil leaf means the tree below it is not batched, and a one-element
// list wraps the axis for a single tensor. Passing tree.Int(0) batches
// everything along the leading axis.
func Vmap(fun Func, inAxes, outAxes *tree.Node) VmapFunc {
	return func(args ...*tree.Node) (*tree.Node, error) {
		argsTree := tree.List(args...)
		inputs, err := tree.Flatten(argsTree, true)
		if err != nil {
			return nil, fmt.Errorf("%w: the arguments should contain only tensors", ErrAxis)
		}
		axisTarget := argsTree
		if len(args) == 1 {
			axisTarget = args[0]
		}
		flatInAxes, err := axesToFlatTree(axisTarget, inAxes, false)
		if err != nil {
			return nil, err
		}

		var outTree *tree.Node
		vfn := func(a []*tensor.Array) ([]*tensor.Array, error) {
			rebuilt, err := tree.Unflatten(argsTree, a, 0)
			if err != nil {
				return nil, err
			}
			out, err := fun(rebuilt.Children(), nil)
			if err != nil {
				return nil, err
			}
			outTree = out
			flat, err := tree.Flatten(out, true)
			if err != nil {
				return nil, fmt.Errorf("%w: the function should only return tensors", ErrAxis)
			}
			return flat, nil
		}

		res, err := prim.VmapTrace(vfn, inputs, flatInAxes)
		if err != nil {
			return nil, err
		}
		flatOutAxes, err := axesToFlatTree(outTree, outAxes, true)
		if err != nil {
			return nil, err
		}
		outs, err := prim.VmapReplace(res, inputs, flatInAxes, flatOutAxes)
		if err != nil {
			return nil, err
		}
		return tree.Unflatten(outTree, outs, 0)
	}
}

// axesToFlatTree resolves an axis specification tree against a value tree,
// returning one normalized axis per tensor leaf in flatten order (-1 for not
// batched). For output axes the valid range is one wider than the tensor's
// rank since the batch axis is inserted.
func axesToFlatTree(t, axes *tree.Node, outputAxes bool) ([]int, error) {
	var flat []int
	encounteredList := false
	resolve := func(x, spec *tree.Node) error {
		switch {
		case spec == nil:
			flat = append(flat, -1)
			return nil
		case spec.Kind() == tree.KindInt:
			extra := 0
			if outputAxes {
				extra = 1
			}
			rank := x.Tensor().Rank()
			a := int(spec.Int())
			if a < 0 {
				a += rank + extra
			}
			if a < 0 || a >= rank+extra {
				kind := " "
				if outputAxes {
					kind = " output "
				}
				return fmt.Errorf("%w: invalid%svectorization axis %d for array with shape %v",
					ErrAxis, kind, a, x.Tensor().Shape())
			}
			flat = append(flat, a)
			return nil
		default:
			return fmt.Errorf("%w: axis must be an int or none, found %s", ErrAxis, spec)
		}
	}
	err := tree.Visit(func(leaves []*tree.Node) error {
		x, spec := leaves[0], leaves[1]
		if x == nil || x.Kind() != tree.KindTensor {
			return fmt.Errorf("%w: the arguments should contain only tensors", ErrAxis)
		}
		if spec != nil && spec.Kind() == tree.KindList {
			encounteredList = true
			if spec.Len() != 1 {
				return fmt.Errorf("%w: axis must be an int or none, found a list of length %d", ErrAxis, spec.Len())
			}
			return resolve(x, spec.At(0))
		}
		return resolve(x, spec)
	}, t, axes)
	if err != nil {
		if errors.Is(err, tree.ErrStructureMismatch) {
			return nil, fmt.Errorf("%w: vectorization axes and arguments have mismatched structures: %v", ErrAxis, err)
		}
		return nil, err
	}
	if encounteredList && (t == nil || t.Kind() != tree.KindTensor) {
		return nil, fmt.Errorf("%w: a list axis specification is only valid for a single tensor", ErrAxis)
	}
	return flat, nil
}
