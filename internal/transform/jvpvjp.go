package transform

import (
	"fmt"

	"github.com/flint-ml/flint/internal/prim"
	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

// flatFunc adapts fun to a flat tensor-list calling convention: each input
// tensor becomes one positional tensor argument, and the result must be a
// tensor or a list of tensors.
func flatFunc(fun Func) prim.FlatFunc {
	return func(in []*tensor.Array) ([]*tensor.Array, error) {
		args := make([]*tree.Node, len(in))
		for i, a := range in {
			args[i] = tree.Tensor(a)
		}
		out, err := fun(args, nil)
		if err != nil {
			return nil, err
		}
		return flatOutputs(out)
	}
}

func flatOutputs(out *tree.Node) ([]*tensor.Array, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: the function should return a tensor or a list of tensors; got none", ErrReturnContract)
	}
	switch out.Kind() {
	case tree.KindTensor:
		return []*tensor.Array{out.Tensor()}, nil
	case tree.KindList:
		flat := make([]*tensor.Array, 0, out.Len())
		for _, c := range out.Children() {
			if c == nil || c.Kind() != tree.KindTensor {
				return nil, fmt.Errorf("%w: the function should return a tensor or a list of tensors; got a list containing %s", ErrReturnContract, c)
			}
			flat = append(flat, c.Tensor())
		}
		return flat, nil
	default:
		return nil, fmt.Errorf("%w: the function should return a tensor or a list of tensors; got %s", ErrReturnContract, out)
	}
}

// JVP computes a Jacobian-vector product: fun's outputs at primals together
// with the directional derivatives along tangents. primals and tangents must
// have the same length.
func JVP(fun Func, primals, tangents []*tensor.Array) (outputs, outTangents []*tensor.Array, err error) {
	if len(primals) != len(tangents) {
		return nil, nil, fmt.Errorf("%w: number of tangents (%d) does not match number of primals (%d)",
			ErrInvalidArgument, len(tangents), len(primals))
	}
	return prim.JVP(flatFunc(fun), primals, tangents)
}

// VJP computes a vector-Jacobian product: fun's outputs at primals together
// with the gradients of the cotangent-weighted outputs with respect to every
// primal. cotangents must match fun's output count.
func VJP(fun Func, primals, cotangents []*tensor.Array) (outputs, grads []*tensor.Array, err error) {
	return prim.VJP(flatFunc(fun), primals, cotangents)
}
