package prim

import "github.com/flint-ml/flint/internal/tensor"

// Checkpoint wraps fn so that intermediate arrays of its forward pass are not
// retained: the outputs are detached from their provenance, and gradient flow
// is restored by re-invoking fn during the backward pass and differentiating
// through the recomputed graph. fn must therefore be pure with respect to its
// inputs; it will run once per forward call and once more per backward pass.
func Checkpoint(fn FlatFunc) FlatFunc {
	return func(inputs []*tensor.Array) ([]*tensor.Array, error) {
		outs, err := fn(inputs)
		if err != nil {
			return nil, err
		}

		detached := make([]*tensor.Array, len(outs))
		for i, out := range outs {
			detached[i] = out.Detach()
		}

		rec := &tensor.CustomRecord{
			Primals: inputs,
			Outputs: detached,
			VJP: func(primals, cotangents, _ []*tensor.Array) ([]*tensor.Array, error) {
				_, grads, err := VJP(fn, primals, cotangents)
				return grads, err
			},
		}
		return tensor.CustomOutputs(rec), nil
	}
}
