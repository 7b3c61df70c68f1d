package prim

import "github.com/flint-ml/flint/internal/tensor"

// VmapOverride is a user-supplied vectorization rule: given batched inputs
// and their axes (-1 meaning not batched), it returns batched outputs and
// their axes.
type VmapOverride func(inputs []*tensor.Array, axes []int) ([]*tensor.Array, []int, error)

// CustomFunction binds a forward function with optional override rules for
// reverse-mode differentiation, forward-mode differentiation and
// vectorization. Absent overrides fall back to the default transform
// behavior over the forward computation.
func CustomFunction(forward FlatFunc, vjp tensor.VJPFunc, jvp tensor.JVPFunc, vmapFn VmapOverride) FlatFunc {
	return func(inputs []*tensor.Array) ([]*tensor.Array, error) {
		if vmapFn != nil {
			if ctx := currentVmap(); ctx != nil {
				if batched, axes, ok := ctx.batchedArgs(inputs); ok {
					outs, outAxes, err := vmapFn(batched, axes)
					if err != nil {
						return nil, err
					}
					views := make([]*tensor.Array, len(outs))
					for i, out := range outs {
						views[i] = ctx.markPrebatched(out, outAxes[i])
					}
					return views, nil
				}
			}
		}

		outs, err := forward(inputs)
		if err != nil {
			return nil, err
		}
		if vjp == nil && jvp == nil {
			return outs, nil
		}

		rec := &tensor.CustomRecord{
			Primals: inputs,
			Outputs: outs,
			VJP:     vjp,
			JVP:     jvp,
		}
		return tensor.CustomOutputs(rec), nil
	}
}
