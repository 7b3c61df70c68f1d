package prim

import (
	"fmt"

	"github.com/flint-ml/flint/internal/tensor"
)

// ValueAndGrad wraps a flat function so that calling it also returns the
// gradients of its first output with respect to the inputs selected by
// gradIndices. The function is invoked with fresh tracer handles so the
// caller can tell traced values apart from its own inputs by identity.
func ValueAndGrad(fn FlatFunc, gradIndices []int) func([]*tensor.Array) (values, grads []*tensor.Array, err error) {
	return func(inputs []*tensor.Array) ([]*tensor.Array, []*tensor.Array, error) {
		tracers := make([]*tensor.Array, len(inputs))
		for i, in := range inputs {
			tracers[i] = in.Detach()
		}

		outs, err := fn(tracers)
		if err != nil {
			return nil, nil, err
		}
		if len(outs) == 0 {
			return nil, nil, fmt.Errorf("value_and_grad: function produced no outputs")
		}

		seed := tensor.OnesLike(outs[0])
		cot, err := backward([]*tensor.Array{outs[0]}, []*tensor.Array{seed})
		if err != nil {
			return nil, nil, err
		}

		grads := make([]*tensor.Array, len(gradIndices))
		for i, idx := range gradIndices {
			if idx < 0 || idx >= len(tracers) {
				return nil, nil, fmt.Errorf("value_and_grad: gradient index %d out of range", idx)
			}
			if g, ok := cot[tracers[idx]]; ok {
				grads[i] = g
			} else {
				grads[i] = tensor.ZerosLike(tracers[idx])
			}
		}
		return outs, grads, nil
	}
}

// VJP computes the vector-Jacobian product of fn at primals with the given
// output cotangents. Returns the outputs and the input cotangents, aligned
// with primals.
func VJP(fn FlatFunc, primals, cotangents []*tensor.Array) (outputs, grads []*tensor.Array, err error) {
	tracers := make([]*tensor.Array, len(primals))
	for i, p := range primals {
		tracers[i] = p.Detach()
	}

	outs, err := fn(tracers)
	if err != nil {
		return nil, nil, err
	}
	if len(outs) != len(cotangents) {
		return nil, nil, fmt.Errorf("vjp: %d cotangents for %d outputs", len(cotangents), len(outs))
	}

	cot, err := backward(outs, cotangents)
	if err != nil {
		return nil, nil, err
	}
	grads = make([]*tensor.Array, len(tracers))
	for i, tr := range tracers {
		if g, ok := cot[tr]; ok {
			grads[i] = g
		} else {
			grads[i] = tensor.ZerosLike(tr)
		}
	}
	return outs, grads, nil
}
