package prim

import (
	"fmt"

	"github.com/flint-ml/flint/internal/tensor"
)

// JVP computes the Jacobian-vector product of fn at primals with the given
// input tangents. Returns the outputs and the output tangents.
func JVP(fn FlatFunc, primals, tangents []*tensor.Array) (outputs, outTangents []*tensor.Array, err error) {
	if len(primals) != len(tangents) {
		return nil, nil, fmt.Errorf("jvp: %d tangents for %d primals", len(tangents), len(primals))
	}

	tracers := make([]*tensor.Array, len(primals))
	fw := &forwardMode{
		tangent: make(map[*tensor.Array]*tensor.Array),
		records: make(map[*tensor.CustomRecord][]*tensor.Array),
	}
	for i, p := range primals {
		tracers[i] = p.Detach()
		fw.tangent[tracers[i]] = tangents[i]
	}

	outs, err := fn(tracers)
	if err != nil {
		return nil, nil, err
	}

	outTangents = make([]*tensor.Array, len(outs))
	for i, out := range outs {
		t, err := fw.tangentOf(out)
		if err != nil {
			return nil, nil, err
		}
		if t == nil {
			t = tensor.ZerosLike(out)
		}
		outTangents[i] = t
	}
	return outs, outTangents, nil
}

// forwardMode propagates tangents through recorded provenance. A nil tangent
// means no derivative flows to that array (constants, untouched leaves).
type forwardMode struct {
	tangent map[*tensor.Array]*tensor.Array
	visited map[*tensor.Array]bool
	records map[*tensor.CustomRecord][]*tensor.Array
}

func (fw *forwardMode) tangentOf(a *tensor.Array) (*tensor.Array, error) {
	if t, ok := fw.tangent[a]; ok {
		return t, nil
	}
	if fw.visited == nil {
		fw.visited = make(map[*tensor.Array]bool)
	}
	if fw.visited[a] {
		return fw.tangent[a], nil
	}
	fw.visited[a] = true

	t, err := fw.compute(a)
	if err != nil {
		return nil, err
	}
	fw.tangent[a] = t
	return t, nil
}

func (fw *forwardMode) compute(a *tensor.Array) (*tensor.Array, error) {
	op := a.Op()
	if op == nil {
		return nil, nil // leaf with no seeded tangent
	}

	switch op.Kind {
	case tensor.OpAdd:
		return fw.linear2(op, func(ta, tb *tensor.Array) *tensor.Array { return tensor.Add(ta, tb) })
	case tensor.OpSub:
		return fw.linear2(op, func(ta, tb *tensor.Array) *tensor.Array { return tensor.Sub(ta, tb) })
	case tensor.OpMul:
		ta, err := fw.tangentOf(op.Inputs[0])
		if err != nil {
			return nil, err
		}
		tb, err := fw.tangentOf(op.Inputs[1])
		if err != nil {
			return nil, err
		}
		var out *tensor.Array
		if ta != nil {
			out = tensor.Mul(ta, op.Inputs[1])
		}
		if tb != nil {
			term := tensor.Mul(op.Inputs[0], tb)
			if out == nil {
				out = term
			} else {
				out = tensor.Add(out, term)
			}
		}
		return out, nil
	case tensor.OpNeg:
		return fw.unary(op, tensor.Neg)
	case tensor.OpSin:
		return fw.chain(op, tensor.Cos(op.Inputs[0]))
	case tensor.OpCos:
		return fw.chain(op, tensor.Neg(tensor.Sin(op.Inputs[0])))
	case tensor.OpExp:
		return fw.chain(op, tensor.Exp(op.Inputs[0]))
	case tensor.OpSum:
		return fw.unary(op, tensor.Sum)
	case tensor.OpStack:
		parts := make([]*tensor.Array, len(op.Inputs))
		any := false
		for i, in := range op.Inputs {
			t, err := fw.tangentOf(in)
			if err != nil {
				return nil, err
			}
			if t == nil {
				t = tensor.ZerosLike(in)
			} else {
				any = true
			}
			parts[i] = t
		}
		if !any {
			return nil, nil
		}
		return tensor.Stack(parts, op.Axis), nil
	case tensor.OpTake:
		return fw.unary(op, func(t *tensor.Array) *tensor.Array { return tensor.Take(t, op.Index, op.Axis) })
	case tensor.OpCustom:
		return fw.custom(op)
	default:
		return nil, fmt.Errorf("jvp: no tangent rule for op kind %d", op.Kind)
	}
}

func (fw *forwardMode) unary(op *tensor.Op, f func(*tensor.Array) *tensor.Array) (*tensor.Array, error) {
	t, err := fw.tangentOf(op.Inputs[0])
	if err != nil || t == nil {
		return nil, err
	}
	return f(t), nil
}

// chain applies t * factor for elementwise ops whose derivative is factor.
func (fw *forwardMode) chain(op *tensor.Op, factor *tensor.Array) (*tensor.Array, error) {
	t, err := fw.tangentOf(op.Inputs[0])
	if err != nil || t == nil {
		return nil, err
	}
	return tensor.Mul(t, factor), nil
}

func (fw *forwardMode) linear2(op *tensor.Op, combine func(ta, tb *tensor.Array) *tensor.Array) (*tensor.Array, error) {
	ta, err := fw.tangentOf(op.Inputs[0])
	if err != nil {
		return nil, err
	}
	tb, err := fw.tangentOf(op.Inputs[1])
	if err != nil {
		return nil, err
	}
	if ta == nil && tb == nil {
		return nil, nil
	}
	if ta == nil {
		ta = tensor.ZerosLike(op.Inputs[0])
	}
	if tb == nil {
		tb = tensor.ZerosLike(op.Inputs[1])
	}
	return combine(ta, tb), nil
}

// custom resolves the tangent of one output of a custom record, invoking the
// record's JVP override once and memoizing all its output tangents.
func (fw *forwardMode) custom(op *tensor.Op) (*tensor.Array, error) {
	rec := op.Custom
	if rec.JVP == nil {
		// Fall back to differentiating through the recorded inner graph.
		return fw.tangentOf(rec.Outputs[op.Index])
	}

	outs, ok := fw.records[rec]
	if !ok {
		var argnums []int
		var tans []*tensor.Array
		for i, p := range rec.Primals {
			t, err := fw.tangentOf(p)
			if err != nil {
				return nil, err
			}
			if t != nil {
				argnums = append(argnums, i)
				tans = append(tans, t)
			}
		}
		var err error
		outs, err = rec.JVP(rec.Primals, tans, argnums)
		if err != nil {
			return nil, err
		}
		if len(outs) != len(rec.Outputs) {
			return nil, fmt.Errorf("custom jvp returned %d tangents for %d outputs", len(outs), len(rec.Outputs))
		}
		fw.records[rec] = outs
	}
	return outs[op.Index], nil
}
