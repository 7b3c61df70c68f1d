package prim

import "github.com/flint-ml/flint/internal/tensor"

// subst replays a recorded graph with some arrays substituted. memo seeds the
// substitution (tracer -> replacement) and doubles as the memoization table;
// hook may intercept arbitrary arrays (used for pre-batched vmap outputs).
type subst struct {
	memo map[*tensor.Array]*tensor.Array
	hook func(a *tensor.Array) (*tensor.Array, bool)
}

func (s *subst) resolve(a *tensor.Array) *tensor.Array {
	if r, ok := s.memo[a]; ok {
		return r
	}
	if s.hook != nil {
		if r, ok := s.hook(a); ok {
			s.memo[a] = r
			return r
		}
	}
	op := a.Op()
	if op == nil {
		s.memo[a] = a
		return a
	}
	if op.Kind == tensor.OpCustom {
		// Replay through the recorded inner graph; the custom wrapper only
		// matters for differentiation, which replay does not change.
		r := s.resolve(op.Custom.Outputs[op.Index])
		s.memo[a] = r
		return r
	}

	inputs := make([]*tensor.Array, len(op.Inputs))
	changed := false
	for i, in := range op.Inputs {
		inputs[i] = s.resolve(in)
		if inputs[i] != in {
			changed = true
		}
	}
	if !changed {
		s.memo[a] = a
		return a
	}
	r := tensor.Reapply(op, inputs)
	s.memo[a] = r
	return r
}
