package tree

import (
	"fmt"

	"github.com/flint-ml/flint/internal/tensor"
)

// PackCall packs a call's positional and keyword arguments into a single
// tree, List[List(args), Dict(kwargs)], so the whole invocation flattens and
// reconstructs atomically under one structure descriptor.
func PackCall(args []*Node, kwargs map[string]*Node) *Node {
	return List(List(args...), Dict(kwargs))
}

// UnpackCall splits a call bundle produced by PackCall (or rebuilt from its
// descriptor) back into positional arguments and the kwargs dict node.
func UnpackCall(bundle *Node) ([]*Node, *Node, error) {
	if bundle == nil || bundle.kind != KindList || len(bundle.list) != 2 {
		return nil, nil, fmt.Errorf("%w: call bundle must be a 2-element list", ErrArity)
	}
	argsNode, kwargsNode := bundle.list[0], bundle.list[1]
	if argsNode == nil || argsNode.kind != KindList || kwargsNode == nil || kwargsNode.kind != KindDict {
		return nil, nil, fmt.Errorf("%w: malformed call bundle", ErrStructureMismatch)
	}
	return argsNode.list, kwargsNode, nil
}

// Fill replaces the tree's tensor leaves in place with arrays, consumed in
// flatten order. Fails with ErrArity if the counts disagree.
func Fill(n *Node, arrays []*tensor.Array) error {
	i := 0
	short := false
	VisitUpdate(n, func(leaf *Node) *Node {
		if i >= len(arrays) {
			short = true
			return leaf
		}
		t := Tensor(arrays[i])
		i++
		return t
	})
	if short || i != len(arrays) {
		return fmt.Errorf("%w: tree has a different number of tensor leaves than %d", ErrArity, len(arrays))
	}
	return nil
}
