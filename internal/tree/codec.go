package tree

import (
	"fmt"

	"github.com/flint-ml/flint/internal/tensor"
)

// Flatten collects the tree's tensor leaves in depth-first, left-to-right
// order (dict children in key order). Non-tensor leaves are dropped unless
// strict is set, in which case they fail with ErrTreeLeaf.
func Flatten(n *Node, strict bool) ([]*tensor.Array, error) {
	var out []*tensor.Array
	if err := flattenInto(n, strict, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(n *Node, strict bool, out *[]*tensor.Array) error {
	if n == nil {
		if strict {
			return fmt.Errorf("%w: found none", ErrTreeLeaf)
		}
		return nil
	}
	switch n.kind {
	case KindTensor:
		*out = append(*out, n.arr)
		return nil
	case KindList:
		for _, c := range n.list {
			if err := flattenInto(c, strict, out); err != nil {
				return err
			}
		}
		return nil
	case KindDict:
		for _, e := range n.dict {
			if err := flattenInto(e.Val, strict, out); err != nil {
				return err
			}
		}
		return nil
	default:
		if strict {
			return fmt.Errorf("%w: found %s leaf", ErrTreeLeaf, n.kind)
		}
		return nil
	}
}

// FlattenWithStructure flattens the tree and also returns a structure
// descriptor: a tree of the same shape with every tensor leaf replaced by a
// placeholder. The descriptor plus the returned arrays reconstruct the
// original tree exactly.
func FlattenWithStructure(n *Node) ([]*tensor.Array, *Node) {
	var out []*tensor.Array
	desc := describe(n, &out)
	return out, desc
}

func describe(n *Node, out *[]*tensor.Array) *Node {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindTensor:
		*out = append(*out, n.arr)
		return placeholder()
	case KindList:
		children := make([]*Node, len(n.list))
		for i, c := range n.list {
			children[i] = describe(c, out)
		}
		return &Node{kind: KindList, list: children}
	case KindDict:
		entries := make([]Entry, len(n.dict))
		for i, e := range n.dict {
			entries[i] = Entry{Key: e.Key, Val: describe(e.Val, out)}
		}
		return &Node{kind: KindDict, dict: entries}
	default:
		// Constants are shared: they are immutable leaves.
		return n
	}
}

// TensorCount returns the number of tensor slots in a tree or descriptor.
func TensorCount(n *Node) int {
	if n == nil {
		return 0
	}
	switch n.kind {
	case KindTensor, KindPlaceholder:
		return 1
	case KindList:
		total := 0
		for _, c := range n.list {
			total += TensorCount(c)
		}
		return total
	case KindDict:
		total := 0
		for _, e := range n.dict {
			total += TensorCount(e.Val)
		}
		return total
	default:
		return 0
	}
}

// Unflatten rebuilds a tree shaped like template, pulling tensors from arrays
// in order starting at offset. Both tensor leaves and placeholders in the
// template count as slots; every other leaf is carried over unchanged. Fails
// with ErrArity if arrays is too short.
func Unflatten(template *Node, arrays []*tensor.Array, offset int) (*Node, error) {
	idx := offset
	out, err := unflattenAt(template, arrays, &idx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func unflattenAt(template *Node, arrays []*tensor.Array, idx *int) (*Node, error) {
	if template == nil {
		return nil, nil
	}
	switch template.kind {
	case KindTensor, KindPlaceholder:
		if *idx >= len(arrays) {
			return nil, fmt.Errorf("%w: tree reconstruction needs more than %d tensors", ErrArity, len(arrays))
		}
		n := Tensor(arrays[*idx])
		*idx++
		return n, nil
	case KindList:
		children := make([]*Node, len(template.list))
		for i, c := range template.list {
			child, err := unflattenAt(c, arrays, idx)
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		return &Node{kind: KindList, list: children}, nil
	case KindDict:
		entries := make([]Entry, len(template.dict))
		for i, e := range template.dict {
			child, err := unflattenAt(e.Val, arrays, idx)
			if err != nil {
				return nil, err
			}
			entries[i] = Entry{Key: e.Key, Val: child}
		}
		return &Node{kind: KindDict, dict: entries}, nil
	default:
		return template, nil
	}
}

// Visit walks parallel trees in lockstep, invoking fn with the corresponding
// leaves. The walk is driven by the first tree; a secondary tree may supply a
// bare leaf where the first has a container, in which case the leaf is
// matched against every leaf of that subtree (prefix-tree semantics, used by
// vectorization axis specs). Containers that disagree in kind, size or keys
// fail with ErrStructureMismatch.
func Visit(fn func(leaves []*Node) error, trees ...*Node) error {
	if len(trees) == 0 {
		return nil
	}
	return visit(fn, trees)
}

func visit(fn func(leaves []*Node) error, nodes []*Node) error {
	first := nodes[0]
	if first.IsLeaf() {
		// Secondary trees are passed through as-is at a leaf of the first
		// tree, container or not; the visitor decides whether that is valid.
		return fn(nodes)
	}

	switch first.kind {
	case KindList:
		for i := range first.list {
			sub := make([]*Node, len(nodes))
			sub[0] = first.list[i]
			for j, other := range nodes[1:] {
				child, err := childOf(other, first, i)
				if err != nil {
					return err
				}
				sub[j+1] = child
			}
			if err := visit(fn, sub); err != nil {
				return err
			}
		}
		return nil
	case KindDict:
		for i := range first.dict {
			sub := make([]*Node, len(nodes))
			sub[0] = first.dict[i].Val
			for j, other := range nodes[1:] {
				child, err := childOf(other, first, i)
				if err != nil {
					return err
				}
				sub[j+1] = child
			}
			if err := visit(fn, sub); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected node %s", ErrStructureMismatch, first)
	}
}

// childOf resolves the i-th child of other against the container first.
// Leaves broadcast; containers must agree exactly.
func childOf(other, first *Node, i int) (*Node, error) {
	if other.IsLeaf() {
		return other, nil
	}
	if other.kind != first.kind || other.Len() != first.Len() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrStructureMismatch, first, other)
	}
	if first.kind == KindDict {
		if other.dict[i].Key != first.dict[i].Key {
			return nil, fmt.Errorf("%w: key %q vs %q", ErrStructureMismatch, first.dict[i].Key, other.dict[i].Key)
		}
		return other.dict[i].Val, nil
	}
	return other.list[i], nil
}

// Map applies fn to every leaf and returns a tree with the same container
// structure. fn may receive a nil leaf and may return nil.
func Map(n *Node, fn func(leaf *Node) *Node) *Node {
	if n.IsLeaf() {
		return fn(n)
	}
	switch n.kind {
	case KindList:
		children := make([]*Node, len(n.list))
		for i, c := range n.list {
			children[i] = Map(c, fn)
		}
		return &Node{kind: KindList, list: children}
	case KindDict:
		entries := make([]Entry, len(n.dict))
		for i, e := range n.dict {
			entries[i] = Entry{Key: e.Key, Val: Map(e.Val, fn)}
		}
		return &Node{kind: KindDict, dict: entries}
	default:
		return fn(n)
	}
}

// VisitUpdate replaces every tensor leaf of the tree in place with fn's
// result. Container shape and non-tensor leaves are untouched. Used to splice
// real tensors back in after a traced call.
func VisitUpdate(n *Node, fn func(leaf *Node) *Node) {
	if n == nil {
		return
	}
	switch n.kind {
	case KindList:
		for i, c := range n.list {
			if c != nil && c.kind == KindTensor {
				n.list[i] = fn(c)
			} else {
				VisitUpdate(c, fn)
			}
		}
	case KindDict:
		for i, e := range n.dict {
			if e.Val != nil && e.Val.kind == KindTensor {
				n.dict[i].Val = fn(e.Val)
			} else {
				VisitUpdate(e.Val, fn)
			}
		}
	}
}
