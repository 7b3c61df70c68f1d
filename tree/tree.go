// Copyright 2025 Flint ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tree

import (
	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

// Node is one node of a structured tree. A nil *Node is a valid leaf meaning
// "no value".
type Node = tree.Node

// Entry is a single key/value pair of a dict node.
type Entry = tree.Entry

// Kind identifies a tree node variant.
type Kind = tree.Kind

// Tree node kinds.
const (
	KindTensor      = tree.KindTensor
	KindInt         = tree.KindInt
	KindFloat       = tree.KindFloat
	KindString      = tree.KindString
	KindList        = tree.KindList
	KindDict        = tree.KindDict
	KindPlaceholder = tree.KindPlaceholder
)

// Codec errors.
var (
	ErrTreeLeaf          = tree.ErrTreeLeaf
	ErrStructureMismatch = tree.ErrStructureMismatch
	ErrArity             = tree.ErrArity
)

// Tensor creates a tensor leaf.
func Tensor(a *tensor.Array) *Node { return tree.Tensor(a) }

// Int creates an integer constant leaf.
func Int(v int64) *Node { return tree.Int(v) }

// Float creates a float constant leaf.
func Float(v float64) *Node { return tree.Float(v) }

// Str creates a string constant leaf.
func Str(v string) *Node { return tree.Str(v) }

// List creates an ordered sequence node.
func List(children ...*Node) *Node { return tree.List(children...) }

// Dict creates a mapping node iterated in key order.
func Dict(m map[string]*Node) *Node { return tree.Dict(m) }

// Flatten collects the tree's tensor leaves in flatten order. With strict
// set, non-tensor leaves fail with ErrTreeLeaf.
func Flatten(n *Node, strict bool) ([]*tensor.Array, error) {
	return tree.Flatten(n, strict)
}

// FlattenWithStructure flattens the tree and returns a structure descriptor
// that, together with the arrays, reconstructs it exactly.
func FlattenWithStructure(n *Node) ([]*tensor.Array, *Node) {
	return tree.FlattenWithStructure(n)
}

// Unflatten rebuilds a tree shaped like template, pulling tensors from
// arrays in order starting at offset.
func Unflatten(template *Node, arrays []*tensor.Array, offset int) (*Node, error) {
	return tree.Unflatten(template, arrays, offset)
}

// TensorCount returns the number of tensor slots in a tree or descriptor.
func TensorCount(n *Node) int { return tree.TensorCount(n) }

// Visit walks parallel trees in lockstep, invoking fn with the corresponding
// leaves. Secondary trees may supply a leaf where the first has a container.
func Visit(fn func(leaves []*Node) error, trees ...*Node) error {
	return tree.Visit(fn, trees...)
}

// Map applies fn to every leaf and returns a tree with the same container
// structure.
func Map(n *Node, fn func(leaf *Node) *Node) *Node { return tree.Map(n, fn) }

// Equal reports structural equality, comparing tensor leaves by identity.
func Equal(a, b *Node) bool { return tree.Equal(a, b) }
