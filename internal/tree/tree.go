// Package tree implements the structured-tree codec used by every function
// transform: nested lists, key-ordered dicts, arrays and plain constants are
// flattened into an ordered array list plus a reusable structure descriptor,
// and reconstructed from one.
package tree

import (
	"fmt"
	"sort"

	"github.com/flint-ml/flint/internal/tensor"
)

// Kind identifies a tree node variant. The set of kinds is closed; code
// switching on Kind should handle every case.
type Kind uint8

// Tree node kinds.
const (
	KindTensor Kind = iota
	KindInt
	KindFloat
	KindString
	KindList
	KindDict
	// KindPlaceholder marks a tensor slot in a structure descriptor.
	KindPlaceholder
)

func (k Kind) String() string {
	switch k {
	case KindTensor:
		return "tensor"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// Entry is a single key/value pair of a dict node.
type Entry struct {
	Key string
	Val *Node
}

// Node is one node of a structured tree. A nil *Node is a valid leaf meaning
// "no value" (used for absent vectorization axes and tangent holes).
type Node struct {
	kind Kind
	arr  *tensor.Array
	i    int64
	f    float64
	s    string
	list []*Node
	dict []Entry // sorted by key
}

// Tensor creates a tensor leaf.
func Tensor(a *tensor.Array) *Node {
	return &Node{kind: KindTensor, arr: a}
}

// Int creates an integer constant leaf.
func Int(v int64) *Node {
	return &Node{kind: KindInt, i: v}
}

// Float creates a float constant leaf.
func Float(v float64) *Node {
	return &Node{kind: KindFloat, f: v}
}

// Str creates a string constant leaf.
func Str(v string) *Node {
	return &Node{kind: KindString, s: v}
}

// List creates an ordered sequence node.
func List(children ...*Node) *Node {
	return &Node{kind: KindList, list: children}
}

// Dict creates a mapping node. Iteration order is by sorted key.
func Dict(m map[string]*Node) *Node {
	entries := make([]Entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, Entry{Key: k, Val: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return &Node{kind: KindDict, dict: entries}
}

func placeholder() *Node {
	return &Node{kind: KindPlaceholder}
}

// Kind returns the node's variant.
func (n *Node) Kind() Kind { return n.kind }

// Tensor returns the array of a tensor leaf.
func (n *Node) Tensor() *tensor.Array { return n.arr }

// Int returns the value of an integer leaf.
func (n *Node) Int() int64 { return n.i }

// Float returns the value of a float leaf.
func (n *Node) Float() float64 { return n.f }

// Str returns the value of a string leaf.
func (n *Node) Str() string { return n.s }

// Len returns the child count of a list or dict node.
func (n *Node) Len() int {
	if n.kind == KindDict {
		return len(n.dict)
	}
	return len(n.list)
}

// Children returns the ordered children of a list node.
func (n *Node) Children() []*Node { return n.list }

// At returns the i-th child of a list node.
func (n *Node) At(i int) *Node { return n.list[i] }

// Entries returns the key-ordered entries of a dict node.
func (n *Node) Entries() []Entry { return n.dict }

// Get returns the value for key in a dict node, or nil if absent.
func (n *Node) Get(key string) *Node {
	for _, e := range n.dict {
		if e.Key == key {
			return e.Val
		}
	}
	return nil
}

// IsLeaf reports whether the node is not a container. A nil node is a leaf.
func (n *Node) IsLeaf() bool {
	return n == nil || (n.kind != KindList && n.kind != KindDict)
}

// Equal reports structural equality: same shape, same constants, and the
// same tensor handles (identity, not value) at every tensor leaf.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindTensor:
		return a.arr == b.arr
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindPlaceholder:
		return true
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(a.dict) != len(b.dict) {
			return false
		}
		for i := range a.dict {
			if a.dict[i].Key != b.dict[i].Key || !Equal(a.dict[i].Val, b.dict[i].Val) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (n *Node) String() string {
	if n == nil {
		return "none"
	}
	switch n.kind {
	case KindTensor:
		return n.arr.String()
	case KindInt:
		return fmt.Sprintf("%d", n.i)
	case KindFloat:
		return fmt.Sprintf("%g", n.f)
	case KindString:
		return fmt.Sprintf("%q", n.s)
	case KindPlaceholder:
		return "_"
	case KindList:
		return fmt.Sprintf("list(len=%d)", len(n.list))
	case KindDict:
		return fmt.Sprintf("dict(len=%d)", len(n.dict))
	default:
		return "unknown"
	}
}
