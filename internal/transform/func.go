// Package transform implements function transformations over structured
// trees of arrays: differentiation, vectorization, compilation with caching,
// checkpointing, and user-overridable derivative rules. Every transform
// follows the same shape: flatten the call's trees into an ordered array
// list, drive a primitive transform over the flat list, and rebuild the
// structured result from a structure descriptor.
package transform

import (
	"sort"

	"github.com/flint-ml/flint/internal/tree"
)

// Func is the engine's view of a host callable: invoked with ordered
// positional arguments and named keyword arguments, it returns a value tree.
// kwargs may be nil.
type Func func(args []*tree.Node, kwargs map[string]*tree.Node) (*tree.Node, error)

// sortedKeys returns the map's keys in sorted order. Keyword arguments are
// always traversed in key order so that flattening is deterministic.
func sortedKeys(m map[string]*tree.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// kwargsMap converts a dict node back into the map form a Func is invoked
// with.
func kwargsMap(dict *tree.Node) map[string]*tree.Node {
	if dict == nil {
		return nil
	}
	m := make(map[string]*tree.Node, dict.Len())
	for _, e := range dict.Entries() {
		m[e.Key] = e.Val
	}
	return m
}
