// Package prim implements the primitive transform layer the engine drives:
// evaluation, reverse- and forward-mode differentiation, vectorization
// trace/replace, compiled-graph caching, checkpointing and custom-transform
// records. It operates exclusively on flat, ordered lists of arrays; all
// structure bookkeeping lives a layer above.
package prim

import (
	"github.com/flint-ml/flint/internal/tensor"
)

// FlatFunc is a function over flat, ordered array lists. Every transform in
// this package consumes and produces FlatFuncs.
type FlatFunc func(inputs []*tensor.Array) ([]*tensor.Array, error)

// Eval forces materialization of the given arrays. Nil entries are skipped.
func Eval(arrays []*tensor.Array) {
	for _, a := range arrays {
		if a != nil {
			a.Materialize()
		}
	}
}

// AsyncEval schedules materialization on a separate goroutine and returns
// immediately. Arrays are safe to read afterwards; a later read blocks until
// its value is ready.
func AsyncEval(arrays []*tensor.Array) {
	go Eval(arrays)
}
