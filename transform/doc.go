// Copyright 2025 Flint ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package transform provides composable function transformations:
// differentiation, vectorization, compilation with trace caching, gradient
// checkpointing, and user-overridable derivative rules.
//
// Transformed functions take and return structured trees (see the tree
// package) whose leaves are tensors.
//
// # Basic Usage
//
//	loss := func(args []*tree.Node, kwargs map[string]*tree.Node) (*tree.Node, error) {
//	    w := args[0].Tensor()
//	    return tree.Tensor(tensor.Sum(tensor.Mul(w, w))), nil
//	}
//
//	gradFn, _ := transform.Grad(loss)
//	grads, _ := gradFn([]*tree.Node{tree.Tensor(w)}, nil)
//
// Compilation caches a trace of the function keyed by the call signature:
//
//	cfn := transform.Compile(loss)
//	defer cfn.Close()
//	out, _ := cfn.Call(args, nil)
package transform
