// Copyright 2025 Flint ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tree provides the structured trees that function transforms
// operate on: nested lists and key-ordered dicts whose leaves are tensors or
// plain constants.
//
// Trees flatten to an ordered tensor list plus a structure descriptor, and
// rebuild from one; the flatten order is depth-first, left to right, with
// dict children visited in key order.
//
// # Basic Usage
//
//	params := tree.Dict(map[string]*tree.Node{
//	    "w": tree.Tensor(w),
//	    "b": tree.Tensor(b),
//	})
//	flat, _ := tree.Flatten(params, true)
package tree
