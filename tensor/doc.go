// Copyright 2025 Flint ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides lazy arrays with structural identity.
//
// An Array records the operation that produced it instead of computing
// eagerly; values materialize on demand and transforms inspect the recorded
// graph. Two handles are the same array only if they are the same handle,
// which is what lets transforms tell a traced input apart from everything
// else.
//
// # Basic Usage
//
//	x := tensor.Scalar(2)
//	y, _ := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3})
//
//	z := tensor.Mul(tensor.Sin(x), tensor.Sum(y))
//	fmt.Println(z.Item()) // forces evaluation
package tensor
