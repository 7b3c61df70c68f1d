// Copyright 2025 Flint ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/flint-ml/flint/internal/tensor"
)

// Array is a lazily evaluated array handle.
type Array = tensor.Array

// Shape describes an array's dimensions.
type Shape = tensor.Shape

// DataType identifies an array's element type.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32 = tensor.Float32
	Int32   = tensor.Int32
)

// FromSlice creates an array from a Go slice.
func FromSlice(data []float32, shape Shape) (*Array, error) {
	return tensor.FromSlice(data, shape)
}

// Scalar creates a rank-0 array holding a single value.
func Scalar(v float32) *Array {
	return tensor.Scalar(v)
}

// Full creates an array of the given shape filled with value.
func Full(shape Shape, value float32) *Array {
	return tensor.Full(shape, value)
}

// Zeros creates an array of the given shape filled with zeros.
func Zeros(shape Shape) *Array {
	return tensor.Full(shape, 0)
}

// Ones creates an array of the given shape filled with ones.
func Ones(shape Shape) *Array {
	return tensor.Full(shape, 1)
}

// Add returns the elementwise sum of a and b.
func Add(a, b *Array) *Array { return tensor.Add(a, b) }

// Sub returns the elementwise difference of a and b.
func Sub(a, b *Array) *Array { return tensor.Sub(a, b) }

// Mul returns the elementwise product of a and b.
func Mul(a, b *Array) *Array { return tensor.Mul(a, b) }

// Neg returns the elementwise negation of a.
func Neg(a *Array) *Array { return tensor.Neg(a) }

// Sin returns the elementwise sine of a.
func Sin(a *Array) *Array { return tensor.Sin(a) }

// Cos returns the elementwise cosine of a.
func Cos(a *Array) *Array { return tensor.Cos(a) }

// Exp returns the elementwise exponential of a.
func Exp(a *Array) *Array { return tensor.Exp(a) }

// Sum reduces a to a scalar by summation.
func Sum(a *Array) *Array { return tensor.Sum(a) }

// Stack joins arrays of equal shape along a new axis.
func Stack(arrays []*Array, axis int) *Array { return tensor.Stack(arrays, axis) }

// Take selects the i-th slice of a along axis.
func Take(a *Array, i, axis int) *Array { return tensor.Take(a, i, axis) }
