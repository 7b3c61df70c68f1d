// Copyright 2025 Flint ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package transform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-ml/flint/tensor"
	"github.com/flint-ml/flint/transform"
	"github.com/flint-ml/flint/tree"
)

func TestGradThroughPublicSurface(t *testing.T) {
	loss := func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		w := args[0].Tensor()
		return tree.Tensor(tensor.Sum(tensor.Mul(w, w))), nil
	}

	w, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)

	gradFn, err := transform.Grad(loss)
	require.NoError(t, err)
	grads, err := gradFn([]*tree.Node{tree.Tensor(w)}, nil)
	require.NoError(t, err)

	assert.Equal(t, []float32{2, 4, 6}, grads.Tensor().Data())
}

func TestCompileThroughPublicSurface(t *testing.T) {
	transform.EnableCompile()
	calls := 0
	double := func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		calls++
		x := args[0].Tensor()
		return tree.Tensor(tensor.Add(x, x)), nil
	}

	cfn := transform.Compile(double)
	defer cfn.Close()

	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		out, err := cfn.Call([]*tree.Node{tree.Tensor(x)}, nil)
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 4}, out.Tensor().Data())
	}
	assert.Equal(t, 1, calls)
}

func TestVmapThroughPublicSurface(t *testing.T) {
	square := func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		x := args[0].Tensor()
		return tree.Tensor(tensor.Mul(x, x)), nil
	}

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	require.NoError(t, err)

	out, err := transform.Vmap(square, tree.Int(0), tree.Int(0))(tree.Tensor(x))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 9, 16}, out.Tensor().Data())
}
