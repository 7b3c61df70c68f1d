package prim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-ml/flint/internal/tensor"
)

func TestVmap_Elementwise(t *testing.T) {
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{tensor.Mul(in[0], in[0])}, nil
	}

	x := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})
	res, err := VmapTrace(fn, []*tensor.Array{x}, []int{0})
	require.NoError(t, err)

	outs, err := VmapReplace(res, []*tensor.Array{x}, []int{0}, []int{0})
	require.NoError(t, err)

	require.Len(t, outs, 1)
	assert.Equal(t, tensor.Shape{3, 2}, outs[0].Shape())
	assert.Equal(t, []float32{1, 4, 9, 16, 25, 36}, outs[0].Data())
}

func TestVmap_OutputAxisPlacement(t *testing.T) {
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{in[0]}, nil
	}

	x := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})
	res, err := VmapTrace(fn, []*tensor.Array{x}, []int{0})
	require.NoError(t, err)

	outs, err := VmapReplace(res, []*tensor.Array{x}, []int{0}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, outs[0].Shape())
	assert.Equal(t, []float32{1, 3, 5, 2, 4, 6}, outs[0].Data())
}

func TestVmap_MixedBatchedUnbatched(t *testing.T) {
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{tensor.Add(in[0], in[1])}, nil
	}

	x := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y := fromSlice(t, []float32{10, 20}, tensor.Shape{2})
	res, err := VmapTrace(fn, []*tensor.Array{x, y}, []int{0, -1})
	require.NoError(t, err)

	outs, err := VmapReplace(res, []*tensor.Array{x, y}, []int{0, -1}, []int{0})
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 13, 24}, outs[0].Data())
}

func TestVmapTrace_InconsistentBatchSizes(t *testing.T) {
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return in, nil
	}
	x := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3})
	y := fromSlice(t, []float32{1, 2}, tensor.Shape{2})
	_, err := VmapTrace(fn, []*tensor.Array{x, y}, []int{0, 0})
	assert.Error(t, err)
}

func TestVmapReplace_NoBatchedInputForBatchedOutput(t *testing.T) {
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return in, nil
	}
	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2})
	res, err := VmapTrace(fn, []*tensor.Array{x}, []int{-1})
	require.NoError(t, err)

	_, err = VmapReplace(res, []*tensor.Array{x}, []int{-1}, []int{0})
	assert.Error(t, err, "a batched output needs at least one batched input")

	outs, err := VmapReplace(res, []*tensor.Array{x}, []int{-1}, []int{-1})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, outs[0].Data())
}

func TestVmap_CustomOverride(t *testing.T) {
	forwardCalls := 0
	forward := func(in []*tensor.Array) ([]*tensor.Array, error) {
		forwardCalls++
		return []*tensor.Array{tensor.Neg(in[0])}, nil
	}
	override := func(in []*tensor.Array, axes []int) ([]*tensor.Array, []int, error) {
		// Batched rule: negate the whole batch at once.
		return []*tensor.Array{tensor.Neg(in[0])}, []int{axes[0]}, nil
	}
	cf := CustomFunction(forward, nil, nil, override)

	x := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	res, err := VmapTrace(cf, []*tensor.Array{x}, []int{0})
	require.NoError(t, err)

	outs, err := VmapReplace(res, []*tensor.Array{x}, []int{0}, []int{0})
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, -2, -3, -4}, outs[0].Data())
	assert.Equal(t, 0, forwardCalls, "the override replaces the per-slice forward")
}
