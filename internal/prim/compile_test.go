package prim

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-ml/flint/internal/tensor"
)

// testFunIDs keeps per-test wrapper ids out of each other's cache entries.
var testFunIDs atomic.Uint64

func init() {
	testFunIDs.Store(1 << 32)
}

func countingSquare(traces *int) FlatFunc {
	return func(in []*tensor.Array) ([]*tensor.Array, error) {
		*traces++
		return []*tensor.Array{tensor.Mul(in[0], in[0])}, nil
	}
}

func TestCompile_CacheHit(t *testing.T) {
	EnableCompile()
	traces := 0
	cfn := Compile(countingSquare(&traces), testFunIDs.Add(1), false, nil)

	x := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3})
	outs, err := cfn([]*tensor.Array{x})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 9}, outs[0].Data())
	assert.Equal(t, 1, traces)

	y := fromSlice(t, []float32{2, 3, 4}, tensor.Shape{3})
	outs, err = cfn([]*tensor.Array{y})
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 9, 16}, outs[0].Data(), "cache hit replays with the new inputs")
	assert.Equal(t, 1, traces, "same input spec should not re-trace")
}

func TestCompile_ShapeChangeRetraces(t *testing.T) {
	EnableCompile()
	traces := 0
	cfn := Compile(countingSquare(&traces), testFunIDs.Add(1), false, nil)

	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2})
	_, err := cfn([]*tensor.Array{x})
	require.NoError(t, err)

	y := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3})
	_, err = cfn([]*tensor.Array{y})
	require.NoError(t, err)
	assert.Equal(t, 2, traces)
}

func TestCompile_Shapeless(t *testing.T) {
	EnableCompile()
	traces := 0
	cfn := Compile(countingSquare(&traces), testFunIDs.Add(1), true, nil)

	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2})
	_, err := cfn([]*tensor.Array{x})
	require.NoError(t, err)

	y := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3})
	outs, err := cfn([]*tensor.Array{y})
	require.NoError(t, err)
	assert.Equal(t, 1, traces, "shapeless compilation reuses the trace across shapes")
	assert.Equal(t, []float32{1, 4, 9}, outs[0].Data())

	// Rank changes still re-trace.
	z := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	_, err = cfn([]*tensor.Array{z})
	require.NoError(t, err)
	assert.Equal(t, 2, traces)
}

func TestCompile_SignatureMiss(t *testing.T) {
	EnableCompile()
	traces := 0
	id := testFunIDs.Add(1)
	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2})

	_, err := Compile(countingSquare(&traces), id, false, []uint64{1})([]*tensor.Array{x})
	require.NoError(t, err)
	_, err = Compile(countingSquare(&traces), id, false, []uint64{2})([]*tensor.Array{x})
	require.NoError(t, err)
	assert.Equal(t, 2, traces, "different constant signatures are distinct cache entries")

	_, err = Compile(countingSquare(&traces), id, false, []uint64{1})([]*tensor.Array{x})
	require.NoError(t, err)
	assert.Equal(t, 2, traces, "the first signature is still cached")
}

func TestCompile_Disabled(t *testing.T) {
	DisableCompile()
	defer EnableCompile()

	traces := 0
	cfn := Compile(countingSquare(&traces), testFunIDs.Add(1), false, nil)

	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2})
	for i := 0; i < 3; i++ {
		outs, err := cfn([]*tensor.Array{x})
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 4}, outs[0].Data())
	}
	assert.Equal(t, 3, traces, "disabled compilation calls the function every time")
}

func TestCompileErase(t *testing.T) {
	EnableCompile()
	traces := 0
	id := testFunIDs.Add(1)
	cfn := Compile(countingSquare(&traces), id, false, nil)

	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2})
	_, err := cfn([]*tensor.Array{x})
	require.NoError(t, err)
	require.Equal(t, 1, traces)

	CompileErase(id)

	_, err = cfn([]*tensor.Array{x})
	require.NoError(t, err)
	assert.Equal(t, 2, traces, "erased wrappers re-trace on the next call")
}

func TestCompile_ErrorPropagates(t *testing.T) {
	EnableCompile()
	boom := func([]*tensor.Array) ([]*tensor.Array, error) {
		return nil, assert.AnError
	}
	cfn := Compile(boom, testFunIDs.Add(1), false, nil)
	_, err := cfn([]*tensor.Array{tensor.Scalar(1)})
	assert.ErrorIs(t, err, assert.AnError)
}
