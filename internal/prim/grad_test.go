package prim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-ml/flint/internal/tensor"
)

func fromSlice(t *testing.T, data []float32, shape tensor.Shape) *tensor.Array {
	t.Helper()
	a, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return a
}

func TestValueAndGrad_Square(t *testing.T) {
	// f(x) = sum(x * x), df/dx = 2x
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{tensor.Sum(tensor.Mul(in[0], in[0]))}, nil
	}

	x := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3})
	values, grads, err := ValueAndGrad(fn, []int{0})([]*tensor.Array{x})
	require.NoError(t, err)

	require.Len(t, values, 1)
	assert.Equal(t, float32(14), values[0].Item())

	require.Len(t, grads, 1)
	assert.Equal(t, []float32{2, 4, 6}, grads[0].Data())
}

func TestValueAndGrad_UnusedInputGetsZeros(t *testing.T) {
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{tensor.Sum(in[0])}, nil
	}

	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2})
	y := fromSlice(t, []float32{3, 4}, tensor.Shape{2})
	_, grads, err := ValueAndGrad(fn, []int{0, 1})([]*tensor.Array{x, y})
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 1}, grads[0].Data())
	assert.Equal(t, []float32{0, 0}, grads[1].Data(), "input the output does not depend on gets zero gradient")
}

func TestValueAndGrad_SharedSubexpression(t *testing.T) {
	// f(x) = sum(x*x + x*x) accumulates gradient through both uses: 4x.
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		sq := tensor.Mul(in[0], in[0])
		return []*tensor.Array{tensor.Sum(tensor.Add(sq, sq))}, nil
	}

	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2})
	_, grads, err := ValueAndGrad(fn, []int{0})([]*tensor.Array{x})
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 8}, grads[0].Data())
}

func TestVJP_Product(t *testing.T) {
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{tensor.Mul(in[0], in[1])}, nil
	}

	x := fromSlice(t, []float32{2, 3}, tensor.Shape{2})
	y := fromSlice(t, []float32{5, 7}, tensor.Shape{2})
	cot := fromSlice(t, []float32{1, 1}, tensor.Shape{2})

	outs, grads, err := VJP(fn, []*tensor.Array{x, y}, []*tensor.Array{cot})
	require.NoError(t, err)

	assert.Equal(t, []float32{10, 21}, outs[0].Data())
	assert.Equal(t, []float32{5, 7}, grads[0].Data())
	assert.Equal(t, []float32{2, 3}, grads[1].Data())
}

func TestVJP_CotangentCountMismatch(t *testing.T) {
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{in[0], in[0]}, nil
	}
	x := tensor.Scalar(1)
	_, _, err := VJP(fn, []*tensor.Array{x}, []*tensor.Array{tensor.Scalar(1)})
	assert.Error(t, err)
}

func TestJVP_Sin(t *testing.T) {
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{tensor.Sin(in[0])}, nil
	}

	x := tensor.Scalar(1)
	tan := tensor.Scalar(1)
	outs, outTans, err := JVP(fn, []*tensor.Array{x}, []*tensor.Array{tan})
	require.NoError(t, err)

	assert.InDelta(t, math.Sin(1), float64(outs[0].Item()), 1e-5)
	assert.InDelta(t, math.Cos(1), float64(outTans[0].Item()), 1e-5)
}

func TestJVP_ConstantOutput(t *testing.T) {
	c := tensor.Scalar(42)
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{c}, nil
	}

	x := tensor.Scalar(1)
	_, outTans, err := JVP(fn, []*tensor.Array{x}, []*tensor.Array{tensor.Scalar(1)})
	require.NoError(t, err)
	assert.Equal(t, float32(0), outTans[0].Item(), "no tangent flows into a constant output")
}

func TestJVP_Product(t *testing.T) {
	// d(x*y) = y dx + x dy
	fn := func(in []*tensor.Array) ([]*tensor.Array, error) {
		return []*tensor.Array{tensor.Mul(in[0], in[1])}, nil
	}

	x, y := tensor.Scalar(3), tensor.Scalar(5)
	tx, ty := tensor.Scalar(1), tensor.Scalar(2)
	_, outTans, err := JVP(fn, []*tensor.Array{x, y}, []*tensor.Array{tx, ty})
	require.NoError(t, err)
	assert.Equal(t, float32(5*1+3*2), outTans[0].Item())
}
