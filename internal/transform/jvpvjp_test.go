package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

func TestJVP_Simple(t *testing.T) {
	sin := func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		return tree.Tensor(tensor.Sin(args[0].Tensor())), nil
	}

	x, tan := tensor.Scalar(1), tensor.Scalar(1)
	outs, outTans, err := JVP(sin, []*tensor.Array{x}, []*tensor.Array{tan})
	require.NoError(t, err)

	require.Len(t, outs, 1)
	assert.InDelta(t, math.Sin(1), float64(outs[0].Item()), 1e-5)
	assert.InDelta(t, math.Cos(1), float64(outTans[0].Item()), 1e-5)
}

func TestJVP_TangentCountMismatch(t *testing.T) {
	id := func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		return args[0], nil
	}
	_, _, err := JVP(id, []*tensor.Array{tensor.Scalar(1)}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestJVP_MultipleOutputs(t *testing.T) {
	fn := func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		x := args[0].Tensor()
		return tree.List(tree.Tensor(tensor.Add(x, x)), tree.Tensor(tensor.Neg(x))), nil
	}

	x, tan := tensor.Scalar(3), tensor.Scalar(1)
	outs, outTans, err := JVP(fn, []*tensor.Array{x}, []*tensor.Array{tan})
	require.NoError(t, err)

	require.Len(t, outs, 2)
	assert.Equal(t, float32(2), outTans[0].Item())
	assert.Equal(t, float32(-1), outTans[1].Item())
}

func TestVJP_Simple(t *testing.T) {
	prod := func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		return tree.Tensor(tensor.Mul(args[0].Tensor(), args[1].Tensor())), nil
	}

	x, y := tensor.Scalar(3), tensor.Scalar(5)
	outs, grads, err := VJP(prod, []*tensor.Array{x, y}, []*tensor.Array{tensor.Scalar(1)})
	require.NoError(t, err)

	assert.Equal(t, float32(15), outs[0].Item())
	require.Len(t, grads, 2)
	assert.Equal(t, float32(5), grads[0].Item())
	assert.Equal(t, float32(3), grads[1].Item())
}

func TestJVP_ReturnContract(t *testing.T) {
	tests := []struct {
		name string
		out  *tree.Node
	}{
		{"constant", tree.Int(1)},
		{"list with constant", tree.List(tree.Int(1))},
		{"none", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := func([]*tree.Node, map[string]*tree.Node) (*tree.Node, error) {
				return tt.out, nil
			}
			_, _, err := JVP(fn, []*tensor.Array{tensor.Scalar(1)}, []*tensor.Array{tensor.Scalar(1)})
			assert.ErrorIs(t, err, ErrReturnContract)
		})
	}
}
