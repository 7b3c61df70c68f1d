package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

func TestCustomFunc_NoOverridesIsPlainCall(t *testing.T) {
	calls := 0
	cf := NewCustomFunction(func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		calls++
		return args[0], nil
	})

	in := vec(t, 1, 2)
	out, err := cf.Call([]*tree.Node{in}, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 1, calls)
}

func TestCustomFunc_GradFallsBackWithoutVJP(t *testing.T) {
	// Only a vmap override: gradient still flows through the forward graph.
	cf := NewCustomFunction(sumSquares).WithVmap(
		func(inputs []*tree.Node, axes []*tree.Node) (*tree.Node, *tree.Node, error) {
			return inputs[0], axes[0], nil
		})

	gradFn, err := Grad(cf.Call)
	require.NoError(t, err)
	grads, err := gradFn([]*tree.Node{vec(t, 1, 2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4}, grads.Tensor().Data())
}

func TestCustomFunc_VJPOverride(t *testing.T) {
	vjpCalls := 0
	cf := NewCustomFunction(sumSquares).WithVJP(
		func(primals []*tree.Node, cotangents, _ *tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
			vjpCalls++
			// Deliberately not the true gradient: cot * 3 per input element.
			c := cotangents.Tensor()
			x := primals[0].Tensor()
			return tree.Tensor(tensor.Mul(tensor.Mul(tensor.OnesLike(x), c), tensor.Scalar(3))), nil
		})

	gradFn, err := Grad(cf.Call)
	require.NoError(t, err)
	grads, err := gradFn([]*tree.Node{vec(t, 1, 2)}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, vjpCalls)
	assert.Equal(t, []float32{3, 3}, grads.Tensor().Data(), "the override replaces the traced gradient")
}

func TestCustomFunc_VJPCotangentCountMismatch(t *testing.T) {
	cf := NewCustomFunction(sumSquares).WithVJP(
		func([]*tree.Node, *tree.Node, *tree.Node, map[string]*tree.Node) (*tree.Node, error) {
			return tree.List(), nil
		})

	gradFn, err := Grad(cf.Call)
	require.NoError(t, err)
	_, err = gradFn([]*tree.Node{vec(t, 1)}, nil)
	assert.ErrorIs(t, err, ErrReturnContract)
}

func TestCustomFunc_JVPOverride(t *testing.T) {
	cf := NewCustomFunction(func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		x := args[0].Tensor()
		return tree.Tensor(tensor.Mul(x, x)), nil
	}).WithJVP(
		func(primals, tangents []*tree.Node, argnums []int) (*tree.Node, error) {
			require.Equal(t, []int{0}, argnums)
			// Deliberately not the true derivative: tangent * 5.
			return tree.Tensor(tensor.Mul(tangents[0].Tensor(), tensor.Scalar(5))), nil
		})

	x, tan := tensor.Scalar(3), tensor.Scalar(2)
	_, outTans, err := JVP(cf.Call, []*tensor.Array{x}, []*tensor.Array{tan})
	require.NoError(t, err)
	assert.Equal(t, float32(10), outTans[0].Item())
}

func TestCustomFunc_JVPRejectsKwargs(t *testing.T) {
	cf := NewCustomFunction(func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		return args[0], nil
	}).WithJVP(
		func(primals, tangents []*tree.Node, _ []int) (*tree.Node, error) {
			return tangents[0], nil
		})

	withKwargs := func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		return cf.Call(args, map[string]*tree.Node{"extra": vec(t, 1)})
	}

	x := tensor.Scalar(1)
	_, _, err := JVP(withKwargs, []*tensor.Array{x}, []*tensor.Array{tensor.Scalar(1)})
	assert.ErrorIs(t, err, ErrUnsupportedArgument)
}

func TestCustomFunc_VmapOverride(t *testing.T) {
	forwardCalls := 0
	cf := NewCustomFunction(func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		forwardCalls++
		return tree.Tensor(tensor.Neg(args[0].Tensor())), nil
	}).WithVmap(
		func(inputs []*tree.Node, axes []*tree.Node) (*tree.Node, *tree.Node, error) {
			// Batched rule: negate the whole batch at once.
			return tree.Tensor(tensor.Neg(inputs[0].Tensor())), axes[0], nil
		})

	vfn := Vmap(cf.Call, tree.Int(0), tree.Int(0))
	out, err := vfn(matrix(t, 2, 2, 1, 2, 3, 4))
	require.NoError(t, err)

	assert.Equal(t, []float32{-1, -2, -3, -4}, out.Tensor().Data())
	assert.Equal(t, 0, forwardCalls, "the override replaces the per-slice forward")
}

func TestCustomFunc_VmapFallsBackWithoutOverride(t *testing.T) {
	cf := NewCustomFunction(func(args []*tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
		return tree.Tensor(tensor.Neg(args[0].Tensor())), nil
	}).WithVJP(
		func(primals []*tree.Node, cotangents, _ *tree.Node, _ map[string]*tree.Node) (*tree.Node, error) {
			return tree.Tensor(tensor.Neg(cotangents.Tensor())), nil
		})

	vfn := Vmap(cf.Call, tree.Int(0), tree.Int(0))
	out, err := vfn(matrix(t, 2, 2, 1, 2, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, -2, -3, -4}, out.Tensor().Data())
}

func TestCustomFunc_Close(t *testing.T) {
	cf := NewCustomFunction(sumSquares)
	cf.Close()
	cf.Close() // idempotent

	_, err := cf.Call([]*tree.Node{vec(t, 1)}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
