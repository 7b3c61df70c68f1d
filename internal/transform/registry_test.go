package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-ml/flint/internal/prim"
	"github.com/flint-ml/flint/internal/tree"
)

func TestWrapperIDsAreUnique(t *testing.T) {
	a, b := nextWrapperID(), nextWrapperID()
	assert.NotEqual(t, a, b)
}

func TestStructureRegistry(t *testing.T) {
	id := nextWrapperID()
	s := tree.List(vec(t, 1))

	structures().store(id, s)
	got, ok := structures().load(id)
	require.True(t, ok)
	assert.Equal(t, s, got)

	structures().erase(id)
	_, ok = structures().load(id)
	assert.False(t, ok)
}

func TestClearCaches(t *testing.T) {
	prim.EnableCompile()
	calls := 0
	cfn := Compile(countingDouble(&calls))
	defer cfn.Close()

	_, err := cfn.Call([]*tree.Node{vec(t, 1)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	ClearCaches()

	// The wrapper still works; its trace is simply gone.
	_, err = cfn.Call([]*tree.Node{vec(t, 1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEval(t *testing.T) {
	n := tree.List(vec(t, 1, 2), tree.Int(3))
	Eval(n)
	AsyncEval(n)
}
