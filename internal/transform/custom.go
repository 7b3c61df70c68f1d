package transform

import (
	"fmt"

	"github.com/flint-ml/flint/internal/prim"
	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

// VJPHandler is a user-supplied reverse-mode rule. It receives the original
// positional arguments, the cotangents and the forward outputs (both shaped
// like the function's result) and the original keyword arguments, and returns
// one cotangent per tensor in the arguments.
type VJPHandler func(primals []*tree.Node, cotangents, outputs *tree.Node, kwargs map[string]*tree.Node) (*tree.Node, error)

// JVPHandler is a user-supplied forward-mode rule. tangents parallels primals
// with a nil tree wherever an argument carries no tangent; argnums lists the
// argument positions that do.
type JVPHandler func(primals, tangents []*tree.Node, argnums []int) (*tree.Node, error)

// VmapHandler is a user-supplied vectorization rule. axes parallels inputs
// with an int leaf per batched tensor and nil where a tensor is not batched;
// the handler returns the batched outputs and their axes in the same
// convention.
type VmapHandler func(inputs []*tree.Node, axes []*tree.Node) (outputs *tree.Node, outAxes *tree.Node, err error)

// CustomFunc couples a function with user overrides for its gradient,
// forward-mode derivative and vectorization rules. Transforms that have no
// override fall back to tracing through the function itself.
type CustomFunc struct {
	fun    Func
	vjp    VJPHandler
	jvp    JVPHandler
	vmapfn VmapHandler
	closed bool
}

// NewCustomFunction wraps fun for per-transform overrides. Without any
// registered override, calling the wrapper is the same as calling fun.
func NewCustomFunction(fun Func) *CustomFunc {
	return &CustomFunc{fun: fun}
}

// WithVJP registers the reverse-mode rule and returns the wrapper.
func (c *CustomFunc) WithVJP(h VJPHandler) *CustomFunc {
	c.vjp = h
	return c
}

// WithJVP registers the forward-mode rule and returns the wrapper.
func (c *CustomFunc) WithJVP(h JVPHandler) *CustomFunc {
	c.jvp = h
	return c
}

// WithVmap registers the vectorization rule and returns the wrapper.
func (c *CustomFunc) WithVmap(h VmapHandler) *CustomFunc {
	c.vmapfn = h
	return c
}

// Close drops the wrapped function and every registered override. It is
// idempotent; calling the wrapper afterwards fails.
func (c *CustomFunc) Close() {
	c.closed = true
	c.fun = nil
	c.vjp = nil
	c.jvp = nil
	c.vmapfn = nil
}

// Call invokes the wrapped function under whichever transform is active.
func (c *CustomFunc) Call(args []*tree.Node, kwargs map[string]*tree.Node) (*tree.Node, error) {
	if c.closed {
		return nil, fmt.Errorf("%w: custom function has been closed", ErrInvalidArgument)
	}
	if c.vjp == nil && c.jvp == nil && c.vmapfn == nil {
		return c.fun(args, kwargs)
	}

	bundle := tree.PackCall(args, kwargs)
	inputs, inStructure := tree.FlattenWithStructure(bundle)
	outSlot := &structureSlot{}

	innerForward := func(a []*tensor.Array) ([]*tensor.Array, error) {
		argNodes, kwargsNode, err := rebuildCall(inStructure, a)
		if err != nil {
			return nil, err
		}
		out, err := c.fun(argNodes, kwargsMap(kwargsNode))
		if err != nil {
			return nil, err
		}
		flat, structure := tree.FlattenWithStructure(out)
		outSlot.set(structure)
		return flat, nil
	}

	var vjpRule tensor.VJPFunc
	if c.vjp != nil {
		vjpRule = c.vjpAdapter(inStructure, outSlot)
	}
	var jvpRule tensor.JVPFunc
	if c.jvp != nil {
		jvpRule = c.jvpAdapter(inStructure)
	}
	var vmapRule prim.VmapOverride
	if c.vmapfn != nil {
		vmapRule = c.vmapAdapter(inStructure, outSlot)
	}

	outs, err := prim.CustomFunction(innerForward, vjpRule, jvpRule, vmapRule)(inputs)
	if err != nil {
		return nil, err
	}
	structure := outSlot.get()
	if structure == nil {
		return nil, fmt.Errorf("%w: custom function recorded no output structure", ErrInvalidArgument)
	}
	return tree.Unflatten(structure, outs, 0)
}

func rebuildCall(structure *tree.Node, arrays []*tensor.Array) ([]*tree.Node, *tree.Node, error) {
	rebuilt, err := tree.Unflatten(structure, arrays, 0)
	if err != nil {
		return nil, nil, err
	}
	return tree.UnpackCall(rebuilt)
}

func (c *CustomFunc) vjpAdapter(inStructure *tree.Node, outSlot *structureSlot) tensor.VJPFunc {
	return func(primals, cotangents, outputs []*tensor.Array) ([]*tensor.Array, error) {
		argNodes, kwargsNode, err := rebuildCall(inStructure, primals)
		if err != nil {
			return nil, err
		}
		structure := outSlot.get()
		cotTree, err := tree.Unflatten(structure, cotangents, 0)
		if err != nil {
			return nil, err
		}
		outTree, err := tree.Unflatten(structure, outputs, 0)
		if err != nil {
			return nil, err
		}
		res, err := c.vjp(argNodes, cotTree, outTree, kwargsMap(kwargsNode))
		if err != nil {
			return nil, err
		}
		flat, err := tree.Flatten(res, false)
		if err != nil {
			return nil, err
		}
		if len(flat) != len(primals) {
			return nil, fmt.Errorf(
				"%w: the custom vjp function returned %d cotangents for %d primal tensors",
				ErrReturnContract, len(flat), len(primals))
		}
		return flat, nil
	}
}

func (c *CustomFunc) jvpAdapter(inStructure *tree.Node) tensor.JVPFunc {
	return func(primals, tangents []*tensor.Array, argnums []int) ([]*tensor.Array, error) {
		argNodes, kwargsNode, err := rebuildCall(inStructure, primals)
		if err != nil {
			return nil, err
		}
		if kwargsNode.Len() != 0 {
			return nil, fmt.Errorf(
				"%w: custom jvp functions do not support keyword arguments", ErrUnsupportedArgument)
		}

		// Scatter the packed tangents into trees parallel to the arguments,
		// with nil holes where no tangent flows.
		tanAt := make(map[int]*tensor.Array, len(argnums))
		for i, n := range argnums {
			tanAt[n] = tangents[i]
		}
		idx := 0
		var argPositions []int
		tangentTrees := make([]*tree.Node, len(argNodes))
		for i, arg := range argNodes {
			hasTangent := false
			tangentTrees[i] = tree.Map(arg, func(leaf *tree.Node) *tree.Node {
				if leaf == nil || leaf.Kind() != tree.KindTensor {
					return nil
				}
				t := tanAt[idx]
				idx++
				if t == nil {
					return nil
				}
				hasTangent = true
				return tree.Tensor(t)
			})
			if hasTangent {
				argPositions = append(argPositions, i)
			}
		}

		res, err := c.jvp(argNodes, tangentTrees, argPositions)
		if err != nil {
			return nil, err
		}
		return tree.Flatten(res, false)
	}
}

func (c *CustomFunc) vmapAdapter(inStructure *tree.Node, outSlot *structureSlot) prim.VmapOverride {
	return func(inputs []*tensor.Array, axes []int) ([]*tensor.Array, []int, error) {
		argNodes, kwargsNode, err := rebuildCall(inStructure, inputs)
		if err != nil {
			return nil, nil, err
		}
		if kwargsNode.Len() != 0 {
			return nil, nil, fmt.Errorf(
				"%w: custom vmap functions do not support keyword arguments", ErrUnsupportedArgument)
		}

		idx := 0
		axisTrees := make([]*tree.Node, len(argNodes))
		for i, arg := range argNodes {
			axisTrees[i] = tree.Map(arg, func(leaf *tree.Node) *tree.Node {
				if leaf == nil || leaf.Kind() != tree.KindTensor {
					return nil
				}
				a := axes[idx]
				idx++
				if a < 0 {
					return nil
				}
				return tree.Int(int64(a))
			})
		}

		outTree, outAxesTree, err := c.vmapfn(argNodes, axisTrees)
		if err != nil {
			return nil, nil, err
		}

		var outs []*tensor.Array
		var outAxes []int
		err = tree.Visit(func(leaves []*tree.Node) error {
			x, ax := leaves[0], leaves[1]
			if x == nil || x.Kind() != tree.KindTensor {
				return fmt.Errorf("%w: the custom vmap function should return only tensors", ErrReturnContract)
			}
			switch {
			case ax == nil:
				outAxes = append(outAxes, -1)
			case ax.Kind() == tree.KindInt:
				outAxes = append(outAxes, int(ax.Int()))
			default:
				return fmt.Errorf("%w: the custom vmap function returned %s where an axis was expected", ErrAxis, ax)
			}
			outs = append(outs, x.Tensor())
			return nil
		}, outTree, outAxesTree)
		if err != nil {
			return nil, nil, err
		}

		_, structure := tree.FlattenWithStructure(outTree)
		outSlot.set(structure)
		return outs, outAxes, nil
	}
}
