package transform

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"k8s.io/klog/v2"

	"github.com/flint-ml/flint/internal/prim"
	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

// Signature sentinels. Large primes keep container markers out of the value
// space of small integer constants.
const (
	arrayIdentifier uint64 = 18446744073709551557
	listIdentifier  uint64 = 18446744073709551533
	dictIdentifier  uint64 = 18446744073709551521
)

// CompileOption configures a compiled function wrapper.
type CompileOption func(*CompiledFunc)

// WithShapeless makes the trace cache ignore input shapes, so a cached trace
// is reused across shape changes as long as ranks and dtypes agree.
func WithShapeless() CompileOption {
	return func(c *CompiledFunc) { c.shapeless = true }
}

// WithCapturedInputs declares a tree of tensors the function reads besides
// its arguments; they are traced and fed on every call.
func WithCapturedInputs(t *tree.Node) CompileOption {
	return func(c *CompiledFunc) { c.capturedIn = t }
}

// WithCapturedOutputs declares a tree of tensors the function updates besides
// its return value; each call writes the freshly computed values back into
// the tree.
func WithCapturedOutputs(t *tree.Node) CompileOption {
	return func(c *CompiledFunc) { c.capturedOut = t }
}

// CompiledFunc caches traces of a function keyed by the call's constant
// signature and input specification, replaying a cached trace instead of
// re-running the function when the key matches.
type CompiledFunc struct {
	fun         Func
	id          uint64
	capturedIn  *tree.Node
	capturedOut *tree.Node
	shapeless   bool
	numOutputs  int
	closed      bool
}

// Compile wraps fun in a trace-caching wrapper. The wrapper holds entries in
// the process-wide trace cache and output-structure registry until Close is
// called.
func Compile(fun Func, opts ...CompileOption) *CompiledFunc {
	c := &CompiledFunc{fun: fun, id: nextWrapperID()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes the compiled function.
func (c *CompiledFunc) Call(args []*tree.Node, kwargs map[string]*tree.Node) (*tree.Node, error) {
	if c.closed {
		return nil, fmt.Errorf("%w: compiled function has been closed", ErrInvalidArgument)
	}

	argsTree := tree.List(args...)
	kwargsNode := tree.Dict(kwargs)

	// Walk arguments then keyword arguments, splitting tensors out into the
	// flat input list and everything else into the constant signature.
	var constants []uint64
	var inputs []*tensor.Array
	if err := buildSignature(argsTree, &constants, &inputs); err != nil {
		return nil, err
	}
	numArgs := len(inputs)
	if err := buildSignature(kwargsNode, &constants, &inputs); err != nil {
		return nil, err
	}

	var flatInCaptures []*tensor.Array
	if c.capturedIn != nil {
		var err error
		flatInCaptures, err = tree.Flatten(c.capturedIn, false)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, flatInCaptures...)
	}

	compileFn := func(a []*tensor.Array) ([]*tensor.Array, error) {
		var traceCaptures []*tensor.Array
		if len(flatInCaptures) > 0 {
			traceCaptures = a[len(a)-len(flatInCaptures):]
			if err := tree.Fill(c.capturedIn, traceCaptures); err != nil {
				return nil, err
			}
		}
		rebuiltArgs, err := tree.Unflatten(argsTree, a, 0)
		if err != nil {
			return nil, err
		}
		rebuiltKwargs, err := tree.Unflatten(kwargsNode, a, numArgs)
		if err != nil {
			return nil, err
		}
		out, err := c.fun(rebuiltArgs.Children(), kwargsMap(rebuiltKwargs))
		if err != nil {
			return nil, err
		}

		flatOuts, structure := tree.FlattenWithStructure(out)
		structures().store(c.id, structure)
		c.numOutputs = len(flatOuts)

		if c.capturedOut != nil {
			co, err := tree.Flatten(c.capturedOut, false)
			if err != nil {
				return nil, err
			}
			flatOuts = append(flatOuts, co...)
		}

		// Restore the real captured inputs, leaving alone any slot the call
		// itself overwrote.
		if len(traceCaptures) > 0 {
			idx := 0
			tree.VisitUpdate(c.capturedIn, func(leaf *tree.Node) *tree.Node {
				if idx < len(traceCaptures) && leaf.Tensor() == traceCaptures[idx] {
					restored := tree.Tensor(flatInCaptures[idx])
					idx++
					return restored
				}
				return leaf
			})
		}
		return flatOuts, nil
	}

	outs, err := prim.Compile(compileFn, c.id, c.shapeless, constants)(inputs)
	if err != nil {
		return nil, err
	}

	if c.capturedOut != nil {
		if err := tree.Fill(c.capturedOut, outs[c.numOutputs:]); err != nil {
			return nil, err
		}
	}
	structure, ok := structures().load(c.id)
	if !ok {
		return nil, fmt.Errorf("%w: no output structure recorded for compiled function %d", ErrInvalidArgument, c.id)
	}
	return tree.Unflatten(structure, outs, 0)
}

// Close releases the wrapper's cached traces and output structure. It is
// idempotent; calling the function afterwards fails.
func (c *CompiledFunc) Close() {
	if c.closed {
		return
	}
	c.closed = true
	structures().erase(c.id)
	prim.CompileErase(c.id)
	c.fun = nil
	c.capturedIn = nil
	c.capturedOut = nil
	klog.V(2).Infof("compile: released wrapper %d", c.id)
}

// buildSignature appends the tree's constant signature to constants and its
// tensors, in flatten order, to inputs. Only tensors, ints, floats, strings
// and containers of those are valid compile arguments.
func buildSignature(n *tree.Node, constants *[]uint64, inputs *[]*tensor.Array) error {
	if n == nil {
		return fmt.Errorf("%w: invalid none argument to a compiled function; arguments must be trees of tensors, ints, floats or strings", ErrInvalidArgument)
	}
	switch n.Kind() {
	case tree.KindTensor:
		*inputs = append(*inputs, n.Tensor())
		*constants = append(*constants, arrayIdentifier)
	case tree.KindInt:
		*constants = append(*constants, uint64(n.Int()))
	case tree.KindFloat:
		*constants = append(*constants, math.Float64bits(n.Float()))
	case tree.KindString:
		*constants = append(*constants, xxhash.Sum64String(n.Str()))
	case tree.KindList:
		*constants = append(*constants, listIdentifier, uint64(n.Len()))
		for _, c := range n.Children() {
			if err := buildSignature(c, constants, inputs); err != nil {
				return err
			}
		}
	case tree.KindDict:
		*constants = append(*constants, dictIdentifier, uint64(n.Len()))
		for _, e := range n.Entries() {
			*constants = append(*constants, xxhash.Sum64String(e.Key))
			if err := buildSignature(e.Val, constants, inputs); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: invalid %s argument to a compiled function; arguments must be trees of tensors, ints, floats or strings", ErrInvalidArgument, n.Kind())
	}
	return nil
}

// EnableCompile re-enables trace caching after DisableCompile, overriding the
// FLINT_DISABLE_COMPILE environment variable.
func EnableCompile() { prim.EnableCompile() }

// DisableCompile globally turns compiled functions into plain calls.
func DisableCompile() { prim.DisableCompile() }
