// Copyright 2025 Flint ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package transform

import (
	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/transform"
	"github.com/flint-ml/flint/internal/tree"
)

// Func is a transformable function: positional tree arguments, named keyword
// arguments (possibly nil), one tree result.
type Func = transform.Func

// ValueAndGradFunc computes a function's value together with gradients.
type ValueAndGradFunc = transform.ValueAndGradFunc

// GradFunc computes gradients only.
type GradFunc = transform.GradFunc

// VmapFunc is a vectorized function.
type VmapFunc = transform.VmapFunc

// CompiledFunc is a trace-caching function wrapper. Call Close when done
// with it to release its cached traces.
type CompiledFunc = transform.CompiledFunc

// CustomFunc couples a function with user overrides for its gradient,
// forward-mode derivative and vectorization rules.
type CustomFunc = transform.CustomFunc

// Handler types for CustomFunc overrides.
type (
	VJPHandler  = transform.VJPHandler
	JVPHandler  = transform.JVPHandler
	VmapHandler = transform.VmapHandler
)

// Options.
type (
	GradOption    = transform.GradOption
	CompileOption = transform.CompileOption
)

// WithArgnums selects positional argument indices to differentiate with
// respect to; without options the first positional argument is selected.
func WithArgnums(nums ...int) GradOption { return transform.WithArgnums(nums...) }

// WithArgnames selects keyword arguments to differentiate with respect to.
func WithArgnames(names ...string) GradOption { return transform.WithArgnames(names...) }

// WithShapeless makes a compiled function's trace cache ignore input shapes.
func WithShapeless() CompileOption { return transform.WithShapeless() }

// WithCapturedInputs declares extra tensors a compiled function reads.
func WithCapturedInputs(t *tree.Node) CompileOption {
	return transform.WithCapturedInputs(t)
}

// WithCapturedOutputs declares extra tensors a compiled function updates.
func WithCapturedOutputs(t *tree.Node) CompileOption {
	return transform.WithCapturedOutputs(t)
}

// Transform errors.
var (
	ErrInvalidArgument     = transform.ErrInvalidArgument
	ErrReturnContract      = transform.ErrReturnContract
	ErrAxis                = transform.ErrAxis
	ErrUnsupportedArgument = transform.ErrUnsupportedArgument
	ErrTreeLeaf            = transform.ErrTreeLeaf
	ErrStructureMismatch   = transform.ErrStructureMismatch
	ErrArity               = transform.ErrArity
)

// ValueAndGrad returns a function computing fun's value and the gradients of
// its scalar first output with respect to the selected arguments.
func ValueAndGrad(fun Func, opts ...GradOption) (ValueAndGradFunc, error) {
	return transform.ValueAndGrad(fun, opts...)
}

// Grad returns a function computing the gradients of the scalar-valued fun
// with respect to the selected arguments.
func Grad(fun Func, opts ...GradOption) (GradFunc, error) {
	return transform.Grad(fun, opts...)
}

// Vmap maps fun over a batch axis of its inputs. See the internal package
// documentation of axis specification trees.
func Vmap(fun Func, inAxes, outAxes *tree.Node) VmapFunc {
	return transform.Vmap(fun, inAxes, outAxes)
}

// JVP computes fun's outputs at primals and the directional derivatives
// along tangents.
func JVP(fun Func, primals, tangents []*tensor.Array) (outputs, outTangents []*tensor.Array, err error) {
	return transform.JVP(fun, primals, tangents)
}

// VJP computes fun's outputs at primals and the gradients of the
// cotangent-weighted outputs with respect to every primal.
func VJP(fun Func, primals, cotangents []*tensor.Array) (outputs, grads []*tensor.Array, err error) {
	return transform.VJP(fun, primals, cotangents)
}

// Compile wraps fun in a trace-caching wrapper.
func Compile(fun Func, opts ...CompileOption) *CompiledFunc {
	return transform.Compile(fun, opts...)
}

// Checkpoint wraps fun so its intermediates are recomputed, not stored, when
// gradients are taken.
func Checkpoint(fun Func) Func { return transform.Checkpoint(fun) }

// NewCustomFunction wraps fun for per-transform overrides.
func NewCustomFunction(fun Func) *CustomFunc {
	return transform.NewCustomFunction(fun)
}

// Eval materializes every tensor in the given trees, blocking until done.
func Eval(trees ...*tree.Node) { transform.Eval(trees...) }

// AsyncEval schedules materialization without waiting for it.
func AsyncEval(trees ...*tree.Node) { transform.AsyncEval(trees...) }

// EnableCompile re-enables trace caching after DisableCompile, overriding
// the FLINT_DISABLE_COMPILE environment variable.
func EnableCompile() { transform.EnableCompile() }

// DisableCompile globally turns compiled functions into plain calls.
func DisableCompile() { transform.DisableCompile() }

// ClearCaches empties the process-wide trace cache and structure registry.
func ClearCaches() { transform.ClearCaches() }
