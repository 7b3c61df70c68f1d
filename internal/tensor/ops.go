package tensor

import (
	"fmt"
	"math"
)

// Binary shape rule: operands must have identical shapes, or one of them may
// be a scalar which broadcasts over the other. No general broadcasting.
func binaryShape(kind string, a, b *Array) Shape {
	switch {
	case a.shape.Equal(b.shape):
		return a.shape
	case a.Rank() == 0:
		return b.shape
	case b.Rank() == 0:
		return a.shape
	default:
		panic(fmt.Sprintf("%s: incompatible shapes %v and %v", kind, a.shape, b.shape))
	}
}

// Add computes element-wise a + b.
func Add(a, b *Array) *Array {
	shape := binaryShape("Add", a, b)
	return newArray(shape, Float32, &Op{Kind: OpAdd, Inputs: []*Array{a, b}})
}

// Sub computes element-wise a - b.
func Sub(a, b *Array) *Array {
	shape := binaryShape("Sub", a, b)
	return newArray(shape, Float32, &Op{Kind: OpSub, Inputs: []*Array{a, b}})
}

// Mul computes element-wise a * b.
func Mul(a, b *Array) *Array {
	shape := binaryShape("Mul", a, b)
	return newArray(shape, Float32, &Op{Kind: OpMul, Inputs: []*Array{a, b}})
}

// Neg computes element-wise -a.
func Neg(a *Array) *Array {
	return newArray(a.shape, Float32, &Op{Kind: OpNeg, Inputs: []*Array{a}})
}

// Sin computes element-wise sin(a).
func Sin(a *Array) *Array {
	return newArray(a.shape, Float32, &Op{Kind: OpSin, Inputs: []*Array{a}})
}

// Cos computes element-wise cos(a).
func Cos(a *Array) *Array {
	return newArray(a.shape, Float32, &Op{Kind: OpCos, Inputs: []*Array{a}})
}

// Exp computes element-wise exp(a).
func Exp(a *Array) *Array {
	return newArray(a.shape, Float32, &Op{Kind: OpExp, Inputs: []*Array{a}})
}

// Sum reduces all elements of a to a scalar.
func Sum(a *Array) *Array {
	return newArray(Shape{}, Float32, &Op{Kind: OpSum, Inputs: []*Array{a}})
}

// Stack joins arrays of identical shape along a new axis at position axis.
func Stack(arrays []*Array, axis int) *Array {
	if len(arrays) == 0 {
		panic("Stack: no arrays")
	}
	base := arrays[0].shape
	for _, a := range arrays[1:] {
		if !a.shape.Equal(base) {
			panic(fmt.Sprintf("Stack: mismatched shapes %v and %v", base, a.shape))
		}
	}
	if axis < 0 || axis > len(base) {
		panic(fmt.Sprintf("Stack: axis %d out of range for rank %d", axis, len(base)))
	}
	shape := make(Shape, 0, len(base)+1)
	shape = append(shape, base[:axis]...)
	shape = append(shape, len(arrays))
	shape = append(shape, base[axis:]...)
	return newArray(shape, Float32, &Op{Kind: OpStack, Inputs: arrays, Axis: axis})
}

// Take selects index i along the given axis, dropping that axis.
func Take(a *Array, i, axis int) *Array {
	if axis < 0 || axis >= a.Rank() {
		panic(fmt.Sprintf("Take: axis %d out of range for rank %d", axis, a.Rank()))
	}
	if i < 0 || i >= a.shape[axis] {
		panic(fmt.Sprintf("Take: index %d out of range for dimension %d", i, a.shape[axis]))
	}
	shape := make(Shape, 0, a.Rank()-1)
	shape = append(shape, a.shape[:axis]...)
	shape = append(shape, a.shape[axis+1:]...)
	return newArray(shape, Float32, &Op{Kind: OpTake, Inputs: []*Array{a}, Axis: axis, Index: i})
}

// ZerosLike returns a leaf array of zeros with a's shape.
func ZerosLike(a *Array) *Array {
	return Full(a.shape, 0)
}

// OnesLike returns a leaf array of ones with a's shape.
func OnesLike(a *Array) *Array {
	return Full(a.shape, 1)
}

// CustomOutputs wraps the outputs of a custom-transform application so each
// carries the shared record as provenance. The wrapped arrays replace the raw
// outputs everywhere downstream.
func CustomOutputs(rec *CustomRecord) []*Array {
	wrapped := make([]*Array, len(rec.Outputs))
	for i, out := range rec.Outputs {
		wrapped[i] = newArray(out.shape, out.dtype, &Op{Kind: OpCustom, Inputs: rec.Primals, Index: i, Custom: rec})
	}
	return wrapped
}

// Reapply rebuilds the operation described by op with new inputs. Used when
// replaying a recorded graph under substitution (compile cache hits, vmap
// replacement).
func Reapply(op *Op, inputs []*Array) *Array {
	switch op.Kind {
	case OpAdd:
		return Add(inputs[0], inputs[1])
	case OpSub:
		return Sub(inputs[0], inputs[1])
	case OpMul:
		return Mul(inputs[0], inputs[1])
	case OpNeg:
		return Neg(inputs[0])
	case OpSin:
		return Sin(inputs[0])
	case OpCos:
		return Cos(inputs[0])
	case OpExp:
		return Exp(inputs[0])
	case OpSum:
		return Sum(inputs[0])
	case OpStack:
		return Stack(inputs, op.Axis)
	case OpTake:
		return Take(inputs[0], op.Index, op.Axis)
	default:
		panic(fmt.Sprintf("Reapply: unsupported op kind %d", op.Kind))
	}
}

// compute performs the forward evaluation of a non-leaf array.
// Caller holds a.mu; inputs materialize under their own locks.
func compute(a *Array) []float32 {
	op := a.op
	if op == nil {
		panic("compute: leaf array without data")
	}

	switch op.Kind {
	case OpAdd:
		return elementwise2(op.Inputs[0], op.Inputs[1], a.shape, func(x, y float32) float32 { return x + y })
	case OpSub:
		return elementwise2(op.Inputs[0], op.Inputs[1], a.shape, func(x, y float32) float32 { return x - y })
	case OpMul:
		return elementwise2(op.Inputs[0], op.Inputs[1], a.shape, func(x, y float32) float32 { return x * y })
	case OpNeg:
		return elementwise1(op.Inputs[0], func(x float32) float32 { return -x })
	case OpSin:
		return elementwise1(op.Inputs[0], func(x float32) float32 { return float32(math.Sin(float64(x))) })
	case OpCos:
		return elementwise1(op.Inputs[0], func(x float32) float32 { return float32(math.Cos(float64(x))) })
	case OpExp:
		return elementwise1(op.Inputs[0], func(x float32) float32 { return float32(math.Exp(float64(x))) })
	case OpSum:
		var acc float32
		for _, v := range op.Inputs[0].Materialize() {
			acc += v
		}
		return []float32{acc}
	case OpStack:
		return computeStack(op, a.shape)
	case OpTake:
		return computeTake(op)
	case OpCustom:
		src := op.Custom.Outputs[op.Index].Materialize()
		out := make([]float32, len(src))
		copy(out, src)
		return out
	default:
		panic(fmt.Sprintf("compute: unsupported op kind %d", op.Kind))
	}
}

func elementwise1(a *Array, f func(float32) float32) []float32 {
	src := a.Materialize()
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = f(v)
	}
	return out
}

func elementwise2(a, b *Array, shape Shape, f func(x, y float32) float32) []float32 {
	da, db := a.Materialize(), b.Materialize()
	out := make([]float32, shape.NumElements())
	switch {
	case a.Rank() == 0 && b.Rank() != 0:
		for i, v := range db {
			out[i] = f(da[0], v)
		}
	case b.Rank() == 0 && a.Rank() != 0:
		for i, v := range da {
			out[i] = f(v, db[0])
		}
	default:
		for i := range out {
			out[i] = f(da[i], db[i])
		}
	}
	return out
}

func computeStack(op *Op, shape Shape) []float32 {
	base := op.Inputs[0].shape
	outer := 1
	for _, d := range base[:op.Axis] {
		outer *= d
	}
	inner := 1
	for _, d := range base[op.Axis:] {
		inner *= d
	}
	n := len(op.Inputs)
	out := make([]float32, shape.NumElements())
	for k, in := range op.Inputs {
		src := in.Materialize()
		for o := 0; o < outer; o++ {
			copy(out[(o*n+k)*inner:(o*n+k+1)*inner], src[o*inner:(o+1)*inner])
		}
	}
	return out
}

func computeTake(op *Op) []float32 {
	in := op.Inputs[0]
	src := in.Materialize()
	outer := 1
	for _, d := range in.shape[:op.Axis] {
		outer *= d
	}
	dim := in.shape[op.Axis]
	inner := 1
	for _, d := range in.shape[op.Axis+1:] {
		inner *= d
	}
	out := make([]float32, outer*inner)
	for o := 0; o < outer; o++ {
		copy(out[o*inner:(o+1)*inner], src[(o*dim+op.Index)*inner:(o*dim+op.Index)*inner+inner])
	}
	return out
}
