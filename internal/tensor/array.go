package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var nextID atomic.Uint64

// Array is an immutable array handle with structural identity. Two handles
// are the same array only if they are the same pointer; ID exposes a stable
// numeric identity for logging and cache keys.
//
// Values are computed lazily: an Array produced by an operation holds a
// provenance record instead of data until it is materialized. Materialization
// is idempotent and safe for concurrent use.
type Array struct {
	id    uint64
	shape Shape
	dtype DataType

	mu   sync.Mutex
	data []float32 // nil until materialized
	op   *Op       // nil for leaf arrays
}

func newArray(shape Shape, dtype DataType, op *Op) *Array {
	return &Array{
		id:    nextID.Add(1),
		shape: shape.Clone(),
		dtype: dtype,
		op:    op,
	}
}

// FromSlice creates a leaf array from a Go slice.
// The slice is copied into the array's storage.
func FromSlice(data []float32, shape Shape) (*Array, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	a := newArray(shape, Float32, nil)
	a.data = make([]float32, len(data))
	copy(a.data, data)
	return a, nil
}

// Scalar creates a rank-0 leaf array holding a single value.
func Scalar(v float32) *Array {
	a := newArray(Shape{}, Float32, nil)
	a.data = []float32{v}
	return a
}

// Full creates a leaf array of the given shape filled with value.
func Full(shape Shape, value float32) *Array {
	a := newArray(shape, Float32, nil)
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = value
	}
	a.data = data
	return a
}

// ID returns the array's numeric identity.
func (a *Array) ID() uint64 { return a.id }

// Shape returns the array's shape.
func (a *Array) Shape() Shape { return a.shape }

// Rank returns the number of dimensions.
func (a *Array) Rank() int { return len(a.shape) }

// DType returns the array's data type.
func (a *Array) DType() DataType { return a.dtype }

// Op returns the provenance record, or nil for a leaf array.
func (a *Array) Op() *Op { return a.op }

// IsLeaf reports whether the array has no provenance.
func (a *Array) IsLeaf() bool { return a.op == nil }

// Detach returns a new handle with a fresh identity and no provenance that
// shares this array's value. The transform layer uses detached handles as
// tracers substituted for real inputs during a trace.
func (a *Array) Detach() *Array {
	d := newArray(a.shape, a.dtype, nil)
	d.data = a.Materialize()
	return d
}

// Materialize forces evaluation and returns the array's storage.
// The returned slice must not be modified.
func (a *Array) Materialize() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.data == nil {
		a.data = compute(a)
	}
	return a.data
}

// Data returns a copy of the array's values in row-major order.
func (a *Array) Data() []float32 {
	src := a.Materialize()
	out := make([]float32, len(src))
	copy(out, src)
	return out
}

// Item returns the value of a scalar array.
func (a *Array) Item() float32 {
	if len(a.shape) != 0 {
		panic(fmt.Sprintf("Item: array has shape %v, want scalar", a.shape))
	}
	return a.Materialize()[0]
}

func (a *Array) String() string {
	return fmt.Sprintf("array(id=%d, shape=%v, dtype=%s)", a.id, a.shape, a.dtype)
}
