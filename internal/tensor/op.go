package tensor

// OpKind identifies the primitive operation that produced an array.
type OpKind uint8

// Primitive operation kinds.
const (
	OpLeaf OpKind = iota // no provenance, data supplied directly
	OpAdd
	OpSub
	OpMul
	OpNeg
	OpSin
	OpCos
	OpExp
	OpSum
	OpStack
	OpTake
	OpCustom // output of a custom-transform record
)

// Op records the provenance of a lazily computed array: the primitive that
// produced it and the arrays it consumed. The transform layer walks these
// records for differentiation, vmap replay and compiled-graph substitution.
type Op struct {
	Kind   OpKind
	Inputs []*Array

	// Axis is used by OpStack and OpTake.
	Axis int
	// Index is the slice index for OpTake and the output index for OpCustom.
	Index int

	// Custom is set for OpCustom nodes.
	Custom *CustomRecord
}

// VJPFunc computes cotangents for a custom record's primals given the
// cotangents of its outputs. Cotangent slots may be nil when no gradient
// flows to the corresponding output.
type VJPFunc func(primals, cotangents, outputs []*Array) ([]*Array, error)

// JVPFunc computes output tangents for a custom record given tangents of the
// primals listed in argnums.
type JVPFunc func(primals, tangents []*Array, argnums []int) ([]*Array, error)

// CustomRecord groups the arrays of a single custom-transform application.
// All outputs of the application share one record; Op.Index selects the
// output an individual array corresponds to.
type CustomRecord struct {
	Primals []*Array
	Outputs []*Array
	VJP     VJPFunc
	JVP     JVPFunc
}
