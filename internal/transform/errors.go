package transform

import (
	"errors"

	"github.com/flint-ml/flint/internal/tree"
)

// Transform errors. All are raised synchronously at the point of detection
// and abort the transformed call; callers match with errors.Is.
var (
	// ErrInvalidArgument reports a malformed argnums/argnames selection or
	// compile arguments that are not trees of tensors and constants.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrReturnContract reports a differentiated function whose return value
	// violates the scalar / tuple-with-leading-tensor contract.
	ErrReturnContract = errors.New("invalid return value")

	// ErrAxis reports a vectorization axis out of range or a malformed axis
	// specification.
	ErrAxis = errors.New("invalid vectorization axis")

	// ErrUnsupportedArgument reports a jvp or vmap override invoked with
	// keyword arguments.
	ErrUnsupportedArgument = errors.New("unsupported argument")
)

// Codec errors, re-exported so callers need only this package.
var (
	ErrTreeLeaf          = tree.ErrTreeLeaf
	ErrStructureMismatch = tree.ErrStructureMismatch
	ErrArity             = tree.ErrArity
)
