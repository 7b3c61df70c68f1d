package tree

import "errors"

// Codec errors. Callers match with errors.Is.
var (
	// ErrTreeLeaf reports a non-tensor leaf inside a strictly flattened
	// subtree: the caller asked to transform something that contains no
	// tensor there.
	ErrTreeLeaf = errors.New("tree contains a non-tensor leaf")

	// ErrStructureMismatch reports parallel trees that disagree in container
	// kind, size or keys.
	ErrStructureMismatch = errors.New("tree structures do not match")

	// ErrArity reports a reconstruction with too few tensors for the
	// template, or a value with the wrong element count.
	ErrArity = errors.New("wrong number of elements")
)
