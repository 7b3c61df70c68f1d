package transform

import (
	"fmt"
	"sync"

	"github.com/flint-ml/flint/internal/prim"
	"github.com/flint-ml/flint/internal/tensor"
	"github.com/flint-ml/flint/internal/tree"
)

// structureSlot shares one output structure descriptor between a wrapper and
// the recomputations its gradient triggers. The forward pass and every
// recomputation produce the same structure, so writes are idempotent.
type structureSlot struct {
	mu   sync.Mutex
	node *tree.Node
}

func (s *structureSlot) set(n *tree.Node) {
	s.mu.Lock()
	s.node = n
	s.mu.Unlock()
}

func (s *structureSlot) get() *tree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.node
}

// Checkpoint wraps fun so that its intermediate results are discarded after
// the forward pass and recomputed when gradients are taken, trading compute
// for memory.
func Checkpoint(fun Func) Func {
	slot := &structureSlot{}
	return func(args []*tree.Node, kwargs map[string]*tree.Node) (*tree.Node, error) {
		bundle := tree.PackCall(args, kwargs)
		inputs, argStructure := tree.FlattenWithStructure(bundle)

		inner := func(a []*tensor.Array) ([]*tensor.Array, error) {
			rebuilt, err := tree.Unflatten(argStructure, a, 0)
			if err != nil {
				return nil, err
			}
			argNodes, kwargsNode, err := tree.UnpackCall(rebuilt)
			if err != nil {
				return nil, err
			}
			out, err := fun(argNodes, kwargsMap(kwargsNode))
			if err != nil {
				return nil, err
			}
			flat, outStructure := tree.FlattenWithStructure(out)
			slot.set(outStructure)
			return flat, nil
		}

		outs, err := prim.Checkpoint(inner)(inputs)
		if err != nil {
			return nil, err
		}
		structure := slot.get()
		if structure == nil {
			return nil, fmt.Errorf("%w: checkpointed function recorded no output structure", ErrInvalidArgument)
		}
		return tree.Unflatten(structure, outs, 0)
	}
}
