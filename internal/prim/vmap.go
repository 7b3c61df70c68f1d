package prim

import (
	"fmt"
	"sync"

	"github.com/flint-ml/flint/internal/tensor"
)

// VmapTraceResult carries the artifacts of one vectorization trace: the
// tracer inputs the function saw, the raw outputs it produced, and the
// bookkeeping the replace step needs.
type VmapTraceResult struct {
	TraceInputs  []*tensor.Array
	TraceOutputs []*tensor.Array

	batchSize  int
	prebatched map[*tensor.Array]prebatchedEntry
}

// prebatchedEntry marks a trace output that was produced already batched by
// a custom vmap override; replay slices it instead of recomputing.
type prebatchedEntry struct {
	src  *tensor.Array
	axis int
}

// vmapContext is the trace-time state a custom vmap override consults to
// recover the batched originals behind its tracer inputs.
type vmapContext struct {
	batched    map[*tensor.Array]*tensor.Array // tracer -> original batched input
	axes       map[*tensor.Array]int           // tracer -> input axis
	batchSize  int
	prebatched map[*tensor.Array]prebatchedEntry
}

var (
	vmapMu     sync.Mutex
	activeVmap *vmapContext
)

func currentVmap() *vmapContext {
	vmapMu.Lock()
	defer vmapMu.Unlock()
	return activeVmap
}

// batchedArgs maps tracer inputs back to their batched originals. It only
// succeeds when every input is a direct tracer of this trace; anything else
// falls back to default per-slice vectorization.
func (c *vmapContext) batchedArgs(inputs []*tensor.Array) ([]*tensor.Array, []int, bool) {
	batched := make([]*tensor.Array, len(inputs))
	axes := make([]int, len(inputs))
	for i, in := range inputs {
		orig, ok := c.batched[in]
		if !ok {
			return nil, nil, false
		}
		batched[i] = orig
		axes[i] = c.axes[in]
	}
	return batched, axes, true
}

// markPrebatched registers a batched override output and returns the
// unbatched tracer view that stands in for it during the rest of the trace.
func (c *vmapContext) markPrebatched(out *tensor.Array, axis int) *tensor.Array {
	if axis < 0 {
		return out
	}
	view := tensor.Take(out, 0, axis).Detach()
	c.prebatched[view] = prebatchedEntry{src: out, axis: axis}
	return view
}

// VmapTrace runs fn once over unbatched tracer inputs, recording the
// computation for later replacement. inAxes holds one axis per input, -1
// meaning not vectorized.
func VmapTrace(fn FlatFunc, inputs []*tensor.Array, inAxes []int) (*VmapTraceResult, error) {
	if len(inputs) != len(inAxes) {
		return nil, fmt.Errorf("vmap: %d axes for %d inputs", len(inAxes), len(inputs))
	}

	batchSize := 0
	for i, ax := range inAxes {
		if ax < 0 {
			continue
		}
		dim := inputs[i].Shape()[ax]
		if batchSize == 0 {
			batchSize = dim
		} else if dim != batchSize {
			return nil, fmt.Errorf("vmap: inconsistent batch sizes %d and %d", batchSize, dim)
		}
	}

	ctx := &vmapContext{
		batched:    make(map[*tensor.Array]*tensor.Array),
		axes:       make(map[*tensor.Array]int),
		batchSize:  batchSize,
		prebatched: make(map[*tensor.Array]prebatchedEntry),
	}
	tracers := make([]*tensor.Array, len(inputs))
	for i, in := range inputs {
		if inAxes[i] >= 0 {
			tracers[i] = tensor.Take(in, 0, inAxes[i]).Detach()
		} else {
			tracers[i] = in.Detach()
		}
		ctx.batched[tracers[i]] = in
		ctx.axes[tracers[i]] = inAxes[i]
	}

	vmapMu.Lock()
	prev := activeVmap
	activeVmap = ctx
	vmapMu.Unlock()
	defer func() {
		vmapMu.Lock()
		activeVmap = prev
		vmapMu.Unlock()
	}()

	outs, err := fn(tracers)
	if err != nil {
		return nil, err
	}
	return &VmapTraceResult{
		TraceInputs:  tracers,
		TraceOutputs: outs,
		batchSize:    batchSize,
		prebatched:   ctx.prebatched,
	}, nil
}

// VmapReplace materializes the batched computation: the recorded trace is
// replayed once per batch element with inputs sliced along their axes, and
// the per-element outputs are stacked along the resolved output axes. An
// output axis of -1 keeps the unbatched trace value.
func VmapReplace(res *VmapTraceResult, inputs []*tensor.Array, inAxes, outAxes []int) ([]*tensor.Array, error) {
	if len(res.TraceOutputs) != len(outAxes) {
		return nil, fmt.Errorf("vmap: %d output axes for %d outputs", len(outAxes), len(res.TraceOutputs))
	}

	if res.batchSize == 0 {
		for _, ax := range outAxes {
			if ax >= 0 {
				return nil, fmt.Errorf("vmap: no vectorized input for vectorized output")
			}
		}
		return res.TraceOutputs, nil
	}

	slices := make([][]*tensor.Array, len(res.TraceOutputs))
	for k := range slices {
		slices[k] = make([]*tensor.Array, res.batchSize)
	}
	for i := 0; i < res.batchSize; i++ {
		s := &subst{memo: make(map[*tensor.Array]*tensor.Array)}
		for j, tr := range res.TraceInputs {
			if inAxes[j] >= 0 {
				s.memo[tr] = tensor.Take(inputs[j], i, inAxes[j])
			} else {
				s.memo[tr] = inputs[j]
			}
		}
		idx := i
		s.hook = func(a *tensor.Array) (*tensor.Array, bool) {
			if pb, ok := res.prebatched[a]; ok {
				return tensor.Take(pb.src, idx, pb.axis), true
			}
			return nil, false
		}
		for k, out := range res.TraceOutputs {
			slices[k][i] = s.resolve(out)
		}
	}

	outs := make([]*tensor.Array, len(res.TraceOutputs))
	for k, ax := range outAxes {
		if ax >= 0 {
			outs[k] = tensor.Stack(slices[k], ax)
		} else {
			outs[k] = slices[k][0]
		}
	}
	return outs, nil
}
