package prim

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/flint-ml/flint/internal/tensor"
)

// compileCacheSize bounds the process-wide program cache.
const compileCacheSize = 512

// disableCompileEnv disables compilation for the whole process when set.
// Consulted once, before the first compiled call; EnableCompile overrides it.
const disableCompileEnv = "FLINT_DISABLE_COMPILE"

type cacheKey struct {
	funID     uint64
	signature string
	shapeless bool
}

// program is one cached trace: the tracer leaves the function was recorded
// with and the output graph rooted on them.
type program struct {
	tracers []*tensor.Array
	outputs []*tensor.Array
}

// compatible reports whether a cached program can be replayed with these
// inputs. Rank or dtype changes always force a re-trace; shape changes force
// one unless the program was compiled shapeless.
func (p *program) compatible(inputs []*tensor.Array, shapeless bool) bool {
	if len(inputs) != len(p.tracers) {
		return false
	}
	for i, tr := range p.tracers {
		in := inputs[i]
		if in.DType() != tr.DType() || in.Rank() != tr.Rank() {
			return false
		}
		if !shapeless && !in.Shape().Equal(tr.Shape()) {
			return false
		}
	}
	return true
}

var (
	compileOnce    sync.Once
	compileEnabled atomic.Bool

	programsOnce sync.Once
	programs     *lru.Cache[cacheKey, *program]
	traceGroup   singleflight.Group
)

func initCompileToggle() {
	compileOnce.Do(func() {
		compileEnabled.Store(os.Getenv(disableCompileEnv) == "")
	})
}

func cache() *lru.Cache[cacheKey, *program] {
	programsOnce.Do(func() {
		var err error
		programs, err = lru.NewWithEvict(compileCacheSize, func(key cacheKey, _ *program) {
			klog.V(2).InfoS("compile cache evict", "fun", key.funID, "shapeless", key.shapeless)
		})
		if err != nil {
			panic(err)
		}
	})
	return programs
}

// EnableCompile globally enables compilation, overriding the environment
// variable if it was set.
func EnableCompile() {
	initCompileToggle()
	compileEnabled.Store(true)
}

// DisableCompile globally disables compilation. Compiled functions fall back
// to calling the traced function directly.
func DisableCompile() {
	initCompileToggle()
	compileEnabled.Store(false)
}

// Compile returns a function that reuses a cached trace of fn whenever it is
// called with a signature-compatible input list. funID scopes the cache to
// one wrapper; constants is the structural signature computed by the caller.
func Compile(fn FlatFunc, funID uint64, shapeless bool, constants []uint64) FlatFunc {
	key := cacheKey{funID: funID, signature: encodeSignature(constants), shapeless: shapeless}

	return func(inputs []*tensor.Array) ([]*tensor.Array, error) {
		initCompileToggle()
		if !compileEnabled.Load() {
			return fn(inputs)
		}

		if p, ok := cache().Get(key); ok && p.compatible(inputs, shapeless) {
			klog.V(2).InfoS("compile cache hit", "fun", funID)
			return replay(p, inputs), nil
		}

		sfKey := fmt.Sprintf("%d\x00%t\x00%s", funID, shapeless, key.signature)
		v, err, _ := traceGroup.Do(sfKey, func() (any, error) {
			klog.V(2).InfoS("compile trace", "fun", funID, "inputs", len(inputs), "shapeless", shapeless)
			tracers := make([]*tensor.Array, len(inputs))
			for i, in := range inputs {
				tracers[i] = in.Detach()
			}
			outs, err := fn(tracers)
			if err != nil {
				return nil, err
			}
			p := &program{tracers: tracers, outputs: outs}
			cache().Add(key, p)
			return p, nil
		})
		if err != nil {
			return nil, err
		}
		return replay(v.(*program), inputs), nil
	}
}

func replay(p *program, inputs []*tensor.Array) []*tensor.Array {
	s := &subst{memo: make(map[*tensor.Array]*tensor.Array, len(p.tracers))}
	for i, tr := range p.tracers {
		s.memo[tr] = inputs[i]
	}
	outs := make([]*tensor.Array, len(p.outputs))
	for i, out := range p.outputs {
		outs[i] = s.resolve(out)
	}
	return outs
}

// CompileErase drops every cached trace belonging to funID. Called when a
// compiled wrapper is closed.
func CompileErase(funID uint64) {
	c := cache()
	for _, key := range c.Keys() {
		if key.funID == funID {
			c.Remove(key)
		}
	}
}

// CompileClearCache drops all cached traces. Called at process shutdown.
func CompileClearCache() {
	cache().Purge()
	klog.V(2).InfoS("compile cache cleared")
}

func encodeSignature(constants []uint64) string {
	var b strings.Builder
	b.Grow(len(constants) * 8)
	for _, c := range constants {
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(c >> (8 * i))
		}
		b.Write(buf[:])
	}
	return b.String()
}
