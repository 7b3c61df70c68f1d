package transform

import (
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/flint-ml/flint/internal/prim"
	"github.com/flint-ml/flint/internal/tree"
)

var wrapperIDs atomic.Uint64

// nextWrapperID allocates a process-unique identity for a compiled or custom
// wrapper. The identity keys both the primitive trace cache and the output
// structure registry.
func nextWrapperID() uint64 {
	return wrapperIDs.Add(1)
}

// structureRegistry is the process-wide cache of recorded output structures,
// keyed by wrapper identity. The compile driver writes an entry on every
// actual trace and reads it back on cache hits, when the traced function is
// not re-run.
type structureRegistry struct {
	mu         sync.RWMutex
	structures map[uint64]*tree.Node
}

var (
	registryOnce sync.Once
	registry     *structureRegistry
)

func structures() *structureRegistry {
	registryOnce.Do(func() {
		registry = &structureRegistry{structures: make(map[uint64]*tree.Node)}
	})
	return registry
}

func (r *structureRegistry) store(id uint64, s *tree.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.structures[id] = s
}

func (r *structureRegistry) load(id uint64) (*tree.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.structures[id]
	return s, ok
}

func (r *structureRegistry) erase(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.structures, id)
}

func (r *structureRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.structures = make(map[uint64]*tree.Node)
}

// ClearCaches drops the output-structure registry and the primitive compile
// cache. Intended for process shutdown and test isolation.
func ClearCaches() {
	structures().clear()
	prim.CompileClearCache()
	klog.V(2).InfoS("transform caches cleared")
}
