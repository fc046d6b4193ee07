package engine

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

// Registry manages loaded engines.
type Registry struct {
	sync.RWMutex
	engines  map[string]*Engine            // name -> engine
	byFormat map[markdown.Format][]*Engine // format -> engines, in registration order
	logger   *zap.Logger
}

// NewRegistry creates a new engine registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		engines:  make(map[string]*Engine),
		byFormat: make(map[markdown.Format][]*Engine),
		logger:   logger.With(zap.String("component", "engine-registry")),
	}
}

// Register adds an engine to the registry.
func (r *Registry) Register(e *Engine) error {
	r.Lock()
	defer r.Unlock()

	name := e.Name()

	if _, exists := r.engines[name]; exists {
		return &AlreadyRegisteredError{EngineName: name}
	}

	r.engines[name] = e

	formats := e.Formats()
	for _, f := range formats {
		r.byFormat[f] = append(r.byFormat[f], e)
	}

	r.logger.Info("Engine registered",
		zap.String("name", name),
		zap.String("kind", e.Kind()),
		zap.Int("formats", len(formats)),
	)

	return nil
}

// Get retrieves an engine by name.
func (r *Registry) Get(name string) (*Engine, bool) {
	r.RLock()
	defer r.RUnlock()

	e, ok := r.engines[name]
	return e, ok
}

// LookupByFormat finds engines producing format.
func (r *Registry) LookupByFormat(format markdown.Format) []*Engine {
	r.RLock()
	defer r.RUnlock()

	engines, ok := r.byFormat[format]
	if !ok || len(engines) == 0 {
		return []*Engine{}
	}
	// Return copy to avoid race conditions
	result := make([]*Engine, len(engines))
	copy(result, engines)
	return result
}

// List returns all registered engines sorted by name.
func (r *Registry) List() []*Engine {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Unregister removes an engine from the registry.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	e, ok := r.engines[name]
	if !ok {
		return
	}

	for _, f := range e.Formats() {
		engines := r.byFormat[f]
		for i, other := range engines {
			if other.Name() == name {
				r.byFormat[f] = append(engines[:i], engines[i+1:]...)
				break
			}
		}
	}

	delete(r.engines, name)

	r.logger.Info("Engine unregistered", zap.String("name", name))
}

// Count returns the number of registered engines.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.engines)
}
